package deliveries

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/formhive/webhook-service/internal/webhooks"
)

const (
	eventTypeHeader  = "X-Webhook-Event"
	deliveryIDHeader = "X-Webhook-Delivery"

	defaultMaxRespBytes = 64 * 1024
)

// Dispatcher performs the single HTTP call of one delivery attempt. It
// classifies every outcome into an AttemptResult and never returns an error:
// connection failures, timeouts and non-2xx responses are all legitimate
// attempt outcomes, not dispatcher failures.
type Dispatcher struct {
	client       *http.Client
	maxRespBytes int
}

func NewDispatcher(timeout time.Duration, maxRespBytes int) *Dispatcher {
	if maxRespBytes <= 0 {
		maxRespBytes = defaultMaxRespBytes
	}
	return &Dispatcher{
		client: &http.Client{
			Timeout: timeout,
		},
		maxRespBytes: maxRespBytes,
	}
}

// Dispatch POSTs the payload to the webhook endpoint. Any 2xx response counts
// as success; every other status, including 4xx, is a retryable failure. The
// returned headers are the ones actually sent, for the attempt audit record.
func (d *Dispatcher) Dispatch(ctx context.Context, wh *webhooks.Webhook, deliveryID, eventType string, payload []byte) (AttemptResult, map[string]string) {
	headers := map[string]string{
		"Content-Type":   "application/json",
		eventTypeHeader:  eventType,
		deliveryIDHeader: deliveryID,
	}
	if wh.Secret != "" {
		headers[SignatureHeader] = Sign(wh.Secret, payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		return AttemptResult{ErrorMessage: fmt.Sprintf("invalid request: %v", err)}, headers
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return AttemptResult{
			ErrorMessage: fmt.Sprintf("request failed: %v", err),
			DurationMs:   elapsed,
		}, headers
	}
	defer resp.Body.Close()

	// The response body is audit data only; cap it so a misbehaving endpoint
	// cannot bloat the attempt log.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(d.maxRespBytes)))

	result := AttemptResult{
		ResponseStatus: &resp.StatusCode,
		ResponseBody:   string(body),
		DurationMs:     elapsed,
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
	} else {
		result.ErrorMessage = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	}
	return result, headers
}
