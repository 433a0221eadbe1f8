package deliveries

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formhive/webhook-service/internal/webhooks"
)

func TestDispatchSuccess(t *testing.T) {
	var gotBody string
	var gotHeaders http.Header
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer receiver.Close()

	d := NewDispatcher(5*time.Second, 0)
	wh := &webhooks.Webhook{URL: receiver.URL, Secret: "abc"}
	payload := []byte(`{"x":1}`)

	result, sentHeaders := d.Dispatch(context.Background(), wh, "delivery-1", "session.completed", payload)

	require.True(t, result.Success)
	require.NotNil(t, result.ResponseStatus)
	assert.Equal(t, http.StatusOK, *result.ResponseStatus)
	assert.Equal(t, `{"received":true}`, result.ResponseBody)
	assert.Empty(t, result.ErrorMessage)
	assert.GreaterOrEqual(t, result.DurationMs, int64(0))

	assert.Equal(t, `{"x":1}`, gotBody)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "session.completed", gotHeaders.Get("X-Webhook-Event"))
	assert.Equal(t, "delivery-1", gotHeaders.Get("X-Webhook-Delivery"))

	// signature matches an independent computation over the exact body sent
	assert.Equal(t, Sign("abc", payload), gotHeaders.Get(SignatureHeader))
	assert.Equal(t, gotHeaders.Get(SignatureHeader), sentHeaders[SignatureHeader])
}

func TestDispatchNoSecretOmitsSignature(t *testing.T) {
	var gotHeaders http.Header
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	d := NewDispatcher(5*time.Second, 0)
	wh := &webhooks.Webhook{URL: receiver.URL}

	result, sentHeaders := d.Dispatch(context.Background(), wh, "delivery-1", "session.started", []byte(`{}`))

	require.True(t, result.Success)
	_, present := gotHeaders[SignatureHeader]
	assert.False(t, present, "signature header must be absent when no secret is configured")
	_, present = sentHeaders[SignatureHeader]
	assert.False(t, present)
}

func TestDispatchNon2xxIsRetryableFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"Server error", http.StatusInternalServerError},
		{"Not found", http.StatusNotFound},
		{"Rate limited", http.StatusTooManyRequests},
		{"Bad request", http.StatusBadRequest},
		{"Redirect is not success", http.StatusMovedPermanently},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer receiver.Close()

			d := NewDispatcher(5*time.Second, 0)
			// keep the stdlib client from following redirects into nowhere
			d.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			}

			result, _ := d.Dispatch(context.Background(), &webhooks.Webhook{URL: receiver.URL}, "d", "session.started", []byte(`{}`))

			assert.False(t, result.Success)
			require.NotNil(t, result.ResponseStatus)
			assert.Equal(t, tt.status, *result.ResponseStatus)
			assert.Contains(t, result.ErrorMessage, "endpoint returned status")
		})
	}
}

func TestDispatchConnectionFailure(t *testing.T) {
	// a server that is already closed refuses connections
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := receiver.URL
	receiver.Close()

	d := NewDispatcher(time.Second, 0)
	result, _ := d.Dispatch(context.Background(), &webhooks.Webhook{URL: url}, "d", "session.started", []byte(`{}`))

	assert.False(t, result.Success)
	assert.Nil(t, result.ResponseStatus)
	assert.Contains(t, result.ErrorMessage, "request failed")
}

func TestDispatchResponseBodyCapped(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(strings.Repeat("a", 1024)))
	}))
	defer receiver.Close()

	d := NewDispatcher(5*time.Second, 100)
	result, _ := d.Dispatch(context.Background(), &webhooks.Webhook{URL: receiver.URL}, "d", "session.started", []byte(`{}`))

	require.True(t, result.Success)
	assert.Len(t, result.ResponseBody, 100)
}
