package deliveries

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formhive/webhook-service/internal/webhooks"
)

// WebhookRegistry is the read surface the worker needs from the webhook
// registry: the current configuration of a webhook, regardless of owner.
type WebhookRegistry interface {
	GetWebhookByID(ctx context.Context, webhookID uuid.UUID) (*webhooks.Webhook, error)
}

// WorkerConfig tunes the delivery worker pool.
type WorkerConfig struct {
	// WorkerCount is the number of concurrent dispatch workers.
	WorkerCount int
	// PollInterval is how often the poller looks for due deliveries.
	PollInterval time.Duration
	// ClaimBatchSize caps how many deliveries one poll claims.
	ClaimBatchSize int
}

// Worker drives deliveries to completion. A single poller claims due
// deliveries in batches and fans them out to a fixed pool of dispatch
// goroutines. Claiming is atomic at the store level, so multiple service
// instances can run workers against the same database.
type Worker struct {
	store      Store
	registry   WebhookRegistry
	dispatcher *Dispatcher
	config     WorkerConfig

	now func() time.Time

	jobs   chan *Delivery
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(store Store, registry WebhookRegistry, dispatcher *Dispatcher, config WorkerConfig) *Worker {
	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.ClaimBatchSize < 1 {
		config.ClaimBatchSize = 20
	}
	return &Worker{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		config:     config,
		now:        time.Now,
		jobs:       make(chan *Delivery),
	}
}

// Start launches the poller and dispatch workers. It returns immediately.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx)
	}

	w.wg.Add(1)
	go w.runPoller(ctx)

	log.Printf("Delivery worker started (%d workers, polling every %s)",
		w.config.WorkerCount, w.config.PollInterval)
}

// Stop shuts the pool down and waits for in-flight dispatches to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	log.Println("Delivery worker stopped")
}

func (w *Worker) runPoller(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	claimed, err := w.store.ClaimDue(ctx, w.config.ClaimBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Failed to claim due deliveries: %v", err)
		}
		return
	}

	for _, delivery := range claimed {
		select {
		case w.jobs <- delivery:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runWorker(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case delivery := <-w.jobs:
			w.process(ctx, delivery)
		}
	}
}

// process executes one claimed attempt end to end: re-read the webhook,
// build and send the payload, record the attempt, and move the delivery to
// its next state.
func (w *Worker) process(ctx context.Context, delivery *Delivery) {
	wh, err := w.registry.GetWebhookByID(ctx, delivery.WebhookID)
	if err != nil {
		if errors.Is(err, webhooks.ErrWebhookNotFound) {
			w.cancelDelivery(ctx, delivery, "webhook was deleted")
			return
		}
		// Transient read failure: put the delivery back into rotation without
		// consuming an attempt.
		log.Printf("Failed to load webhook %s for delivery %s: %v", delivery.WebhookID, delivery.ID, err)
		w.release(ctx, delivery)
		return
	}
	if !wh.Enabled {
		w.cancelDelivery(ctx, delivery, "webhook was disabled")
		return
	}

	event, err := w.store.GetEventInfo(ctx, delivery.EventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			w.cancelDelivery(ctx, delivery, "triggering event no longer exists")
			return
		}
		log.Printf("Failed to load event %s for delivery %s: %v", delivery.EventID, delivery.ID, err)
		w.release(ctx, delivery)
		return
	}

	payload := BuildPayload(wh, event)
	startedAt := w.now()
	result, sentHeaders := w.dispatcher.Dispatch(ctx, wh, delivery.ID.String(), delivery.EventType, payload)

	attempt := &DeliveryAttempt{
		DeliveryID:     delivery.ID,
		AttemptNumber:  delivery.AttemptNumber,
		StartedAt:      startedAt,
		DurationMs:     result.DurationMs,
		RequestURL:     wh.URL,
		RequestMethod:  "POST",
		RequestHeaders: sentHeaders,
		RequestBody:    string(payload),
		ResponseStatus: result.ResponseStatus,
	}
	if result.ResponseBody != "" {
		attempt.ResponseBody = &result.ResponseBody
	}
	if result.ErrorMessage != "" {
		attempt.ErrorMessage = &result.ErrorMessage
	}
	// Attempt row and state change land in one store call, so the audit
	// trail can never disagree with the delivery's status.
	var outcome AttemptOutcome
	switch {
	case result.Success:
		outcome = AttemptOutcome{Status: StatusSuccess}
	case delivery.AttemptNumber >= delivery.MaxAttempts:
		outcome = AttemptOutcome{
			Status:    StatusFailed,
			LastError: fmt.Sprintf("exhausted %d attempts: %s", delivery.MaxAttempts, result.ErrorMessage),
		}
	default:
		outcome = AttemptOutcome{
			Status:        StatusRetrying,
			NextAttemptAt: w.now().Add(backoffDelay(delivery)),
			LastError:     result.ErrorMessage,
		}
	}

	if err := w.store.CompleteAttempt(ctx, attempt, outcome); err != nil {
		log.Printf("Failed to complete attempt %d of delivery %s: %v", delivery.AttemptNumber, delivery.ID, err)
	}
}

// cancelDelivery terminates a claimed delivery that will never be dispatched,
// keeping the attempt counter aligned with the attempts actually made.
func (w *Worker) cancelDelivery(ctx context.Context, delivery *Delivery, reason string) {
	if err := w.store.MarkCancelled(ctx, delivery.ID, reason); err != nil {
		log.Printf("Failed to cancel delivery %s: %v", delivery.ID, err)
	}
}

// release puts a claimed delivery back into the queue after a transient
// infrastructure failure, without consuming an attempt.
func (w *Worker) release(ctx context.Context, delivery *Delivery) {
	if err := w.store.Release(ctx, delivery.ID); err != nil {
		log.Printf("Failed to release delivery %s: %v", delivery.ID, err)
	}
}

// backoffDelay computes the wait before the attempt after delivery's current
// one: initialDelayMs doubled (or whatever the multiplier says) per completed
// attempt. Attempt 1 failing waits initialDelayMs, attempt 2 waits
// initialDelayMs*multiplier, and so on. No jitter is applied, so retry
// timing is exact and predictable.
func backoffDelay(delivery *Delivery) time.Duration {
	delay := float64(delivery.InitialDelayMs) * math.Pow(delivery.BackoffMultiplier, float64(delivery.AttemptNumber-1))
	return time.Duration(delay) * time.Millisecond
}
