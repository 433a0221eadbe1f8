// internal/deliveries/service.go
package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formhive/webhook-service/internal/webhooks"
)

var (
	// ErrResendNotAllowed is returned when a resend targets a delivery that is
	// still in flight.
	ErrResendNotAllowed = errors.New("delivery is still in progress")
	// ErrWebhookUnavailable is returned when a resend or test targets a
	// webhook that is deleted or disabled.
	ErrWebhookUnavailable = errors.New("webhook is disabled or no longer exists")
)

// Service exposes the delivery audit log and manual operations: listing,
// inspection, resend, and one-off webhook tests.
type Service struct {
	store      *PGStore
	registry   *webhooks.Service
	dispatcher *Dispatcher
}

func NewService(store *PGStore, registry *webhooks.Service, dispatcher *Dispatcher) *Service {
	return &Service{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
	}
}

// ListDeliveries returns the delivery log for an agent, optionally filtered
// by webhook, session, or status.
func (s *Service) ListDeliveries(ctx context.Context, agentID uuid.UUID, filter ListFilter) ([]*Delivery, error) {
	return s.store.ListDeliveries(ctx, agentID, filter)
}

// GetDelivery returns one delivery with its complete attempt history.
func (s *Service) GetDelivery(ctx context.Context, agentID, deliveryID uuid.UUID) (*DeliveryDetail, error) {
	delivery, err := s.store.GetDelivery(ctx, agentID, deliveryID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.store.ListAttempts(ctx, delivery.ID)
	if err != nil {
		return nil, err
	}

	return &DeliveryDetail{
		Delivery: delivery,
		Attempts: attempts,
	}, nil
}

// Resend creates a new delivery for the same event and webhook. The attempt
// sequence restarts at zero and the retry policy is re-snapshotted from the
// webhook's current configuration, so a corrected policy applies to the new
// delivery. The original delivery and its attempt records are untouched.
func (s *Service) Resend(ctx context.Context, agentID, deliveryID uuid.UUID) (*Delivery, error) {
	original, err := s.store.GetDelivery(ctx, agentID, deliveryID)
	if err != nil {
		return nil, err
	}

	if original.Status != StatusSuccess && original.Status != StatusFailed {
		return nil, ErrResendNotAllowed
	}

	wh, err := s.registry.GetWebhook(ctx, agentID, original.WebhookID)
	if err != nil {
		if errors.Is(err, webhooks.ErrWebhookNotFound) {
			return nil, ErrWebhookUnavailable
		}
		return nil, err
	}
	if !wh.Enabled {
		return nil, ErrWebhookUnavailable
	}

	event, err := s.store.GetEventInfo(ctx, original.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load original event: %w", err)
	}

	return s.store.CreateForEvent(ctx, wh, event)
}

// TestWebhook sends a synthetic signed payload to a webhook's endpoint and
// reports the outcome. Nothing is recorded in the delivery log.
func (s *Service) TestWebhook(ctx context.Context, agentID, webhookID uuid.UUID) (*TestResult, error) {
	wh, err := s.registry.GetWebhook(ctx, agentID, webhookID)
	if err != nil {
		return nil, err
	}

	event := &EventInfo{
		ID:        uuid.New(),
		AgentID:   agentID,
		SessionID: uuid.New(),
		EventType: "webhook.test",
		Data:      []byte(`{"test":true}`),
		CreatedAt: time.Now().UTC(),
	}

	payload := BuildPayload(wh, event)
	result, _ := s.dispatcher.Dispatch(ctx, wh, event.ID.String(), event.EventType, payload)

	return &TestResult{
		Success:        result.Success,
		ResponseStatus: result.ResponseStatus,
		ErrorMessage:   result.ErrorMessage,
		DurationMs:     result.DurationMs,
	}, nil
}
