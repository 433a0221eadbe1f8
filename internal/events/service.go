// internal/events/service.go
package events

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/formhive/webhook-service/internal/deliveries"
	"github.com/formhive/webhook-service/internal/storage"
	"github.com/formhive/webhook-service/internal/webhooks"
)

// DeliveryCreator enqueues one pending delivery for an (event, webhook)
// pair. Implemented by the deliveries store; injected so the event pipeline
// depends only on this surface.
type DeliveryCreator interface {
	CreateForEvent(ctx context.Context, wh *webhooks.Webhook, event *deliveries.EventInfo) (*deliveries.Delivery, error)
}

// Service persists lifecycle events and fans them out to subscribed webhooks.
type Service struct {
	db         *storage.DB
	registry   *webhooks.Service
	deliveries DeliveryCreator
}

func NewService(db *storage.DB, registry *webhooks.Service, deliveryStore DeliveryCreator) *Service {
	return &Service{
		db:         db,
		registry:   registry,
		deliveries: deliveryStore,
	}
}

// Publish stores the event and creates one pending delivery per enabled
// webhook subscribed to its type. The event row is written even when no
// webhook matches, so the session history is complete.
func (s *Service) Publish(ctx context.Context, agentID uuid.UUID, req RaiseEventRequest) (*RaiseEventResponse, error) {
	data := req.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	var event Event
	err := s.db.QueryRow(ctx,
		`INSERT INTO events (agent_id, session_id, event_type, data)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, agent_id, session_id, event_type, data, created_at`,
		agentID, req.SessionID, req.EventType, data).
		Scan(&event.ID, &event.AgentID, &event.SessionID, &event.EventType, &event.Data, &event.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	matched, err := s.registry.FindEnabledWebhooks(ctx, agentID, req.EventType)
	if err != nil {
		return nil, fmt.Errorf("failed to match webhooks: %w", err)
	}

	info := &deliveries.EventInfo{
		ID:        event.ID,
		AgentID:   event.AgentID,
		SessionID: event.SessionID,
		EventType: event.EventType,
		Data:      event.Data,
		CreatedAt: event.CreatedAt,
	}

	created := 0
	for _, wh := range matched {
		if _, err := s.deliveries.CreateForEvent(ctx, wh, info); err != nil {
			// One webhook's delivery failing to enqueue must not block the
			// others; the event itself is already durable.
			log.Printf("Failed to create delivery for webhook %s, event %s: %v", wh.ID, event.ID, err)
			continue
		}
		created++
	}

	if created > 0 {
		log.Printf("Event %s (%s) fanned out to %d webhook(s)", event.ID, event.EventType, created)
	}

	return &RaiseEventResponse{
		Event:      &event,
		Deliveries: created,
	}, nil
}

// ListSessionEvents returns the events recorded for one session, oldest first.
func (s *Service) ListSessionEvents(ctx context.Context, agentID, sessionID uuid.UUID) ([]*Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, session_id, event_type, data, created_at
		 FROM events
		 WHERE agent_id = $1 AND session_id = $2
		 ORDER BY created_at`,
		agentID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var result []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AgentID, &e.SessionID, &e.EventType, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return result, nil
}
