// internal/events/types.go
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one conversational-session lifecycle occurrence, persisted
// append-only. Deliveries reference events by ID.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	AgentID   uuid.UUID       `json:"agent_id"`
	SessionID uuid.UUID       `json:"session_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// RaiseEventRequest is the ingestion DTO used by the session runtime.
type RaiseEventRequest struct {
	SessionID uuid.UUID       `json:"session_id" validate:"required"`
	EventType string          `json:"event_type" validate:"required,eventtype"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RaiseEventResponse reports the stored event and how many deliveries it
// fanned out to.
type RaiseEventResponse struct {
	Event      *Event `json:"event"`
	Deliveries int    `json:"deliveries_created"`
}
