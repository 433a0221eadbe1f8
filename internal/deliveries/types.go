// internal/deliveries/types.go
package deliveries

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Delivery status values. A delivery is terminal once Success or Failed.
const (
	StatusPending    = "pending"
	StatusAttempting = "attempting"
	StatusSuccess    = "success"
	StatusRetrying   = "retrying"
	StatusFailed     = "failed"
)

// Delivery is one logical obligation to deliver a single event to a single
// webhook, potentially spanning multiple attempts. The retry policy is
// snapshotted at creation time so webhook edits never affect in-flight
// deliveries.
type Delivery struct {
	ID                uuid.UUID  `json:"id"`
	AgentID           uuid.UUID  `json:"agent_id"`
	WebhookID         uuid.UUID  `json:"webhook_id"`
	EventID           uuid.UUID  `json:"event_id"`
	SessionID         uuid.UUID  `json:"session_id"`
	EventType         string     `json:"event_type"`
	Status            string     `json:"status"`
	AttemptNumber     int        `json:"attempt_number"`
	MaxAttempts       int        `json:"max_attempts"`
	BackoffMultiplier float64    `json:"backoff_multiplier"`
	InitialDelayMs    int        `json:"initial_delay_ms"`
	NextAttemptAt     time.Time  `json:"next_attempt_at"`
	LastError         *string    `json:"last_error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// DeliveryAttempt is one concrete HTTP call made in service of a delivery.
// Attempts are append-only and immutable once written.
type DeliveryAttempt struct {
	ID             uuid.UUID         `json:"id"`
	DeliveryID     uuid.UUID         `json:"delivery_id"`
	AttemptNumber  int               `json:"attempt_number"`
	StartedAt      time.Time         `json:"started_at"`
	DurationMs     int64             `json:"duration_ms"`
	RequestURL     string            `json:"request_url"`
	RequestMethod  string            `json:"request_method"`
	RequestHeaders map[string]string `json:"request_headers"`
	RequestBody    string            `json:"request_body"`
	ResponseStatus *int              `json:"response_status,omitempty"`
	ResponseBody   *string           `json:"response_body,omitempty"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
}

// AttemptResult is the dispatcher's classification of a single attempt. All
// failure modes are represented here; the dispatcher never returns an error
// for a failed delivery.
type AttemptResult struct {
	Success        bool
	ResponseStatus *int
	ResponseBody   string
	ErrorMessage   string
	DurationMs     int64
}

// EventInfo is the delivery engine's view of the triggering event, loaded by
// the engine's own query so the package stays decoupled from the event
// source.
type EventInfo struct {
	ID        uuid.UUID
	AgentID   uuid.UUID
	SessionID uuid.UUID
	EventType string
	Data      json.RawMessage
	CreatedAt time.Time
}

// ListFilter narrows the delivery log for the audit API.
type ListFilter struct {
	WebhookID *uuid.UUID
	SessionID *uuid.UUID
	Status    string
	Limit     int
}

// DeliveryDetail is a delivery together with its attempt history.
type DeliveryDetail struct {
	Delivery *Delivery          `json:"delivery"`
	Attempts []*DeliveryAttempt `json:"attempts"`
}

// TestResult reports a one-off test dispatch (not recorded in the log).
type TestResult struct {
	Success        bool   `json:"success"`
	ResponseStatus *int   `json:"response_status,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
}
