// internal/webhooks/types.go
package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// RetryPolicy controls how a failed delivery is re-attempted. It is
// snapshotted onto every Delivery at creation time, so editing a webhook's
// policy never affects deliveries already in flight.
type RetryPolicy struct {
	MaxAttempts       int     `json:"max_attempts" validate:"required,min=1,max=10"`
	BackoffMultiplier float64 `json:"backoff_multiplier" validate:"required,min=1"`
	InitialDelayMs    int     `json:"initial_delay_ms" validate:"required,min=100"`
}

// Webhook is one configured outbound endpoint owned by an agent.
type Webhook struct {
	ID              uuid.UUID   `json:"id"`
	AgentID         uuid.UUID   `json:"agent_id"`
	URL             string      `json:"url"`
	Secret          string      `json:"-"` // never serialized; masked in responses
	Enabled         bool        `json:"enabled"`
	Triggers        []string    `json:"triggers"`
	PayloadTemplate *string     `json:"payload_template,omitempty"`
	RetryPolicy     RetryPolicy `json:"retry_policy"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// CreateWebhookRequest configures a new webhook. An empty secret is a valid,
// intentionally-unsigned configuration.
type CreateWebhookRequest struct {
	URL             string       `json:"url" validate:"required,max=2048"`
	Secret          string       `json:"secret" validate:"max=128"`
	Enabled         *bool        `json:"enabled,omitempty"`
	Triggers        []string     `json:"triggers" validate:"required,min=1,dive,eventtype"`
	PayloadTemplate *string      `json:"payload_template,omitempty"`
	RetryPolicy     *RetryPolicy `json:"retry_policy,omitempty"`
}

// UpdateWebhookRequest mirrors the create shape; absent fields keep their
// current values.
type UpdateWebhookRequest struct {
	URL             *string      `json:"url,omitempty" validate:"omitempty,max=2048"`
	Secret          *string      `json:"secret,omitempty" validate:"omitempty,max=128"`
	Enabled         *bool        `json:"enabled,omitempty"`
	Triggers        []string     `json:"triggers,omitempty" validate:"omitempty,min=1,dive,eventtype"`
	PayloadTemplate *string      `json:"payload_template,omitempty"`
	RetryPolicy     *RetryPolicy `json:"retry_policy,omitempty"`
}

// WebhookResponse is the API view of a webhook. The secret is masked: only
// presence and the first characters are revealed.
type WebhookResponse struct {
	ID              uuid.UUID   `json:"id"`
	AgentID         uuid.UUID   `json:"agent_id"`
	URL             string      `json:"url"`
	SecretPreview   string      `json:"secret_preview,omitempty"`
	Signed          bool        `json:"signed"`
	Enabled         bool        `json:"enabled"`
	Triggers        []string    `json:"triggers"`
	PayloadTemplate *string     `json:"payload_template,omitempty"`
	RetryPolicy     RetryPolicy `json:"retry_policy"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Default webhook configuration
const (
	DefaultMaxAttempts       = 3
	DefaultBackoffMultiplier = 2.0
	DefaultInitialDelayMs    = 1000

	MaxWebhookURLLength    = 2048
	MaxWebhookSecretLength = 128
)

// DefaultRetryPolicy returns the policy applied when a webhook is created
// without one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       DefaultMaxAttempts,
		BackoffMultiplier: DefaultBackoffMultiplier,
		InitialDelayMs:    DefaultInitialDelayMs,
	}
}
