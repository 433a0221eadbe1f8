package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"

	"github.com/formhive/webhook-service/internal/storage"
	"github.com/formhive/webhook-service/internal/triggers"
)

var (
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrInvalidConfig   = errors.New("invalid webhook configuration")
)

// DeliveryCanceler abandons in-flight deliveries when a webhook is disabled
// or deleted. Implemented by the deliveries store; injected to keep the
// registry free of delivery-table SQL.
type DeliveryCanceler interface {
	CancelPendingForWebhook(ctx context.Context, webhookID uuid.UUID, reason string) (int64, error)
}

type Service struct {
	db       *storage.DB
	canceler DeliveryCanceler
}

func NewService(db *storage.DB, canceler DeliveryCanceler) *Service {
	return &Service{db: db, canceler: canceler}
}

const webhookColumns = `id, agent_id, url, secret, enabled, triggers, payload_template,
	max_attempts, backoff_multiplier, initial_delay_ms, created_at, updated_at`

// CreateWebhook validates and stores a new webhook configuration.
// Configuration errors are rejected here and never reach the dispatcher.
func (s *Service) CreateWebhook(ctx context.Context, agentID uuid.UUID, req CreateWebhookRequest) (*Webhook, error) {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	policy := DefaultRetryPolicy()
	if req.RetryPolicy != nil {
		policy = *req.RetryPolicy
	}

	wh := &Webhook{
		AgentID:         agentID,
		URL:             req.URL,
		Secret:          req.Secret,
		Enabled:         enabled,
		Triggers:        req.Triggers,
		PayloadTemplate: req.PayloadTemplate,
		RetryPolicy:     policy,
	}

	if err := ValidateWebhookConfig(wh); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO webhooks (agent_id, url, secret, enabled, triggers, payload_template,
		        max_attempts, backoff_multiplier, initial_delay_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+webhookColumns,
		agentID, wh.URL, wh.Secret, wh.Enabled, wh.Triggers, wh.PayloadTemplate,
		policy.MaxAttempts, policy.BackoffMultiplier, policy.InitialDelayMs)

	created, err := scanWebhook(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}

	log.Printf("Webhook %s created for agent %s -> %s (triggers: %v)", created.ID, agentID, created.URL, created.Triggers)
	return created, nil
}

// UpdateWebhook applies a partial update; the merged configuration is
// re-validated as a whole.
func (s *Service) UpdateWebhook(ctx context.Context, agentID, webhookID uuid.UUID, req UpdateWebhookRequest) (*Webhook, error) {
	wh, err := s.GetWebhook(ctx, agentID, webhookID)
	if err != nil {
		return nil, err
	}

	wasEnabled := wh.Enabled

	if req.URL != nil {
		wh.URL = *req.URL
	}
	if req.Secret != nil {
		wh.Secret = *req.Secret
	}
	if req.Enabled != nil {
		wh.Enabled = *req.Enabled
	}
	if req.Triggers != nil {
		wh.Triggers = req.Triggers
	}
	if req.PayloadTemplate != nil {
		wh.PayloadTemplate = req.PayloadTemplate
	}
	if req.RetryPolicy != nil {
		wh.RetryPolicy = *req.RetryPolicy
	}

	if err := ValidateWebhookConfig(wh); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx,
		`UPDATE webhooks
		 SET url = $1, secret = $2, enabled = $3, triggers = $4, payload_template = $5,
		     max_attempts = $6, backoff_multiplier = $7, initial_delay_ms = $8, updated_at = now()
		 WHERE id = $9 AND agent_id = $10
		 RETURNING `+webhookColumns,
		wh.URL, wh.Secret, wh.Enabled, wh.Triggers, wh.PayloadTemplate,
		wh.RetryPolicy.MaxAttempts, wh.RetryPolicy.BackoffMultiplier, wh.RetryPolicy.InitialDelayMs,
		webhookID, agentID)

	updated, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWebhookNotFound
		}
		return nil, fmt.Errorf("failed to update webhook: %w", err)
	}

	// Disabling abandons any pending retries so a dead endpoint stops
	// consuming worker capacity immediately.
	if wasEnabled && !updated.Enabled {
		s.cancelInFlight(ctx, webhookID, "webhook disabled while delivery was pending")
	}

	return updated, nil
}

// GetWebhook returns one webhook scoped to its owning agent.
func (s *Service) GetWebhook(ctx context.Context, agentID, webhookID uuid.UUID) (*Webhook, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1 AND agent_id = $2`,
		webhookID, agentID)

	wh, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWebhookNotFound
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return wh, nil
}

// GetWebhookByID returns one webhook regardless of agent scope. Used by the
// delivery worker, which holds only the webhook ID snapshotted on a delivery.
func (s *Service) GetWebhookByID(ctx context.Context, webhookID uuid.UUID) (*Webhook, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, webhookID)

	wh, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWebhookNotFound
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return wh, nil
}

// ListWebhooks returns all webhooks owned by an agent.
func (s *Service) ListWebhooks(ctx context.Context, agentID uuid.UUID) ([]*Webhook, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE agent_id = $1 ORDER BY created_at DESC`,
		agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	return scanWebhooks(rows)
}

// FindEnabledWebhooks returns the enabled webhooks of an agent subscribed to
// eventType. A miss is an empty slice, never an error. Unknown trigger values
// stored on a webhook simply never match.
func (s *Service) FindEnabledWebhooks(ctx context.Context, agentID uuid.UUID, eventType string) ([]*Webhook, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+webhookColumns+`
		 FROM webhooks
		 WHERE agent_id = $1 AND enabled = true AND $2 = ANY(triggers)
		 ORDER BY created_at`,
		agentID, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to find enabled webhooks: %w", err)
	}
	defer rows.Close()

	return scanWebhooks(rows)
}

// DeleteWebhook removes a webhook configuration. Historical deliveries and
// attempts are retained for audit; in-flight deliveries are abandoned.
func (s *Service) DeleteWebhook(ctx context.Context, agentID, webhookID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM webhooks WHERE id = $1 AND agent_id = $2`, webhookID, agentID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWebhookNotFound
	}

	s.cancelInFlight(ctx, webhookID, "webhook deleted while delivery was pending")

	log.Printf("Webhook %s deleted for agent %s", webhookID, agentID)
	return nil
}

func (s *Service) cancelInFlight(ctx context.Context, webhookID uuid.UUID, reason string) {
	if s.canceler == nil {
		return
	}
	n, err := s.canceler.CancelPendingForWebhook(ctx, webhookID, reason)
	if err != nil {
		log.Printf("Failed to cancel pending deliveries for webhook %s: %v", webhookID, err)
		return
	}
	if n > 0 {
		log.Printf("Cancelled %d pending deliveries for webhook %s", n, webhookID)
	}
}

// ValidateWebhookConfig checks the full configuration and reports every
// problem at once.
func ValidateWebhookConfig(wh *Webhook) error {
	var result *multierror.Error

	if err := validateURL(wh.URL); err != nil {
		result = multierror.Append(result, err)
	}

	if len(wh.Triggers) == 0 {
		result = multierror.Append(result, errors.New("at least one trigger is required"))
	}
	for _, trigger := range wh.Triggers {
		if !triggers.IsValidEventType(trigger) {
			result = multierror.Append(result, fmt.Errorf("unknown trigger %q", trigger))
		}
	}

	if len(wh.Secret) > MaxWebhookSecretLength {
		result = multierror.Append(result, fmt.Errorf("secret must be at most %d characters", MaxWebhookSecretLength))
	}

	p := wh.RetryPolicy
	if p.MaxAttempts < 1 {
		result = multierror.Append(result, errors.New("retry policy max_attempts must be at least 1"))
	}
	if p.BackoffMultiplier < 1 {
		result = multierror.Append(result, errors.New("retry policy backoff_multiplier must be at least 1"))
	}
	if p.InitialDelayMs < 100 {
		result = multierror.Append(result, errors.New("retry policy initial_delay_ms must be at least 100"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url is required")
	}
	if len(rawURL) > MaxWebhookURLLength {
		return fmt.Errorf("url must be at most %d characters", MaxWebhookURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("url is not valid: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url is missing a host")
	}
	return nil
}

// ToResponse masks the secret for API output.
func (wh *Webhook) ToResponse() *WebhookResponse {
	return &WebhookResponse{
		ID:              wh.ID,
		AgentID:         wh.AgentID,
		URL:             wh.URL,
		SecretPreview:   maskSecret(wh.Secret),
		Signed:          wh.Secret != "",
		Enabled:         wh.Enabled,
		Triggers:        wh.Triggers,
		PayloadTemplate: wh.PayloadTemplate,
		RetryPolicy:     wh.RetryPolicy,
		CreatedAt:       wh.CreatedAt,
		UpdatedAt:       wh.UpdatedAt,
	}
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", 8)
}

func scanWebhook(row pgx.Row) (*Webhook, error) {
	var wh Webhook
	err := row.Scan(&wh.ID, &wh.AgentID, &wh.URL, &wh.Secret, &wh.Enabled, &wh.Triggers,
		&wh.PayloadTemplate, &wh.RetryPolicy.MaxAttempts, &wh.RetryPolicy.BackoffMultiplier,
		&wh.RetryPolicy.InitialDelayMs, &wh.CreatedAt, &wh.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

func scanWebhooks(rows pgx.Rows) ([]*Webhook, error) {
	var webhooks []*Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read webhooks: %w", err)
	}
	return webhooks, nil
}
