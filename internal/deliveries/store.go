package deliveries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/formhive/webhook-service/internal/storage"
	"github.com/formhive/webhook-service/internal/webhooks"
)

var (
	ErrDeliveryNotFound = errors.New("delivery not found")
	ErrEventNotFound    = errors.New("event not found")
)

// Store is the persistence surface the worker depends on. Tests substitute
// an in-memory implementation.
type Store interface {
	ClaimDue(ctx context.Context, limit int) ([]*Delivery, error)
	GetEventInfo(ctx context.Context, eventID uuid.UUID) (*EventInfo, error)
	CompleteAttempt(ctx context.Context, attempt *DeliveryAttempt, outcome AttemptOutcome) error
	MarkCancelled(ctx context.Context, deliveryID uuid.UUID, reason string) error
	Release(ctx context.Context, deliveryID uuid.UUID) error
}

// AttemptOutcome is the delivery's next state after a finished attempt:
// terminal success, terminal failure, or a scheduled retry.
type AttemptOutcome struct {
	Status        string
	NextAttemptAt time.Time // only read when Status is retrying
	LastError     string
}

// execer is satisfied by both the pool and pgx.Tx, so the attempt queries can
// run standalone or inside a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// attemptLease bounds how long a claimed delivery may sit in attempting
// before another worker may reclaim it. Well above the dispatch timeout, so
// only a crashed worker ever forfeits a claim.
const attemptLease = 5 * time.Minute

// PGStore is the PostgreSQL-backed store for deliveries and their attempt
// audit trail.
type PGStore struct {
	db *storage.DB
}

func NewPGStore(db *storage.DB) *PGStore {
	return &PGStore{db: db}
}

const deliveryColumns = `id, agent_id, webhook_id, event_id, session_id, event_type, status,
	attempt_number, max_attempts, backoff_multiplier, initial_delay_ms,
	next_attempt_at, last_error, created_at, updated_at, completed_at`

// CreateForEvent creates one pending delivery for an (event, webhook) pair,
// snapshotting the webhook's current retry policy.
func (s *PGStore) CreateForEvent(ctx context.Context, wh *webhooks.Webhook, event *EventInfo) (*Delivery, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO deliveries (agent_id, webhook_id, event_id, session_id, event_type,
		        max_attempts, backoff_multiplier, initial_delay_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+deliveryColumns,
		event.AgentID, wh.ID, event.ID, event.SessionID, event.EventType,
		wh.RetryPolicy.MaxAttempts, wh.RetryPolicy.BackoffMultiplier, wh.RetryPolicy.InitialDelayMs)

	d, err := scanDelivery(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}
	return d, nil
}

// ClaimDue atomically claims due deliveries for dispatch: status moves to
// attempting and the attempt counter is incremented in the same statement, so
// no two workers can ever hold the same delivery. SKIP LOCKED keeps
// concurrent pollers from blocking each other.
//
// Deliveries stuck in attempting past the lease (a worker died mid-dispatch)
// are reclaimed too. Their claim already consumed the attempt counter without
// writing an attempt row, so reclaiming does not increment it again.
func (s *PGStore) ClaimDue(ctx context.Context, limit int) ([]*Delivery, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE deliveries
		 SET status = $1,
		     attempt_number = attempt_number + CASE WHEN status = $1 THEN 0 ELSE 1 END,
		     updated_at = now()
		 WHERE id IN (
		     SELECT id FROM deliveries
		     WHERE (status IN ($2, $3) AND next_attempt_at <= now())
		        OR (status = $1 AND updated_at < now() - $4::interval)
		     ORDER BY next_attempt_at
		     LIMIT $5
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+deliveryColumns,
		StatusAttempting, StatusPending, StatusRetrying, attemptLease, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// GetEventInfo loads the triggering event for payload construction.
func (s *PGStore) GetEventInfo(ctx context.Context, eventID uuid.UUID) (*EventInfo, error) {
	var info EventInfo
	err := s.db.QueryRow(ctx,
		`SELECT id, agent_id, session_id, event_type, data, created_at
		 FROM events WHERE id = $1`, eventID).
		Scan(&info.ID, &info.AgentID, &info.SessionID, &info.EventType, &info.Data, &info.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &info, nil
}

// CompleteAttempt appends the attempt row and applies the delivery's next
// state in one transaction, so a delivery can never reach a terminal or
// retrying state without its audit row (or the other way around).
func (s *PGStore) CompleteAttempt(ctx context.Context, attempt *DeliveryAttempt, outcome AttemptOutcome) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := recordAttempt(ctx, tx, attempt); err != nil {
		return err
	}
	if err := applyOutcome(ctx, tx, attempt.DeliveryID, outcome); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// recordAttempt appends one immutable attempt row. The unique constraint on
// (delivery_id, attempt_number) guarantees exactly one row per attempt.
func recordAttempt(ctx context.Context, db execer, attempt *DeliveryAttempt) error {
	headersJSON, err := json.Marshal(attempt.RequestHeaders)
	if err != nil {
		return fmt.Errorf("failed to serialize request headers: %w", err)
	}

	_, err = db.Exec(ctx,
		`INSERT INTO delivery_attempts (delivery_id, attempt_number, started_at, duration_ms,
		        request_url, request_method, request_headers, request_body,
		        response_status, response_body, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		attempt.DeliveryID, attempt.AttemptNumber, attempt.StartedAt, attempt.DurationMs,
		attempt.RequestURL, attempt.RequestMethod, headersJSON, attempt.RequestBody,
		attempt.ResponseStatus, attempt.ResponseBody, attempt.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}

func applyOutcome(ctx context.Context, db execer, deliveryID uuid.UUID, outcome AttemptOutcome) error {
	switch outcome.Status {
	case StatusSuccess:
		return transitionExec(ctx, db,
			`UPDATE deliveries
			 SET status = $1, last_error = NULL, completed_at = now(), updated_at = now()
			 WHERE id = $2 AND status = $3`,
			StatusSuccess, deliveryID, StatusAttempting)
	case StatusRetrying:
		return transitionExec(ctx, db,
			`UPDATE deliveries
			 SET status = $1, next_attempt_at = $2, last_error = $3, updated_at = now()
			 WHERE id = $4 AND status = $5`,
			StatusRetrying, outcome.NextAttemptAt, outcome.LastError, deliveryID, StatusAttempting)
	case StatusFailed:
		return transitionExec(ctx, db,
			`UPDATE deliveries
			 SET status = $1, last_error = $2, completed_at = now(), updated_at = now()
			 WHERE id = $3 AND status = $4`,
			StatusFailed, outcome.LastError, deliveryID, StatusAttempting)
	default:
		return fmt.Errorf("invalid attempt outcome %q", outcome.Status)
	}
}

// MarkFailed transitions an attempting delivery to its terminal failed state
// without an attempt row, for paths where no HTTP call was ever made.
func (s *PGStore) MarkFailed(ctx context.Context, deliveryID uuid.UUID, lastError string) error {
	return applyOutcome(ctx, s.db, deliveryID, AttemptOutcome{
		Status:    StatusFailed,
		LastError: lastError,
	})
}

// MarkCancelled abandons a claimed delivery without dispatching (webhook
// disabled or deleted between claim and dispatch). The attempt counter is
// rolled back so it keeps counting actual HTTP attempts.
func (s *PGStore) MarkCancelled(ctx context.Context, deliveryID uuid.UUID, reason string) error {
	return s.transition(ctx,
		`UPDATE deliveries
		 SET status = $1, attempt_number = attempt_number - 1, last_error = $2,
		     completed_at = now(), updated_at = now()
		 WHERE id = $3 AND status = $4`,
		StatusFailed, reason, deliveryID, StatusAttempting)
}

// Release returns a claimed delivery to the queue without consuming an
// attempt, for transient infrastructure failures between claim and dispatch.
func (s *PGStore) Release(ctx context.Context, deliveryID uuid.UUID) error {
	return s.transition(ctx,
		`UPDATE deliveries
		 SET status = $1, attempt_number = attempt_number - 1, updated_at = now()
		 WHERE id = $2 AND status = $3`,
		StatusRetrying, deliveryID, StatusAttempting)
}

func (s *PGStore) transition(ctx context.Context, query string, args ...any) error {
	return transitionExec(ctx, s.db, query, args...)
}

func transitionExec(ctx context.Context, db execer, query string, args ...any) error {
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// CancelPendingForWebhook marks all pending/retrying deliveries of a webhook
// as failed with an explanatory message. Used when a webhook is disabled or
// deleted so pending retries are abandoned, not retried into the void.
func (s *PGStore) CancelPendingForWebhook(ctx context.Context, webhookID uuid.UUID, reason string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE deliveries
		 SET status = $1, last_error = $2, completed_at = now(), updated_at = now()
		 WHERE webhook_id = $3 AND status IN ($4, $5)`,
		StatusFailed, reason, webhookID, StatusPending, StatusRetrying)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetDelivery returns one delivery scoped to its owning agent.
func (s *PGStore) GetDelivery(ctx context.Context, agentID, deliveryID uuid.UUID) (*Delivery, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1 AND agent_id = $2`,
		deliveryID, agentID)

	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return d, nil
}

// ListDeliveries returns the delivery log for an agent, newest first.
func (s *PGStore) ListDeliveries(ctx context.Context, agentID uuid.UUID, filter ListFilter) ([]*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE agent_id = $1`
	args := []any{agentID}

	if filter.WebhookID != nil {
		args = append(args, *filter.WebhookID)
		query += fmt.Sprintf(" AND webhook_id = $%d", len(args))
	}
	if filter.SessionID != nil {
		args = append(args, *filter.SessionID)
		query += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// ListAttempts returns the attempt history of a delivery in attempt order.
func (s *PGStore) ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]*DeliveryAttempt, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, delivery_id, attempt_number, started_at, duration_ms,
		        request_url, request_method, request_headers, request_body,
		        response_status, response_body, error_message
		 FROM delivery_attempts
		 WHERE delivery_id = $1
		 ORDER BY attempt_number`,
		deliveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*DeliveryAttempt
	for rows.Next() {
		var a DeliveryAttempt
		var headersJSON []byte
		err := rows.Scan(&a.ID, &a.DeliveryID, &a.AttemptNumber, &a.StartedAt, &a.DurationMs,
			&a.RequestURL, &a.RequestMethod, &headersJSON, &a.RequestBody,
			&a.ResponseStatus, &a.ResponseBody, &a.ErrorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		if err := json.Unmarshal(headersJSON, &a.RequestHeaders); err != nil {
			a.RequestHeaders = map[string]string{}
		}
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read delivery attempts: %w", err)
	}
	return attempts, nil
}

func scanDelivery(row pgx.Row) (*Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.AgentID, &d.WebhookID, &d.EventID, &d.SessionID, &d.EventType,
		&d.Status, &d.AttemptNumber, &d.MaxAttempts, &d.BackoffMultiplier, &d.InitialDelayMs,
		&d.NextAttemptAt, &d.LastError, &d.CreatedAt, &d.UpdatedAt, &d.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDeliveries(rows pgx.Rows) ([]*Delivery, error) {
	var deliveries []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read deliveries: %w", err)
	}
	return deliveries, nil
}
