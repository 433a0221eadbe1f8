package deliveries

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/formhive/webhook-service/internal/testUtil"
	"github.com/formhive/webhook-service/internal/webhooks"
)

func TestPGStoreDeliveryLifecycle(t *testing.T) {
	testutil.SkipIfShort(t)

	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	store := NewPGStore(db)
	registry := webhooks.NewService(db, store)

	userID := testutil.CreateTestUser(t, db, testutil.RandomEmail())
	agentID := testutil.CreateTestAgent(t, db, userID)
	t.Cleanup(func() { testutil.CleanupAgent(t, db, agentID) })

	wh, err := registry.CreateWebhook(ctx, agentID, testutil.FixtureWebhook("https://example.com/hook"))
	require.NoError(t, err)

	sessionID := uuid.New()
	eventID := testutil.CreateTestEvent(t, db, agentID, sessionID, "session.completed", json.RawMessage(`{"name":"Ada"}`))

	event, err := store.GetEventInfo(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, "session.completed", event.EventType)
	assert.Equal(t, sessionID, event.SessionID)

	// creation snapshots the policy and starts pending at attempt 0
	delivery, err := store.CreateForEvent(ctx, wh, event)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, delivery.Status)
	assert.Equal(t, 0, delivery.AttemptNumber)
	assert.Equal(t, wh.RetryPolicy.MaxAttempts, delivery.MaxAttempts)
	assert.Equal(t, wh.RetryPolicy.InitialDelayMs, delivery.InitialDelayMs)

	// claiming moves to attempting and consumes attempt 1
	claimed, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, delivery.ID, claimed[0].ID)
	assert.Equal(t, StatusAttempting, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].AttemptNumber)

	// a second claim finds nothing while the delivery is held
	again, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	// attempt 1 fails and schedules a retry due immediately; the attempt row
	// and the state change land together
	status := 500
	respBody := "upstream error"
	errMsg := "endpoint returned status 500"
	require.NoError(t, store.CompleteAttempt(ctx, &DeliveryAttempt{
		DeliveryID:     delivery.ID,
		AttemptNumber:  1,
		StartedAt:      time.Now(),
		DurationMs:     42,
		RequestURL:     wh.URL,
		RequestMethod:  "POST",
		RequestHeaders: map[string]string{"Content-Type": "application/json"},
		RequestBody:    `{"x":1}`,
		ResponseStatus: &status,
		ResponseBody:   &respBody,
		ErrorMessage:   &errMsg,
	}, AttemptOutcome{
		Status:        StatusRetrying,
		NextAttemptAt: time.Now().Add(-time.Second),
		LastError:     errMsg,
	}))

	claimed, err = store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].AttemptNumber)

	require.NoError(t, store.CompleteAttempt(ctx, &DeliveryAttempt{
		DeliveryID:    delivery.ID,
		AttemptNumber: 2,
		StartedAt:     time.Now(),
		RequestURL:    wh.URL,
		RequestMethod: "POST",
		RequestBody:   `{"x":1}`,
	}, AttemptOutcome{Status: StatusSuccess}))

	got, err := store.GetDelivery(ctx, agentID, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Nil(t, got.LastError)
	assert.NotNil(t, got.CompletedAt)

	attempts, err := store.ListAttempts(ctx, delivery.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].AttemptNumber)
	assert.Equal(t, 2, attempts[1].AttemptNumber)
	require.NotNil(t, attempts[0].ResponseStatus)
	assert.Equal(t, 500, *attempts[0].ResponseStatus)
	assert.Equal(t, "application/json", attempts[0].RequestHeaders["Content-Type"])
}

func TestPGStoreCancelPendingForWebhook(t *testing.T) {
	testutil.SkipIfShort(t)

	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	store := NewPGStore(db)
	registry := webhooks.NewService(db, store)

	userID := testutil.CreateTestUser(t, db, testutil.RandomEmail())
	agentID := testutil.CreateTestAgent(t, db, userID)
	t.Cleanup(func() { testutil.CleanupAgent(t, db, agentID) })

	wh, err := registry.CreateWebhook(ctx, agentID, testutil.FixtureWebhook("https://example.com/hook"))
	require.NoError(t, err)

	eventID := testutil.CreateTestEvent(t, db, agentID, uuid.New(), "session.completed", nil)
	event, err := store.GetEventInfo(ctx, eventID)
	require.NoError(t, err)

	pending, err := store.CreateForEvent(ctx, wh, event)
	require.NoError(t, err)

	n, err := store.CancelPendingForWebhook(ctx, wh.ID, "webhook disabled while delivery was pending")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetDelivery(ctx, agentID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "disabled")

	// terminal deliveries are untouched by a second cancellation sweep
	n, err = store.CancelPendingForWebhook(ctx, wh.ID, "again")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// A failure anywhere inside CompleteAttempt must leave both the delivery and
// the attempt log untouched: no terminal delivery without its audit row, no
// orphaned audit row.
func TestPGStoreCompleteAttemptIsAtomic(t *testing.T) {
	testutil.SkipIfShort(t)

	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	store := NewPGStore(db)
	registry := webhooks.NewService(db, store)

	userID := testutil.CreateTestUser(t, db, testutil.RandomEmail())
	agentID := testutil.CreateTestAgent(t, db, userID)
	t.Cleanup(func() { testutil.CleanupAgent(t, db, agentID) })

	wh, err := registry.CreateWebhook(ctx, agentID, testutil.FixtureWebhook("https://example.com/hook"))
	require.NoError(t, err)

	eventID := testutil.CreateTestEvent(t, db, agentID, uuid.New(), "session.completed", nil)
	event, err := store.GetEventInfo(ctx, eventID)
	require.NoError(t, err)

	delivery, err := store.CreateForEvent(ctx, wh, event)
	require.NoError(t, err)

	claimed, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	attempt := func(n int) *DeliveryAttempt {
		return &DeliveryAttempt{
			DeliveryID:    delivery.ID,
			AttemptNumber: n,
			StartedAt:     time.Now(),
			RequestURL:    wh.URL,
			RequestMethod: "POST",
			RequestBody:   `{}`,
		}
	}

	require.NoError(t, store.CompleteAttempt(ctx, attempt(1), AttemptOutcome{
		Status:        StatusRetrying,
		NextAttemptAt: time.Now().Add(-time.Second),
		LastError:     "endpoint returned status 500",
	}))

	claimed, err = store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// duplicate attempt number violates the unique constraint; the whole call
	// must roll back
	err = store.CompleteAttempt(ctx, attempt(1), AttemptOutcome{Status: StatusSuccess})
	require.Error(t, err)

	got, err := store.GetDelivery(ctx, agentID, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAttempting, got.Status, "failed completion must not change the delivery")
	assert.Nil(t, got.CompletedAt)

	attempts, err := store.ListAttempts(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)

	// an unknown outcome is rejected and the attempt insert rolled back too
	err = store.CompleteAttempt(ctx, attempt(2), AttemptOutcome{Status: "paused"})
	require.Error(t, err)

	attempts, err = store.ListAttempts(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

// A delivery stranded in attempting by a crashed worker becomes claimable
// again once the lease expires, without consuming a second attempt.
func TestPGStoreClaimDueReclaimsStaleAttempting(t *testing.T) {
	testutil.SkipIfShort(t)

	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	store := NewPGStore(db)
	registry := webhooks.NewService(db, store)

	userID := testutil.CreateTestUser(t, db, testutil.RandomEmail())
	agentID := testutil.CreateTestAgent(t, db, userID)
	t.Cleanup(func() { testutil.CleanupAgent(t, db, agentID) })

	wh, err := registry.CreateWebhook(ctx, agentID, testutil.FixtureWebhook("https://example.com/hook"))
	require.NoError(t, err)

	eventID := testutil.CreateTestEvent(t, db, agentID, uuid.New(), "session.completed", nil)
	event, err := store.GetEventInfo(ctx, eventID)
	require.NoError(t, err)

	delivery, err := store.CreateForEvent(ctx, wh, event)
	require.NoError(t, err)

	claimed, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, 1, claimed[0].AttemptNumber)

	// a fresh claim is held by its worker and stays invisible
	again, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	// simulate a worker that died holding the claim
	_, err = db.Exec(ctx,
		`UPDATE deliveries SET updated_at = now() - interval '10 minutes' WHERE id = $1`,
		delivery.ID)
	require.NoError(t, err)

	reclaimed, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, delivery.ID, reclaimed[0].ID)
	assert.Equal(t, StatusAttempting, reclaimed[0].Status)
	assert.Equal(t, 1, reclaimed[0].AttemptNumber,
		"reclaiming must not consume a second attempt; the original claim already did")
}

func TestPGStoreMarkCancelledRestoresAttemptCount(t *testing.T) {
	testutil.SkipIfShort(t)

	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	store := NewPGStore(db)
	registry := webhooks.NewService(db, store)

	userID := testutil.CreateTestUser(t, db, testutil.RandomEmail())
	agentID := testutil.CreateTestAgent(t, db, userID)
	t.Cleanup(func() { testutil.CleanupAgent(t, db, agentID) })

	wh, err := registry.CreateWebhook(ctx, agentID, testutil.FixtureWebhook("https://example.com/hook"))
	require.NoError(t, err)

	eventID := testutil.CreateTestEvent(t, db, agentID, uuid.New(), "session.completed", nil)
	event, err := store.GetEventInfo(ctx, eventID)
	require.NoError(t, err)

	delivery, err := store.CreateForEvent(ctx, wh, event)
	require.NoError(t, err)

	claimed, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, 1, claimed[0].AttemptNumber)

	// cancellation before dispatch hands the consumed attempt back, so the
	// counter matches the zero attempt rows that were written
	require.NoError(t, store.MarkCancelled(ctx, delivery.ID, "webhook was disabled"))

	got, err := store.GetDelivery(ctx, agentID, delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 0, got.AttemptNumber)

	attempts, err := store.ListAttempts(ctx, delivery.ID)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}
