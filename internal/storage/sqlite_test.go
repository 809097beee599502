package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecrm/hookd/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func seedAccount(t *testing.T, store *SQLiteStorage) *models.Account {
	t.Helper()
	now := time.Now().UTC()
	acc := &models.Account{
		ID:        models.NewID("acc"),
		Name:      "acme",
		APIKey:    models.NewAPIKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateAccount(context.Background(), acc))
	return acc
}

func TestSQLite_WebhookRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := seedAccount(t, store)

	now := time.Now().UTC().Truncate(time.Second)
	wh := &models.Webhook{
		ID:         models.NewID("wh"),
		AccountID:  acc.ID,
		Name:       "slack notifier",
		URL:        "https://hooks.example.com/x",
		Method:     "POST",
		Events:     []string{"contact.created", "lead.converted"},
		AuthType:   models.AuthHMAC,
		AuthConfig: map[string]string{"secret": "whsec_1"},
		Headers:    map[string]string{"X-Tenant": "acme"},
		Conditions: []models.Condition{
			{Field: "amount", Operator: "greater_than", Value: float64(1000)},
		},
		PayloadTemplate:    `{"t":"{{.id}}"}`,
		IncludeFullPayload: true,
		Retry:              models.RetryPolicy{Enabled: true, MaxRetries: 5, DelaySeconds: 30},
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, store.CreateWebhook(ctx, wh))

	got, err := store.GetWebhook(ctx, wh.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, wh.Events, got.Events)
	assert.Equal(t, wh.AuthType, got.AuthType)
	assert.Equal(t, wh.AuthConfig, got.AuthConfig)
	assert.Equal(t, wh.Headers, got.Headers)
	assert.Equal(t, wh.Retry, got.Retry)
	assert.Equal(t, wh.PayloadTemplate, got.PayloadTemplate)
	require.Len(t, got.Conditions, 1)
	assert.Equal(t, "greater_than", got.Conditions[0].Operator)
	assert.True(t, got.Active)
}

func TestSQLite_GetWebhookMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetWebhook(context.Background(), "wh_missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ListDueAttempts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := seedAccount(t, store)

	now := time.Now().UTC()
	wh := &models.Webhook{ID: models.NewID("wh"), AccountID: acc.ID, URL: "https://x", Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateWebhook(ctx, wh))
	evt := &models.Event{ID: models.NewID("evt"), Name: "contact.created", Payload: []byte("{}"), CreatedAt: now}
	require.NoError(t, store.CreateEvent(ctx, evt))

	mkAttempt := func(status models.AttemptStatus, scheduledAt time.Time) *models.DeliveryAttempt {
		a := &models.DeliveryAttempt{
			ID:            models.NewID("att"),
			WebhookID:     wh.ID,
			EventID:       evt.ID,
			EventName:     evt.Name,
			AttemptNumber: 1,
			Status:        status,
			RequestURL:    wh.URL,
			RequestMethod: "POST",
			ScheduledAt:   scheduledAt,
			CreatedAt:     now,
		}
		require.NoError(t, store.CreateAttempt(ctx, a))
		return a
	}

	due := mkAttempt(models.AttemptPending, now.Add(-time.Minute))
	mkAttempt(models.AttemptPending, now.Add(time.Hour))
	mkAttempt(models.AttemptSuccess, now.Add(-time.Hour))
	mkAttempt(models.AttemptFailed, now.Add(-time.Hour))

	got, err := store.ListDueAttempts(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}

func TestSQLite_FinalizeAttemptOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := seedAccount(t, store)

	now := time.Now().UTC()
	wh := &models.Webhook{ID: models.NewID("wh"), AccountID: acc.ID, URL: "https://x", Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateWebhook(ctx, wh))
	evt := &models.Event{ID: models.NewID("evt"), Name: "contact.created", Payload: []byte("{}"), CreatedAt: now}
	require.NoError(t, store.CreateEvent(ctx, evt))

	a := &models.DeliveryAttempt{
		ID:            models.NewID("att"),
		WebhookID:     wh.ID,
		EventID:       evt.ID,
		EventName:     evt.Name,
		AttemptNumber: 1,
		Status:        models.AttemptPending,
		RequestURL:    wh.URL,
		RequestMethod: "POST",
		ScheduledAt:   now,
		CreatedAt:     now,
	}
	require.NoError(t, store.CreateAttempt(ctx, a))

	done := now.Add(time.Second)
	a.Status = models.AttemptSuccess
	a.ResponseStatus = 200
	a.CompletedAt = &done
	require.NoError(t, store.FinalizeAttempt(ctx, a))

	// A second finalize against the terminal row must not change it.
	a.Status = models.AttemptFailed
	a.ResponseStatus = 500
	require.NoError(t, store.FinalizeAttempt(ctx, a))

	got, err := store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSuccess, got.Status)
	assert.Equal(t, 200, got.ResponseStatus)
}

func TestSQLite_DeleteAccountCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := seedAccount(t, store)

	now := time.Now().UTC()
	wh := &models.Webhook{ID: models.NewID("wh"), AccountID: acc.ID, URL: "https://x", Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateWebhook(ctx, wh))

	require.NoError(t, store.DeleteAccount(ctx, acc.ID))

	got, err := store.GetWebhook(ctx, wh.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_IncrementRateCounterFlipsExceeded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC()
	c := &models.RateLimitCounter{
		ID:          models.NewID("rlc"),
		Scope:       "acc_1",
		Endpoint:    "/api/v1/webhooks",
		Limit:       2,
		Period:      models.PeriodMinute,
		PeriodStart: now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.CreateRateCounter(ctx, c))

	require.NoError(t, store.IncrementRateCounter(ctx, c.ID))
	got, err := store.GetRateCounter(ctx, "acc_1", "/api/v1/webhooks")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CurrentCount)
	assert.False(t, got.Exceeded)

	require.NoError(t, store.IncrementRateCounter(ctx, c.ID))
	got, err = store.GetRateCounter(ctx, "acc_1", "/api/v1/webhooks")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.CurrentCount)
	assert.True(t, got.Exceeded)
}

func TestSQLite_CreateRateCounterIgnoresDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC()
	first := &models.RateLimitCounter{
		ID: models.NewID("rlc"), Scope: "acc_1", Endpoint: "/e",
		Limit: 5, Period: models.PeriodHour, PeriodStart: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateRateCounter(ctx, first))

	dup := &models.RateLimitCounter{
		ID: models.NewID("rlc"), Scope: "acc_1", Endpoint: "/e",
		Limit: 99, Period: models.PeriodDay, PeriodStart: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateRateCounter(ctx, dup))

	got, err := store.GetRateCounter(ctx, "acc_1", "/e")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, int64(5), got.Limit)
}

func TestSQLite_GetWebhookStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := seedAccount(t, store)

	now := time.Now().UTC()
	wh := &models.Webhook{ID: models.NewID("wh"), AccountID: acc.ID, URL: "https://x", Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateWebhook(ctx, wh))
	inactive := &models.Webhook{ID: models.NewID("wh"), AccountID: acc.ID, URL: "https://y", Active: false, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateWebhook(ctx, inactive))

	evt := &models.Event{ID: models.NewID("evt"), Name: "contact.created", Payload: []byte("{}"), CreatedAt: now}
	require.NoError(t, store.CreateEvent(ctx, evt))

	for _, status := range []models.AttemptStatus{models.AttemptSuccess, models.AttemptSuccess, models.AttemptFailed, models.AttemptPending} {
		a := &models.DeliveryAttempt{
			ID: models.NewID("att"), WebhookID: wh.ID, EventID: evt.ID, EventName: evt.Name,
			AttemptNumber: 1, Status: status, RequestURL: wh.URL, RequestMethod: "POST",
			ScheduledAt: now, CreatedAt: now,
		}
		require.NoError(t, store.CreateAttempt(ctx, a))
	}

	stats, err := store.GetWebhookStats(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalWebhooks)
	assert.Equal(t, int64(1), stats.ActiveWebhooks)
	assert.Equal(t, int64(4), stats.TotalAttempts)
	assert.Equal(t, int64(2), stats.SuccessCount)
	assert.Equal(t, int64(1), stats.FailedCount)
	assert.Equal(t, int64(1), stats.PendingCount)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)
}
