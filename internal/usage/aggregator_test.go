package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/storage"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRecord(t *testing.T, store storage.Storage, scope, endpoint string, status int, latency int64, limited bool, at time.Time) {
	t.Helper()
	require.NoError(t, store.CreateUsageRecord(context.Background(), &models.UsageRecord{
		ID:          models.NewID("usg"),
		Scope:       scope,
		Endpoint:    endpoint,
		Method:      "POST",
		StatusCode:  status,
		LatencyMs:   latency,
		RateLimited: limited,
		CreatedAt:   at,
	}))
}

func TestAggregator_ComputesWindowSummary(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agg := NewAggregator(store, zerolog.Nop())

	window := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	seedRecord(t, store, "acc_1", "/api/v1/events/emit", 202, 10, false, window.Add(5*time.Minute))
	seedRecord(t, store, "acc_1", "/api/v1/events/emit", 202, 30, false, window.Add(10*time.Minute))
	seedRecord(t, store, "acc_1", "/api/v1/webhooks", 500, 80, false, window.Add(20*time.Minute))
	seedRecord(t, store, "acc_1", "/api/v1/events/emit", 429, 0, true, window.Add(30*time.Minute))

	// Outside the window; must not be counted.
	seedRecord(t, store, "acc_1", "/api/v1/webhooks", 200, 5, false, window.Add(90*time.Minute))

	sum, err := agg.Aggregate(ctx, "acc_1", models.PeriodHour, window)
	require.NoError(t, err)

	assert.Equal(t, int64(4), sum.TotalRequests)
	assert.Equal(t, int64(2), sum.SuccessCount)
	assert.Equal(t, int64(1), sum.FailedCount)
	assert.Equal(t, int64(1), sum.RateLimitedCount)

	assert.Equal(t, int64(10), sum.MinLatencyMs)
	assert.Equal(t, int64(80), sum.MaxLatencyMs)
	assert.InDelta(t, 40.0, sum.AvgLatencyMs, 0.001)

	assert.Equal(t, int64(3), sum.ByEndpoint["/api/v1/events/emit"])
	assert.Equal(t, int64(1), sum.ByEndpoint["/api/v1/webhooks"])
	assert.Equal(t, int64(2), sum.ByStatusCode["202"])
	assert.Equal(t, int64(1), sum.ByStatusCode["500"])
	assert.Equal(t, int64(1), sum.ByStatusCode["429"])
}

func TestAggregator_RateLimitedRowsExcludedFromLatency(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agg := NewAggregator(store, zerolog.Nop())

	window := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	seedRecord(t, store, "acc_1", "/api/v1/events/emit", 202, 40, false, window.Add(time.Minute))
	seedRecord(t, store, "acc_1", "/api/v1/events/emit", 202, 60, false, window.Add(2*time.Minute))
	seedRecord(t, store, "acc_1", "/api/v1/events/emit", 429, 0, true, window.Add(3*time.Minute))
	seedRecord(t, store, "acc_1", "/api/v1/events/emit", 429, 0, true, window.Add(4*time.Minute))

	sum, err := agg.Aggregate(ctx, "acc_1", models.PeriodHour, window)
	require.NoError(t, err)

	assert.Equal(t, int64(4), sum.TotalRequests)
	assert.Equal(t, int64(2), sum.RateLimitedCount)

	// Rejected requests never reach a handler, so their zero latency
	// must not drag the floor or the average down.
	assert.Equal(t, int64(40), sum.MinLatencyMs)
	assert.Equal(t, int64(60), sum.MaxLatencyMs)
	assert.InDelta(t, 50.0, sum.AvgLatencyMs, 0.001)
}

func TestAggregator_RerunOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agg := NewAggregator(store, zerolog.Nop())

	window := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	seedRecord(t, store, "acc_1", "/api/v1/webhooks", 200, 10, false, window.Add(time.Hour))

	_, err := agg.Aggregate(ctx, "acc_1", models.PeriodDay, window)
	require.NoError(t, err)

	seedRecord(t, store, "acc_1", "/api/v1/webhooks", 200, 20, false, window.Add(2*time.Hour))

	_, err = agg.Aggregate(ctx, "acc_1", models.PeriodDay, window)
	require.NoError(t, err)

	got, err := store.GetUsageSummary(ctx, "acc_1", models.PeriodDay, window)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.TotalRequests)

	sums, err := store.ListUsageSummaries(ctx, "acc_1", models.PeriodDay, 10)
	require.NoError(t, err)
	assert.Len(t, sums, 1, "re-running a window must not add rows")
}

func TestAggregator_EmptyWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agg := NewAggregator(store, zerolog.Nop())

	sum, err := agg.Aggregate(ctx, "acc_1", models.PeriodHour, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.TotalRequests)
	assert.Equal(t, float64(0), sum.AvgLatencyMs)
}

func TestAggregator_AggregateWindowCoversAllScopes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agg := NewAggregator(store, zerolog.Nop())

	window := time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)
	seedRecord(t, store, "acc_1", "/api/v1/webhooks", 200, 10, false, window.Add(time.Minute))
	seedRecord(t, store, "acc_2", "/api/v1/events/emit", 202, 15, false, window.Add(2*time.Minute))

	require.NoError(t, agg.AggregateWindow(ctx, models.PeriodHour, window))

	for _, scope := range []string{"acc_1", "acc_2"} {
		got, err := store.GetUsageSummary(ctx, scope, models.PeriodHour, window)
		require.NoError(t, err)
		require.NotNil(t, got, scope)
		assert.Equal(t, int64(1), got.TotalRequests, scope)
	}
}
