package ratelimit

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

func newTestLimiter(t *testing.T, store storage.Storage, rules []Rule) *Limiter {
	t.Helper()
	return NewLimiter(store, rules, 1000, models.PeriodHour, zerolog.Nop())
}

func TestLimiter_ExhaustsFixedWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := newTestLimiter(t, store, []Rule{
		{Endpoint: "/api/v1/events/emit", Limit: 5, Period: models.PeriodMinute},
	})

	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "acc_1", "/api/v1/events/emit")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, int64(5), res.Limit)
		assert.Equal(t, int64(5-i), res.Remaining)

		require.NoError(t, l.Record(ctx, "acc_1", "/api/v1/events/emit", Outcome{
			Method:     "POST",
			StatusCode: 202,
			LatencyMs:  12,
		}))
	}

	res, err := l.Check(ctx, "acc_1", "/api/v1/events/emit")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
}

func TestLimiter_WindowResets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := newTestLimiter(t, store, []Rule{
		{Endpoint: "/api/v1/webhooks", Limit: 2, Period: models.PeriodMinute},
	})

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.SetNow(func() time.Time { return base })

	for i := 0; i < 2; i++ {
		res, err := l.Check(ctx, "acc_1", "/api/v1/webhooks")
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.NoError(t, l.Record(ctx, "acc_1", "/api/v1/webhooks", Outcome{Method: "GET", StatusCode: 200}))
	}

	res, err := l.Check(ctx, "acc_1", "/api/v1/webhooks")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	l.SetNow(func() time.Time { return base.Add(61 * time.Second) })

	res, err = l.Check(ctx, "acc_1", "/api/v1/webhooks")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(2), res.Remaining)
}

func TestLimiter_RejectedRequestsDoNotConsumeQuota(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := newTestLimiter(t, store, []Rule{
		{Endpoint: "/api/v1/events/emit", Limit: 1, Period: models.PeriodHour},
	})

	require.NoError(t, l.Record(ctx, "acc_1", "/api/v1/events/emit", Outcome{Method: "POST", StatusCode: 202}))

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(ctx, "acc_1", "/api/v1/events/emit", Outcome{
			Method:      "POST",
			StatusCode:  429,
			RateLimited: true,
		}))
	}

	c, err := store.GetRateCounter(ctx, "acc_1", "/api/v1/events/emit")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(1), c.CurrentCount)
}

func TestLimiter_ScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := newTestLimiter(t, store, []Rule{
		{Endpoint: "/api/v1/events/emit", Limit: 1, Period: models.PeriodHour},
	})

	require.NoError(t, l.Record(ctx, "acc_1", "/api/v1/events/emit", Outcome{Method: "POST", StatusCode: 202}))

	res, err := l.Check(ctx, "acc_1", "/api/v1/events/emit")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = l.Check(ctx, "acc_2", "/api/v1/events/emit")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiter_RuleResolution(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := newTestLimiter(t, store, []Rule{
		{Endpoint: "/api/v1/*", Limit: 100, Period: models.PeriodHour},
		{Endpoint: "/api/v1/events/emit", Limit: 5, Period: models.PeriodMinute},
	})

	res, err := l.Check(ctx, "acc_1", "/api/v1/events/emit")
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Limit, "exact rule beats prefix rule")

	res, err = l.Check(ctx, "acc_1", "/api/v1/webhooks")
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Limit, "prefix rule applies")

	res, err = l.Check(ctx, "acc_1", "/other")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Limit, "default applies when no rule matches")
}

func TestLimiter_RecordWritesUsageRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := newTestLimiter(t, store, nil)

	require.NoError(t, l.Record(ctx, "acc_1", "/api/v1/webhooks", Outcome{
		Method:     "GET",
		StatusCode: 200,
		LatencyMs:  8,
	}))
	require.NoError(t, l.Record(ctx, "acc_1", "/api/v1/webhooks", Outcome{
		Method:      "GET",
		StatusCode:  429,
		RateLimited: true,
	}))

	recs, err := store.ListUsageRecordsPage(ctx, "acc_1", 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}
