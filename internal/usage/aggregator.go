// Package usage rolls raw API usage records up into periodic summaries.
package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/storage"
)

type Aggregator struct {
	store storage.Storage
	log   zerolog.Logger
}

func NewAggregator(store storage.Storage, log zerolog.Logger) *Aggregator {
	return &Aggregator{store: store, log: log}
}

// Aggregate computes the summary for one (scope, period, windowStart) and
// upserts it. Re-running for the same window overwrites the prior row.
func (a *Aggregator) Aggregate(ctx context.Context, scope string, period models.RatePeriod, windowStart time.Time) (*models.UsageSummary, error) {
	windowStart = windowStart.UTC().Truncate(period.Duration())
	windowEnd := windowStart.Add(period.Duration())

	records, err := a.store.ListUsageRecords(ctx, scope, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}

	sum := &models.UsageSummary{
		ID:           models.NewID("sum"),
		Scope:        scope,
		Period:       period,
		WindowStart:  windowStart,
		ByEndpoint:   map[string]int64{},
		ByStatusCode: map[string]int64{},
		ComputedAt:   time.Now().UTC(),
	}

	var totalLatency, served int64
	for _, r := range records {
		sum.TotalRequests++
		switch {
		case r.RateLimited:
			sum.RateLimitedCount++
		case r.StatusCode >= 400:
			sum.FailedCount++
		default:
			sum.SuccessCount++
		}

		sum.ByEndpoint[r.Endpoint]++
		sum.ByStatusCode[strconv.Itoa(r.StatusCode)]++

		// Latency stats cover served requests only. Rejected requests
		// never reach a handler and carry no measured latency.
		if r.RateLimited {
			continue
		}
		served++
		if served == 1 || r.LatencyMs < sum.MinLatencyMs {
			sum.MinLatencyMs = r.LatencyMs
		}
		if r.LatencyMs > sum.MaxLatencyMs {
			sum.MaxLatencyMs = r.LatencyMs
		}
		totalLatency += r.LatencyMs
	}
	if served > 0 {
		sum.AvgLatencyMs = float64(totalLatency) / float64(served)
	}

	if err := a.store.UpsertUsageSummary(ctx, sum); err != nil {
		return nil, fmt.Errorf("upsert usage summary: %w", err)
	}

	a.log.Debug().
		Str("scope", scope).
		Str("period", string(period)).
		Time("window_start", windowStart).
		Int64("total", sum.TotalRequests).
		Msg("usage summary computed")
	return sum, nil
}

// AggregateWindow summarizes every scope seen in the window.
func (a *Aggregator) AggregateWindow(ctx context.Context, period models.RatePeriod, windowStart time.Time) error {
	windowStart = windowStart.UTC().Truncate(period.Duration())
	windowEnd := windowStart.Add(period.Duration())

	scopes, err := a.store.ListUsageScopes(ctx, windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("list usage scopes: %w", err)
	}

	for _, scope := range scopes {
		if _, err := a.Aggregate(ctx, scope, period, windowStart); err != nil {
			a.log.Error().Err(err).Str("scope", scope).Msg("failed to aggregate usage for scope")
		}
	}
	return nil
}
