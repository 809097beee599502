// Package ratelimit gates inbound API requests per (scope, endpoint)
// within fixed time windows. Counters are persisted rows, not process
// memory, so limits hold across restarts and across processes sharing
// the database.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/storage"
)

// Rule binds an endpoint pattern to a limit. A trailing "*" matches any
// suffix; the longest matching pattern wins.
type Rule struct {
	Endpoint string
	Limit    int64
	Period   models.RatePeriod
}

// Result is the synchronous answer to a limit check. Exceeding a limit is
// not an error condition.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Outcome describes one finished request for Record.
type Outcome struct {
	Method      string
	StatusCode  int
	LatencyMs   int64
	RateLimited bool
}

type Limiter struct {
	store         storage.Storage
	rules         []Rule
	defaultLimit  int64
	defaultPeriod models.RatePeriod
	log           zerolog.Logger
	now           func() time.Time
}

func NewLimiter(store storage.Storage, rules []Rule, defaultLimit int64, defaultPeriod models.RatePeriod, log zerolog.Logger) *Limiter {
	if defaultLimit <= 0 {
		defaultLimit = 1000
	}
	if defaultPeriod == "" {
		defaultPeriod = models.PeriodHour
	}
	return &Limiter{
		store:         store,
		rules:         rules,
		defaultLimit:  defaultLimit,
		defaultPeriod: defaultPeriod,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the clock. Test hook.
func (l *Limiter) SetNow(now func() time.Time) {
	l.now = now
}

// Check reports whether a request for (scope, endpoint) may proceed. The
// counter is lazily created on first sight and reset once its window has
// elapsed.
func (l *Limiter) Check(ctx context.Context, scope, endpoint string) (Result, error) {
	c, err := l.ensureCounter(ctx, scope, endpoint)
	if err != nil {
		return Result{}, err
	}

	remaining := c.Limit - c.CurrentCount
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   !c.Exceeded && remaining > 0,
		Limit:     c.Limit,
		Remaining: remaining,
		ResetAt:   c.PeriodStart.Add(c.Period.Duration()),
	}, nil
}

// Record logs one finished request. The usage row is always written;
// the counter is only incremented for requests that were let through,
// so a rejected burst cannot push current_count past the limit.
func (l *Limiter) Record(ctx context.Context, scope, endpoint string, out Outcome) error {
	now := l.now()
	rec := &models.UsageRecord{
		ID:          models.NewID("usg"),
		Scope:       scope,
		Endpoint:    endpoint,
		Method:      out.Method,
		StatusCode:  out.StatusCode,
		LatencyMs:   out.LatencyMs,
		RateLimited: out.RateLimited,
		CreatedAt:   now,
	}
	if err := l.store.CreateUsageRecord(ctx, rec); err != nil {
		return fmt.Errorf("create usage record: %w", err)
	}

	if out.RateLimited {
		return nil
	}

	c, err := l.ensureCounter(ctx, scope, endpoint)
	if err != nil {
		return err
	}
	if err := l.store.IncrementRateCounter(ctx, c.ID); err != nil {
		return fmt.Errorf("increment rate counter: %w", err)
	}
	return nil
}

func (l *Limiter) ensureCounter(ctx context.Context, scope, endpoint string) (*models.RateLimitCounter, error) {
	now := l.now()

	c, err := l.store.GetRateCounter(ctx, scope, endpoint)
	if err != nil {
		return nil, fmt.Errorf("get rate counter: %w", err)
	}
	if c == nil {
		limit, period := l.limitFor(endpoint)
		fresh := &models.RateLimitCounter{
			ID:          models.NewID("rlc"),
			Scope:       scope,
			Endpoint:    endpoint,
			Limit:       limit,
			Period:      period,
			PeriodStart: now,
			UpdatedAt:   now,
		}
		if err := l.store.CreateRateCounter(ctx, fresh); err != nil {
			return nil, fmt.Errorf("create rate counter: %w", err)
		}
		// Re-read: a concurrent request may have won the insert.
		c, err = l.store.GetRateCounter(ctx, scope, endpoint)
		if err != nil {
			return nil, fmt.Errorf("get rate counter: %w", err)
		}
		if c == nil {
			return fresh, nil
		}
	}

	if c.Expired(now) {
		if err := l.store.ResetRateCounter(ctx, c.ID, now); err != nil {
			return nil, fmt.Errorf("reset rate counter: %w", err)
		}
		c.CurrentCount = 0
		c.Exceeded = false
		c.PeriodStart = now
	}
	return c, nil
}

// limitFor resolves the configured rule for an endpoint, falling back to
// the default table entry.
func (l *Limiter) limitFor(endpoint string) (int64, models.RatePeriod) {
	var best *Rule
	for i := range l.rules {
		r := &l.rules[i]
		if !matchEndpoint(r.Endpoint, endpoint) {
			continue
		}
		if best == nil || len(r.Endpoint) > len(best.Endpoint) {
			best = r
		}
	}
	if best != nil {
		return best.Limit, best.Period
	}
	return l.defaultLimit, l.defaultPeriod
}

func matchEndpoint(pattern, endpoint string) bool {
	if pattern == endpoint || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(endpoint, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
