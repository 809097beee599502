package models

import "time"

type RatePeriod string

const (
	PeriodSecond RatePeriod = "second"
	PeriodMinute RatePeriod = "minute"
	PeriodHour   RatePeriod = "hour"
	PeriodDay    RatePeriod = "day"
)

// Duration returns the window length for the period. Unknown periods fall
// back to an hour, matching the default limit table.
func (p RatePeriod) Duration() time.Duration {
	switch p {
	case PeriodSecond:
		return time.Second
	case PeriodMinute:
		return time.Minute
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	}
	return time.Hour
}

// RateLimitCounter is the persisted fixed-window counter for one
// (scope, endpoint) pair. BurstLimit is reserved for a future concurrent
// in-flight cap and is not enforced.
type RateLimitCounter struct {
	ID           string     `json:"id"`
	Scope        string     `json:"scope"`
	Endpoint     string     `json:"endpoint"`
	Limit        int64      `json:"limit"`
	Period       RatePeriod `json:"period"`
	BurstLimit   int64      `json:"burst_limit"`
	CurrentCount int64      `json:"current_count"`
	PeriodStart  time.Time  `json:"period_start"`
	Exceeded     bool       `json:"exceeded"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Expired reports whether the window has elapsed at the given instant.
func (c *RateLimitCounter) Expired(now time.Time) bool {
	return now.After(c.PeriodStart.Add(c.Period.Duration()))
}
