package dispatch

import (
	"time"

	"github.com/vantagecrm/hookd/internal/models"
)

// ShouldRetry decides whether a failed attempt gets a successor. The
// first attempt is number 1, so MaxRetries=3 allows attempts 1 through 4.
func ShouldRetry(policy models.RetryPolicy, attemptNumber int) bool {
	return policy.Enabled && attemptNumber <= policy.MaxRetries
}

// NextRun returns when the successor attempt becomes due. Delays are
// fixed per webhook policy.
func NextRun(now time.Time, policy models.RetryPolicy) time.Time {
	delay := time.Duration(policy.DelaySeconds) * time.Second
	if delay <= 0 {
		delay = time.Minute
	}
	return now.Add(delay)
}
