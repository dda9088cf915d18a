package scheduler

import (
	"time"

	"pubflow/internal/domain"
)

// RetryEligible decides whether a failed task may be dispatched again: its
// status is failed and its retry budget is not exhausted. Retry dispatch is
// identical to a fresh dispatch; the count only moves on a further failure.
func RetryEligible(t domain.Task) bool {
	return t.Status == domain.StatusFailed && t.RetryCount < t.MaxRetries
}

// IntervalElapsed is the global throttle between successful publishes: a new
// attempt may start only when at least min has passed since the last
// completion. A zero lastCompleted means nothing has ever completed.
// The platform penalizes rapid consecutive publishes, so this gates all
// dispatches, not individual tasks.
func IntervalElapsed(lastCompleted time.Time, min time.Duration, now time.Time) bool {
	if lastCompleted.IsZero() {
		return true
	}
	return now.Sub(lastCompleted) >= min
}
