package scheduler

import (
	"testing"
	"time"

	"pubflow/internal/domain"
)

func TestRetryEligible(t *testing.T) {
	tests := []struct {
		name string
		task domain.Task
		want bool
	}{
		{"failed under budget", domain.Task{Status: domain.StatusFailed, RetryCount: 2, MaxRetries: 3}, true},
		{"failed at budget", domain.Task{Status: domain.StatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"failed over budget", domain.Task{Status: domain.StatusFailed, RetryCount: 4, MaxRetries: 3}, false},
		{"pending", domain.Task{Status: domain.StatusPending, RetryCount: 0, MaxRetries: 3}, false},
		{"running", domain.Task{Status: domain.StatusRunning, RetryCount: 0, MaxRetries: 3}, false},
		{"completed", domain.Task{Status: domain.StatusCompleted, RetryCount: 0, MaxRetries: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryEligible(tt.task); got != tt.want {
				t.Fatalf("RetryEligible()=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntervalElapsed(t *testing.T) {
	now := time.Now()
	min := 5 * time.Minute

	tests := []struct {
		name string
		last time.Time
		want bool
	}{
		{"never completed", time.Time{}, true},
		{"completed 2m ago", now.Add(-2 * time.Minute), false},
		{"completed exactly min ago", now.Add(-min), true},
		{"completed 6m ago", now.Add(-6 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IntervalElapsed(tt.last, min, now); got != tt.want {
				t.Fatalf("IntervalElapsed()=%v, want %v", got, tt.want)
			}
		})
	}
}
