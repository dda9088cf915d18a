package domain

import (
	"testing"
	"time"
)

func TestNewTaskDefaults(t *testing.T) {
	task := NewTask("hello", "body", []string{"a.png"}, []string{"tag"}, time.Now())

	if task.ID == "" {
		t.Fatal("NewTask() assigned no id")
	}
	if task.Status != StatusPending {
		t.Fatalf("status=%s, want %s", task.Status, StatusPending)
	}
	if task.MaxRetries != DefaultMaxRetries {
		t.Fatalf("max_retries=%d, want %d", task.MaxRetries, DefaultMaxRetries)
	}
	if task.CreatedTime.IsZero() || task.UpdatedTime.IsZero() {
		t.Fatal("timestamps not set")
	}
}

func TestIsDue(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"pending and past due", Task{Status: StatusPending, PublishTime: now.Add(-time.Second)}, true},
		{"pending exactly at publish time", Task{Status: StatusPending, PublishTime: now}, true},
		{"pending in the future", Task{Status: StatusPending, PublishTime: now.Add(time.Hour)}, false},
		{"running past due", Task{Status: StatusRunning, PublishTime: now.Add(-time.Second)}, false},
		{"failed past due", Task{Status: StatusFailed, PublishTime: now.Add(-time.Second)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.IsDue(now); got != tt.want {
				t.Fatalf("IsDue()=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanRetry(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"failed with budget", Task{Status: StatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"failed exhausted", Task{Status: StatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"pending", Task{Status: StatusPending, RetryCount: 0, MaxRetries: 3}, false},
		{"completed", Task{Status: StatusCompleted, RetryCount: 0, MaxRetries: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.CanRetry(); got != tt.want {
				t.Fatalf("CanRetry()=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarkFailedIncrementsRetryCount(t *testing.T) {
	task := NewTask("t", "", nil, nil, time.Now())
	task.MarkRunning()
	task.MarkFailed("network hiccup")

	if task.Status != StatusFailed {
		t.Fatalf("status=%s, want %s", task.Status, StatusFailed)
	}
	if task.RetryCount != 1 {
		t.Fatalf("retry_count=%d, want 1", task.RetryCount)
	}
	if task.ResultMessage != "network hiccup" {
		t.Fatalf("result_message=%q", task.ResultMessage)
	}
}

func TestResetForRetry(t *testing.T) {
	task := NewTask("t", "", nil, nil, time.Now())
	task.MaxRetries = 1
	task.MarkRunning()
	task.MarkFailed("boom")

	if !task.Terminal() {
		t.Fatal("task should be terminal after exhausting retries")
	}

	task.ResetForRetry()
	if task.Status != StatusPending {
		t.Fatalf("status=%s, want %s", task.Status, StatusPending)
	}
	if task.ResultMessage != "" {
		t.Fatalf("result_message=%q, want empty", task.ResultMessage)
	}
	if task.RetryCount != 0 {
		t.Fatalf("retry_count=%d, want 0", task.RetryCount)
	}
}

func TestTerminal(t *testing.T) {
	if !(Task{Status: StatusCompleted}).Terminal() {
		t.Fatal("completed should be terminal")
	}
	if !(Task{Status: StatusFailed, RetryCount: 3, MaxRetries: 3}).Terminal() {
		t.Fatal("retry-exhausted failure should be terminal")
	}
	if (Task{Status: StatusFailed, RetryCount: 1, MaxRetries: 3}).Terminal() {
		t.Fatal("retryable failure should not be terminal")
	}
	if (Task{Status: StatusRunning}).Terminal() {
		t.Fatal("running should not be terminal")
	}
}
