package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a publish task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultMaxRetries bounds automatic re-dispatch after failures.
const DefaultMaxRetries = 3

// Task is one scheduled publish: a text payload plus media, released to the
// publisher no earlier than PublishTime.
type Task struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Images        []string  `json:"images"` // file paths or URLs, used in order
	Topics        []string  `json:"topics"`
	PublishTime   time.Time `json:"publish_time"`
	Status        Status    `json:"status"`
	CreatedTime   time.Time `json:"created_time"`
	UpdatedTime   time.Time `json:"updated_time"`
	ResultMessage string    `json:"result_message"`
	RetryCount    int       `json:"retry_count"`
	MaxRetries    int       `json:"max_retries"`
}

// NewTask builds a pending task with a fresh id and timestamps.
func NewTask(title, content string, images, topics []string, publishTime time.Time) Task {
	now := time.Now()
	return Task{
		ID:          "tsk_" + uuid.NewString(),
		Title:       title,
		Content:     content,
		Images:      images,
		Topics:      topics,
		PublishTime: publishTime,
		Status:      StatusPending,
		CreatedTime: now,
		UpdatedTime: now,
		MaxRetries:  DefaultMaxRetries,
	}
}

// Valid reports whether the task carries the minimum payload to be scheduled.
func (t Task) Valid() bool {
	return strings.TrimSpace(t.Title) != ""
}

// IsDue reports whether a pending task has reached its publish time.
func (t Task) IsDue(now time.Time) bool {
	return t.Status == StatusPending && !t.PublishTime.After(now)
}

// CanRetry reports whether a failed task still has retry budget left.
func (t Task) CanRetry() bool {
	return t.Status == StatusFailed && t.RetryCount < t.MaxRetries
}

// Terminal reports whether the task will never be dispatched again without
// manual intervention.
func (t Task) Terminal() bool {
	return t.Status == StatusCompleted || (t.Status == StatusFailed && t.RetryCount >= t.MaxRetries)
}

func (t *Task) MarkRunning() {
	t.Status = StatusRunning
	t.UpdatedTime = time.Now()
}

func (t *Task) MarkCompleted(message string) {
	t.Status = StatusCompleted
	t.ResultMessage = message
	t.UpdatedTime = time.Now()
}

// MarkFailed records the failure message and consumes one retry.
func (t *Task) MarkFailed(message string) {
	t.Status = StatusFailed
	t.ResultMessage = message
	t.RetryCount++
	t.UpdatedTime = time.Now()
}

// ResetForRetry returns a failed task to the pending pool with a fresh retry
// budget, clearing the last result.
func (t *Task) ResetForRetry() {
	t.Status = StatusPending
	t.ResultMessage = ""
	t.RetryCount = 0
	t.UpdatedTime = time.Now()
}

// Result is the outcome of one publish attempt.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Stats is a point-in-time census of the task store.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Executing int `json:"executing"`
}
