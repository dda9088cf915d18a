package store

import (
	"context"
	"errors"
	"time"

	"pubflow/internal/domain"
)

// ErrNotFound is returned by GetByID when no task has the given id.
var ErrNotFound = errors.New("task not found")

// Store is the authoritative task collection. Implementations must serialize
// concurrent mutations per task id; swapping backends must not change
// scheduler behavior.
type Store interface {
	Load(ctx context.Context) ([]domain.Task, error)
	Add(ctx context.Context, t domain.Task) bool
	// Update replaces the stored task keyed by id. False when the id is
	// unknown or the backend write failed.
	Update(ctx context.Context, t domain.Task) bool
	Delete(ctx context.Context, id string) bool
	GetByID(ctx context.Context, id string) (domain.Task, error)

	// GetDue returns pending tasks whose publish time has passed.
	GetDue(ctx context.Context, now time.Time) ([]domain.Task, error)
	// GetRetryEligible returns failed tasks with retry budget remaining.
	GetRetryEligible(ctx context.Context) ([]domain.Task, error)

	// LastCompletedAt returns the update time of the most recently completed
	// task, or the zero time when nothing has ever completed.
	LastCompletedAt(ctx context.Context) (time.Time, error)

	// ListRunningOlderThan returns running tasks not updated since cutoff,
	// candidates for orphan recovery.
	ListRunningOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Task, error)
	// DeleteTerminalBefore prunes completed and retry-exhausted failed tasks
	// last updated before cutoff. Pending and running tasks are never pruned.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)

	Stats(ctx context.Context) (domain.Stats, error)
}
