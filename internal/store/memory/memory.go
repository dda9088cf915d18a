package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pubflow/internal/domain"
	"pubflow/internal/store"
)

// Store is a mutex-guarded in-memory task store. It is the default backend
// for tests and for runs that don't need persistence across restarts.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
}

func New() *Store {
	return &Store{tasks: make(map[string]domain.Task)}
}

func (s *Store) Load(ctx context.Context) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) Add(ctx context.Context, t domain.Task) bool {
	if t.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return false
	}
	s.tasks[t.ID] = t
	return true
}

func (s *Store) Update(ctx context.Context, t domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; !exists {
		return false
	}
	s.tasks[t.ID] = t
	return true
}

func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; !exists {
		return false
	}
	delete(s.tasks, id)
	return true
}

func (s *Store) GetByID(ctx context.Context, id string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetDue(ctx context.Context, now time.Time) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []domain.Task
	for _, t := range s.tasks {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	sortByPublishTime(due)
	return due, nil
}

func (s *Store) GetRetryEligible(ctx context.Context) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var eligible []domain.Task
	for _, t := range s.tasks {
		if t.CanRetry() {
			eligible = append(eligible, t)
		}
	}
	sortByPublishTime(eligible)
	return eligible, nil
}

func (s *Store) LastCompletedAt(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	for _, t := range s.tasks {
		if t.Status == domain.StatusCompleted && t.UpdatedTime.After(last) {
			last = t.UpdatedTime
		}
	}
	return last, nil
}

func (s *Store) ListRunningOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []domain.Task
	for _, t := range s.tasks {
		if t.Status == domain.StatusRunning && t.UpdatedTime.Before(cutoff) {
			stale = append(stale, t)
		}
	}
	return stale, nil
}

func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tasks {
		if t.Terminal() && t.UpdatedTime.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := domain.Stats{Total: len(s.tasks)}
	for _, t := range s.tasks {
		switch t.Status {
		case domain.StatusPending:
			st.Pending++
		case domain.StatusRunning:
			st.Running++
		case domain.StatusCompleted:
			st.Completed++
		case domain.StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

func sortByPublishTime(tasks []domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].PublishTime.Before(tasks[j].PublishTime)
	})
}
