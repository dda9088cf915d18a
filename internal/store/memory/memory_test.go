package memory

import (
	"context"
	"testing"
	"time"

	"pubflow/internal/domain"
	"pubflow/internal/store"
)

func newTask(title string, publishTime time.Time) domain.Task {
	return domain.NewTask(title, "body", nil, nil, publishTime)
}

func TestAddAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	task := newTask("a", time.Now())

	if !s.Add(ctx, task) {
		t.Fatal("Add failed")
	}
	if s.Add(ctx, task) {
		t.Fatal("Add with duplicate id should fail")
	}
	if s.Add(ctx, domain.Task{}) {
		t.Fatal("Add without id should fail")
	}

	got, err := s.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "a" {
		t.Fatalf("title=%q, want %q", got.Title, "a")
	}

	if _, err := s.GetByID(ctx, "tsk_missing"); err != store.ErrNotFound {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	task := newTask("a", time.Now())
	s.Add(ctx, task)

	task.Title = "b"
	if !s.Update(ctx, task) {
		t.Fatal("Update failed")
	}
	got, _ := s.GetByID(ctx, task.ID)
	if got.Title != "b" {
		t.Fatalf("title=%q after update", got.Title)
	}

	missing := newTask("x", time.Now())
	if s.Update(ctx, missing) {
		t.Fatal("Update of unknown id should fail")
	}

	if !s.Delete(ctx, task.ID) {
		t.Fatal("Delete failed")
	}
	if s.Delete(ctx, task.ID) {
		t.Fatal("second Delete should fail")
	}
}

func TestGetDueOrdersByPublishTime(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	late := newTask("late", now.Add(-time.Minute))
	early := newTask("early", now.Add(-time.Hour))
	future := newTask("future", now.Add(time.Hour))
	runningDue := newTask("running", now.Add(-time.Hour))
	runningDue.Status = domain.StatusRunning

	for _, task := range []domain.Task{late, early, future, runningDue} {
		s.Add(ctx, task)
	}

	due, err := s.GetDue(ctx, now)
	if err != nil {
		t.Fatalf("GetDue: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("len(due)=%d, want 2", len(due))
	}
	if due[0].ID != early.ID || due[1].ID != late.ID {
		t.Fatalf("due order=[%s %s], want earliest first", due[0].Title, due[1].Title)
	}
}

func TestGetRetryEligible(t *testing.T) {
	s := New()
	ctx := context.Background()

	eligible := newTask("eligible", time.Now())
	eligible.Status = domain.StatusFailed
	eligible.RetryCount = 1

	exhausted := newTask("exhausted", time.Now())
	exhausted.Status = domain.StatusFailed
	exhausted.RetryCount = 3

	pending := newTask("pending", time.Now())

	for _, task := range []domain.Task{eligible, exhausted, pending} {
		s.Add(ctx, task)
	}

	got, err := s.GetRetryEligible(ctx)
	if err != nil {
		t.Fatalf("GetRetryEligible: %v", err)
	}
	if len(got) != 1 || got[0].ID != eligible.ID {
		t.Fatalf("got %d eligible tasks, want exactly the retryable one", len(got))
	}
}

func TestLastCompletedAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	if last, _ := s.LastCompletedAt(ctx); !last.IsZero() {
		t.Fatalf("LastCompletedAt on empty store=%v, want zero", last)
	}

	older := newTask("older", time.Now())
	older.Status = domain.StatusCompleted
	older.UpdatedTime = time.Now().Add(-time.Hour)

	newer := newTask("newer", time.Now())
	newer.Status = domain.StatusCompleted
	newer.UpdatedTime = time.Now().Add(-time.Minute)

	s.Add(ctx, older)
	s.Add(ctx, newer)

	last, err := s.LastCompletedAt(ctx)
	if err != nil {
		t.Fatalf("LastCompletedAt: %v", err)
	}
	if !last.Equal(newer.UpdatedTime) {
		t.Fatalf("last=%v, want %v", last, newer.UpdatedTime)
	}
}

func TestStats(t *testing.T) {
	s := New()
	ctx := context.Background()

	statuses := []domain.Status{
		domain.StatusPending, domain.StatusPending,
		domain.StatusRunning,
		domain.StatusCompleted,
		domain.StatusFailed,
	}
	for _, status := range statuses {
		task := newTask("t", time.Now())
		task.Status = status
		s.Add(ctx, task)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := domain.Stats{Total: 5, Pending: 2, Running: 1, Completed: 1, Failed: 1}
	if st != want {
		t.Fatalf("stats=%+v, want %+v", st, want)
	}
}

func TestDeleteTerminalBefore(t *testing.T) {
	s := New()
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	doneOld := newTask("done", time.Now())
	doneOld.Status = domain.StatusCompleted
	doneOld.UpdatedTime = old

	pendingOld := newTask("pending", time.Now())
	pendingOld.UpdatedTime = old

	runningOld := newTask("running", time.Now())
	runningOld.Status = domain.StatusRunning
	runningOld.UpdatedTime = old

	s.Add(ctx, doneOld)
	s.Add(ctx, pendingOld)
	s.Add(ctx, runningOld)

	n, err := s.DeleteTerminalBefore(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted=%d, want 1", n)
	}
	if _, err := s.GetByID(ctx, doneOld.ID); err == nil {
		t.Fatal("completed old task should be gone")
	}
	for _, id := range []string{pendingOld.ID, runningOld.ID} {
		if _, err := s.GetByID(ctx, id); err != nil {
			t.Fatalf("task %s should never be pruned", id)
		}
	}
}
