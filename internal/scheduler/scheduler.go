package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pubflow/internal/config"
	"pubflow/internal/domain"
	"pubflow/internal/events"
	"pubflow/internal/guard"
	"pubflow/internal/publisher"
	"pubflow/internal/store"
)

// Scheduler drives delayed publish tasks: a periodic tick picks at most one
// due or retry-eligible task, claims the execution guard, and hands the task
// to the publisher on its own goroutine. Results come back asynchronously and
// are applied only when their attempt generation is still current, so a
// watchdog-resolved task can never be overwritten by a late publisher reply.
type Scheduler struct {
	store store.Store
	guard *guard.Guard
	pub   publisher.Publisher
	bus   *events.Bus
	cfg   *config.Manager

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	nextGen  uint64
	attempts map[string]*attempt // task id -> in-flight attempt

	// wake triggers an out-of-band tick (publish-now path).
	wake chan struct{}
}

// attempt tracks one dispatched execution. gen distinguishes it from any
// later re-dispatch of the same task.
type attempt struct {
	gen      uint64
	cancel   context.CancelFunc
	watchdog *time.Timer
}

func New(st store.Store, g *guard.Guard, pub publisher.Publisher, bus *events.Bus, cfg *config.Manager) *Scheduler {
	return &Scheduler{
		store:    st,
		guard:    g,
		pub:      pub,
		bus:      bus,
		cfg:      cfg,
		attempts: make(map[string]*attempt),
		wake:     make(chan struct{}, 1),
	}
}

// Start begins the tick loop and performs one immediate tick.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn().Msg("scheduler already running")
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	log.Info().Dur("interval", s.cfg.Get().CheckInterval()).Msg("scheduler started")
	s.bus.Publish(events.Event{Kind: events.SchedulerStatus, Message: "running"})

	go s.run(stop)
}

// Stop halts the tick loop. In-flight attempts are not killed; their
// watchdogs still resolve them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	log.Info().Msg("scheduler stopped")
	s.bus.Publish(events.Event{Kind: events.SchedulerStatus, Message: "stopped"})
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(stop chan struct{}) {
	s.Tick()
	for {
		// Re-read the interval each cycle so config hot reloads apply
		// without a restart.
		timer := time.NewTimer(s.cfg.Get().CheckInterval())
		select {
		case <-stop:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			s.Tick()
		case <-timer.C:
			s.Tick()
		}
	}
}

// Tick is one evaluation cycle: gather due and retry-eligible tasks and
// dispatch at most one. Ticks never run concurrently and never block on the
// publisher.
func (s *Scheduler) Tick() {
	if !s.Running() {
		return
	}
	ctx := context.Background()
	now := time.Now()

	due, err := s.store.GetDue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("query due tasks")
		return
	}
	retry, err := s.store.GetRetryEligible(ctx)
	if err != nil {
		log.Error().Err(err).Msg("query retry-eligible tasks")
		return
	}
	candidates := append(due, retry...)
	if len(candidates) == 0 {
		log.Debug().Msg("no tasks ready")
		return
	}
	log.Debug().Int("ready", len(candidates)).Msg("tasks ready for dispatch")

	for _, t := range candidates {
		if s.inFlight(t.ID) {
			continue
		}
		last, err := s.store.LastCompletedAt(ctx)
		if err != nil {
			log.Error().Err(err).Msg("query last completion")
			return
		}
		min := s.cfg.Get().MinPublishInterval()
		if !IntervalElapsed(last, min, now) {
			log.Debug().
				Time("last_completed", last).
				Dur("min_interval", min).
				Msg("publish interval not elapsed, waiting for next tick")
			return
		}
		s.dispatch(ctx, t)
		return // at most one dispatch per tick
	}
}

// dispatch claims the guard, transitions the task to running, and launches
// the attempt. Returns false when the guard is contended or the store write
// fails; both simply defer to a later tick.
func (s *Scheduler) dispatch(ctx context.Context, t domain.Task) bool {
	if !s.guard.TryAcquire(t.ID) {
		log.Debug().Str("task_id", t.ID).Str("holder", s.guard.Owner()).Msg("guard busy, deferring")
		return false
	}

	t.MarkRunning()
	if !s.store.Update(ctx, t) {
		s.guard.Release(t.ID)
		log.Error().Str("task_id", t.ID).Msg("persist running state failed")
		return false
	}

	timeout := s.cfg.Get().PublishTimeout()
	attemptCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.nextGen++
	gen := s.nextGen
	a := &attempt{gen: gen, cancel: cancel}
	a.watchdog = time.AfterFunc(timeout, func() { s.onTimeout(t.ID, gen, timeout) })
	s.attempts[t.ID] = a
	s.mu.Unlock()

	log.Info().
		Str("task_id", t.ID).
		Str("title", t.Title).
		Int("retry_count", t.RetryCount).
		Dur("timeout", timeout).
		Msg("dispatching task")
	s.bus.Publish(events.Event{Kind: events.TaskStarted, TaskID: t.ID})

	go func() {
		res, err := s.pub.Publish(attemptCtx, t)
		cancel()
		s.onComplete(t.ID, gen, res, err)
	}()
	return true
}

// onComplete applies a publish result, unless the attempt generation is no
// longer current (the watchdog already resolved this attempt).
func (s *Scheduler) onComplete(taskID string, gen uint64, res domain.Result, err error) {
	s.mu.Lock()
	a, ok := s.attempts[taskID]
	if !ok || a.gen != gen {
		s.mu.Unlock()
		log.Debug().Str("task_id", taskID).Uint64("gen", gen).Msg("stale completion discarded")
		return
	}
	delete(s.attempts, taskID)
	a.watchdog.Stop()
	s.mu.Unlock()

	success := err == nil && res.Success
	message := res.Message
	if err != nil {
		message = err.Error()
	} else if message == "" {
		if success {
			message = "publish succeeded"
		} else {
			message = "publish failed"
		}
	}
	s.resolve(taskID, success, message, false)
}

// onTimeout fires when the watchdog outlives the publisher call. It retires
// the attempt so the eventual reply is discarded, asks the publisher to stop,
// and fails the task.
func (s *Scheduler) onTimeout(taskID string, gen uint64, timeout time.Duration) {
	s.mu.Lock()
	a, ok := s.attempts[taskID]
	if !ok || a.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.attempts, taskID)
	s.mu.Unlock()

	a.cancel() // best-effort; correctness only needs the guard released
	log.Warn().Str("task_id", taskID).Dur("timeout", timeout).Msg("publish attempt timed out")
	s.resolveTimedOut(taskID, fmt.Sprintf("timed out after %s", timeout))
}

// resolve finishes an attempt: persist the outcome, release the guard, emit
// the notification.
func (s *Scheduler) resolve(taskID string, success bool, message string, forced bool) {
	ctx := context.Background()
	t, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		// The task vanished mid-attempt (user deletion). Still free the guard.
		log.Error().Err(err).Str("task_id", taskID).Msg("completed task not found")
		s.releaseGuard(taskID, forced)
		s.bus.Publish(events.Event{Kind: events.TaskFailed, TaskID: taskID, Message: message, Terminal: true})
		return
	}

	if success {
		t.MarkCompleted(message)
	} else {
		t.MarkFailed(message)
	}
	if !s.store.Update(ctx, t) {
		log.Error().Str("task_id", taskID).Msg("persist attempt outcome failed")
	}
	s.releaseGuard(taskID, forced)

	if success {
		log.Info().Str("task_id", taskID).Str("title", t.Title).Msg("task completed")
		s.bus.Publish(events.Event{Kind: events.TaskCompleted, TaskID: taskID, Message: message})
		return
	}

	terminal := !t.CanRetry()
	if terminal {
		log.Error().
			Str("task_id", taskID).
			Int("retry_count", t.RetryCount).
			Str("message", message).
			Msg("task failed, no further retries")
	} else {
		log.Warn().
			Str("task_id", taskID).
			Int("retry_count", t.RetryCount).
			Int("max_retries", t.MaxRetries).
			Str("message", message).
			Msg("task failed, will retry")
	}
	s.bus.Publish(events.Event{Kind: events.TaskFailed, TaskID: taskID, Message: message, Terminal: terminal})
}

func (s *Scheduler) resolveTimedOut(taskID, message string) {
	s.resolve(taskID, false, message, true)
}

func (s *Scheduler) releaseGuard(taskID string, forced bool) {
	if forced {
		s.guard.ForceRelease(taskID)
		return
	}
	s.guard.Release(taskID)
}

func (s *Scheduler) inFlight(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.attempts[taskID]
	return ok
}

// ExecuteNow dispatches a pending task immediately, bypassing the interval
// policy but never the execution guard.
func (s *Scheduler) ExecuteNow(taskID string) bool {
	if !s.Running() {
		log.Warn().Str("task_id", taskID).Msg("execute-now refused: scheduler not running")
		return false
	}
	ctx := context.Background()
	t, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("execute-now: task not found")
		return false
	}
	if t.Status != domain.StatusPending {
		log.Warn().Str("task_id", taskID).Str("status", string(t.Status)).Msg("execute-now refused: task not pending")
		return false
	}
	if s.inFlight(taskID) {
		log.Warn().Str("task_id", taskID).Msg("execute-now refused: attempt already in flight")
		return false
	}
	return s.dispatch(ctx, t)
}

// PublishNow creates a task due immediately and nudges the loop so it is
// evaluated without waiting for the next tick. The normal tick path applies,
// interval policy included.
func (s *Scheduler) PublishNow(title, content string, images, topics []string) (string, error) {
	t := domain.NewTask(title, content, images, topics, time.Now())
	if !s.AddTask(t) {
		return "", fmt.Errorf("create publish-now task")
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return t.ID, nil
}

// AddTask stores a new task. External producers (API, importers) go through
// here so the payload is validated once.
func (s *Scheduler) AddTask(t domain.Task) bool {
	if !t.Valid() {
		log.Error().Msg("rejecting task without a title")
		return false
	}
	ok := s.store.Add(context.Background(), t)
	if ok {
		log.Info().Str("task_id", t.ID).Str("title", t.Title).Time("publish_time", t.PublishTime).Msg("task added")
	}
	return ok
}

// DeleteTask removes a task. Tasks with an attempt in flight are refused;
// stop the attempt first or let it resolve.
func (s *Scheduler) DeleteTask(taskID string) bool {
	if s.inFlight(taskID) {
		log.Warn().Str("task_id", taskID).Msg("delete refused: attempt in flight")
		return false
	}
	ok := s.store.Delete(context.Background(), taskID)
	if ok {
		log.Info().Str("task_id", taskID).Msg("task deleted")
	}
	return ok
}

// ResetForRetry manually returns a failed task to pending with a cleared
// result, the escape hatch once the retry budget is exhausted.
func (s *Scheduler) ResetForRetry(taskID string) bool {
	ctx := context.Background()
	t, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("reset: task not found")
		return false
	}
	if t.Status != domain.StatusFailed {
		log.Warn().Str("task_id", taskID).Str("status", string(t.Status)).Msg("reset refused: task not failed")
		return false
	}
	t.ResetForRetry()
	return s.store.Update(ctx, t)
}

// Statistics returns the store census plus the in-flight attempt count.
func (s *Scheduler) Statistics() (domain.Stats, error) {
	st, err := s.store.Stats(context.Background())
	if err != nil {
		return domain.Stats{}, err
	}
	s.mu.Lock()
	st.Executing = len(s.attempts)
	s.mu.Unlock()
	return st, nil
}
