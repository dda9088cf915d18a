package events

import (
	"sync"
	"time"
)

// Kind labels a scheduler notification.
type Kind string

const (
	TaskStarted     Kind = "task_started"
	TaskCompleted   Kind = "task_completed"
	TaskFailed      Kind = "task_failed"
	SchedulerStatus Kind = "scheduler_status"
)

// Event is a fire-and-forget notification pushed by the scheduler. Observers
// (HTTP clients, webhook forwarders) consume it; delivery is best-effort and
// never part of the scheduler's own correctness.
type Event struct {
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	TaskID  string    `json:"task_id,omitempty"`
	Message string    `json:"message,omitempty"`
	// Terminal marks a TaskFailed that exhausted its retry budget.
	Terminal bool `json:"terminal,omitempty"`
}

// Bus is an in-memory fanout. Publish never blocks: slow subscribers drop
// events once their buffer is full.
type Bus struct {
	mu   sync.RWMutex
	seq  uint64
	subs map[uint64]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a buffered listener. The unsubscribe func must be
// called exactly once when the listener is done; the channel closes then.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
