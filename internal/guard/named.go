package guard

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// NamedLocks guards arbitrary operations by name, preventing duplicate
// triggers of the same action (e.g. two overlapping "import" requests). Each
// held name auto-releases after its ttl so an abandoned operation cannot wedge
// the name forever.
type NamedLocks struct {
	mu     sync.Mutex
	active map[string]*namedLock
}

type namedLock struct {
	startedAt time.Time
	timer     *time.Timer
}

func NewNamedLocks() *NamedLocks {
	return &NamedLocks{active: make(map[string]*namedLock)}
}

// Acquire claims name for at most ttl. On success the returned release func
// frees the name early; calling it more than once is harmless. A ttl <= 0
// means no auto-release.
func (n *NamedLocks) Acquire(name string, ttl time.Duration) (release func(), ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, held := n.active[name]; held {
		return nil, false
	}

	l := &namedLock{startedAt: time.Now()}
	if ttl > 0 {
		l.timer = time.AfterFunc(ttl, func() {
			if n.drop(name, l) {
				log.Warn().Str("operation", name).Dur("ttl", ttl).Msg("operation lock expired")
			}
		})
	}
	n.active[name] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			if l.timer != nil {
				l.timer.Stop()
			}
			n.drop(name, l)
		})
	}, true
}

// Active reports whether name is currently held.
func (n *NamedLocks) Active(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, held := n.active[name]
	return held
}

// drop removes name only if it still maps to l, so an expired lock can't
// release a successor that reused the name.
func (n *NamedLocks) drop(name string, l *namedLock) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur, held := n.active[name]; held && cur == l {
		delete(n.active, name)
		return true
	}
	return false
}
