package guard

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Guard is the single-flight gate in front of the shared publisher session.
// At most one owner holds it at a time; a second TryAcquire fails until the
// holder releases. The browser session behind the publisher belongs to one
// account and cannot survive overlapping attempts.
type Guard struct {
	mu       sync.Mutex
	owner    string
	heldAt   time.Time
	forced   uint64 // forced releases since start, for diagnostics
}

func New() *Guard { return &Guard{} }

// TryAcquire atomically claims the guard for ownerID. Returns false without
// blocking when another owner holds it.
func (g *Guard) TryAcquire(ownerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.owner != "" {
		return false
	}
	g.owner = ownerID
	g.heldAt = time.Now()
	return true
}

// Release clears the guard only when held by ownerID. A release by a stale
// owner (e.g. a timed-out attempt racing a fresh acquisition) is dropped and
// logged as an invariant violation.
func (g *Guard) Release(ownerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.owner != ownerID {
		log.Error().
			Str("owner", g.owner).
			Str("releaser", ownerID).
			Msg("guard release without matching acquire")
		return
	}
	g.owner = ""
}

// ForceRelease is Release for the timeout watchdog path; the forced nature is
// recorded for diagnostics.
func (g *Guard) ForceRelease(ownerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.owner != ownerID {
		return
	}
	held := time.Since(g.heldAt)
	g.owner = ""
	g.forced++
	log.Warn().Str("owner", ownerID).Dur("held", held).Msg("guard force-released after timeout")
}

// Owner returns the current holder's id, or "" when the guard is free.
func (g *Guard) Owner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner
}

// HeldBy reports whether ownerID currently holds the guard.
func (g *Guard) HeldBy(ownerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner != "" && g.owner == ownerID
}

// ForcedReleases returns how many times the watchdog had to reclaim the guard.
func (g *Guard) ForcedReleases() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.forced
}
