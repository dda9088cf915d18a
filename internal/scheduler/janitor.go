package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"pubflow/internal/config"
	"pubflow/internal/guard"
	"pubflow/internal/store"
)

// orphanMargin is added on top of the publish timeout before a running task
// with no live attempt is treated as left over from a crash or restart.
const orphanMargin = 5 * time.Minute

// Janitor periodically recovers orphaned running state and prunes terminal
// tasks past the retention window.
type Janitor struct {
	store store.Store
	guard *guard.Guard
	cfg   *config.Manager
	cron  *cron.Cron
}

func NewJanitor(st store.Store, g *guard.Guard, cfg *config.Manager) *Janitor {
	return &Janitor{store: st, guard: g, cfg: cfg, cron: cron.New()}
}

// Start schedules the sweep at the configured period and runs forever until
// Stop. The interval is read once; changing it requires a restart.
func (j *Janitor) Start() error {
	spec := fmt.Sprintf("@every %s", j.cfg.Get().JanitorInterval())
	if _, err := j.cron.AddFunc(spec, j.Sweep); err != nil {
		return err
	}
	j.cron.Start()
	log.Info().Str("schedule", spec).Msg("janitor started")
	return nil
}

func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep runs one cleanup pass: orphan recovery, then retention pruning.
func (j *Janitor) Sweep() {
	ctx := context.Background()
	now := time.Now()

	j.recoverOrphans(ctx, now)

	cutoff := now.Add(-j.cfg.Get().Retention())
	pruned, err := j.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("retention prune failed")
	} else if pruned > 0 {
		log.Info().Int("pruned", pruned).Time("cutoff", cutoff).Msg("pruned old terminal tasks")
	}
}

// RecoverOrphans is also called once at startup, before the first tick, so a
// crash mid-attempt doesn't leave a task stuck in running forever.
func (j *Janitor) RecoverOrphans() int {
	return j.recoverOrphans(context.Background(), time.Now())
}

func (j *Janitor) recoverOrphans(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-(j.cfg.Get().PublishTimeout() + orphanMargin))
	stale, err := j.store.ListRunningOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("orphan scan failed")
		return 0
	}

	recovered := 0
	for _, t := range stale {
		// A task whose id still holds the guard has a live watchdog; leave
		// it to the scheduler.
		if j.guard.HeldBy(t.ID) {
			continue
		}
		staleSince := t.UpdatedTime
		t.MarkFailed("recovered after restart")
		if !j.store.Update(ctx, t) {
			log.Error().Str("task_id", t.ID).Msg("persist orphan recovery failed")
			continue
		}
		recovered++
		log.Warn().Str("task_id", t.ID).Time("stale_since", staleSince).Msg("recovered orphaned running task")
	}
	return recovered
}
