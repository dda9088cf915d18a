package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Manager owns the on-disk config file: load-or-create at startup, mutex-
// guarded reads, persisted updates, and an optional fsnotify watch that picks
// up external edits.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg Config
}

func NewManager(path string) *Manager {
	return &Manager{path: path, cfg: Default()}
}

// Load reads the config file, writing the defaults first when it is missing.
func (m *Manager) Load() (Config, error) {
	b, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := write(m.path, cfg); err != nil {
			return Config{}, err
		}
		m.commit(cfg)
		log.Info().Str("path", m.path).Msg("wrote default config")
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	cfg, err := parse(b)
	if err != nil {
		return Config{}, err
	}
	m.commit(cfg)
	return cfg, nil
}

// Get returns the current config snapshot.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Update applies fn to the current config, validates, persists, and commits.
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	if err := write(m.path, next); err != nil {
		return err
	}
	m.cfg = next
	return nil
}

func (m *Manager) commit(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Watch reloads the config when the file changes on disk. Events are
// debounced so editors that write in several steps trigger one reload.
// Blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return err
	}
	base := filepath.Base(m.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		b, err := os.ReadFile(m.path)
		if err != nil {
			log.Warn().Err(err).Str("path", m.path).Msg("config reload read failed")
			return
		}
		cfg, err := parse(b)
		if err != nil {
			log.Warn().Err(err).Str("path", m.path).Msg("config rejected, keeping previous")
			return
		}
		m.commit(cfg)
		log.Info().Str("path", m.path).Msg("config reloaded")
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, reload)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), base) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watch error")
		}
	}
}
