package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubflow.yaml")
	m := NewManager(path)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("cfg=%+v, want defaults", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	// A second manager reads the file that was just written.
	cfg2, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(cfg2, cfg) {
		t.Fatalf("reloaded=%+v, want %+v", cfg2, cfg)
	}
}

func TestLoadParsesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubflow.yaml")
	content := []byte("check_interval_seconds: 10\nmin_publish_interval_minutes: 2\npublish_timeout_seconds: 30\nheadless_mode: true\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CheckInterval() != 10*time.Second {
		t.Fatalf("check interval=%v", cfg.CheckInterval())
	}
	if cfg.MinPublishInterval() != 2*time.Minute {
		t.Fatalf("min interval=%v", cfg.MinPublishInterval())
	}
	if cfg.PublishTimeout() != 30*time.Second {
		t.Fatalf("timeout=%v", cfg.PublishTimeout())
	}
	if !cfg.HeadlessMode {
		t.Fatal("headless_mode not parsed")
	}
	// Unspecified fields keep their defaults.
	if cfg.RetentionDays != Default().RetentionDays {
		t.Fatalf("retention_days=%d", cfg.RetentionDays)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubflow.yaml")
	if err := os.WriteFile(path, []byte("check_interval_seconds: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("Load should reject a zero check interval")
	}
}

func TestUpdatePersistsAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubflow.yaml")
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := m.Update(func(c *Config) { c.MinPublishIntervalMinutes = 10 }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := m.Get().MinPublishIntervalMinutes; got != 10 {
		t.Fatalf("min interval=%d, want 10", got)
	}

	reloaded, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.MinPublishIntervalMinutes != 10 {
		t.Fatal("Update was not persisted")
	}

	err = m.Update(func(c *Config) { c.PublishTimeoutSeconds = -1 })
	if err == nil {
		t.Fatal("Update should reject an invalid config")
	}
	if got := m.Get().PublishTimeoutSeconds; got != Default().PublishTimeoutSeconds {
		t.Fatalf("rejected update leaked into current config: %d", got)
	}
}
