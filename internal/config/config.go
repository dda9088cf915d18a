package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the process-wide tunables. Loaded once at startup, optionally
// hot-reloaded from disk, persisted on change.
type Config struct {
	// CheckIntervalSeconds is the scheduler tick period.
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	// MinPublishIntervalMinutes is the global spacing enforced between
	// successful publishes.
	MinPublishIntervalMinutes int `yaml:"min_publish_interval_minutes"`
	// PublishTimeoutSeconds caps a single publish attempt.
	PublishTimeoutSeconds int `yaml:"publish_timeout_seconds"`
	// HeadlessMode is passed through to the publisher command.
	HeadlessMode bool `yaml:"headless_mode"`

	// RetentionDays is how long terminal tasks are kept before the janitor
	// prunes them.
	RetentionDays int `yaml:"retention_days"`
	// JanitorIntervalMinutes is the sweep period.
	JanitorIntervalMinutes int `yaml:"janitor_interval_minutes"`

	// PublisherCommand and PublisherArgs name the external automation command.
	PublisherCommand string   `yaml:"publisher_command"`
	PublisherArgs    []string `yaml:"publisher_args"`
	// WebhookURL, when set, receives scheduler events as JSON POSTs.
	WebhookURL string `yaml:"webhook_url"`
}

func Default() Config {
	return Config{
		CheckIntervalSeconds:      60,
		MinPublishIntervalMinutes: 5,
		PublishTimeoutSeconds:     300,
		HeadlessMode:              false,
		RetentionDays:             7,
		JanitorIntervalMinutes:    30,
	}
}

func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

func (c Config) MinPublishInterval() time.Duration {
	return time.Duration(c.MinPublishIntervalMinutes) * time.Minute
}

func (c Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutSeconds) * time.Second
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c Config) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalMinutes) * time.Minute
}

func (c Config) Validate() error {
	if c.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("check_interval_seconds must be positive, got %d", c.CheckIntervalSeconds)
	}
	if c.PublishTimeoutSeconds <= 0 {
		return fmt.Errorf("publish_timeout_seconds must be positive, got %d", c.PublishTimeoutSeconds)
	}
	if c.MinPublishIntervalMinutes < 0 {
		return fmt.Errorf("min_publish_interval_minutes must not be negative, got %d", c.MinPublishIntervalMinutes)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", c.RetentionDays)
	}
	return nil
}

func parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func write(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
