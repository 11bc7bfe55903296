// Package config loads the alarmd YAML configuration. Unknown keys are
// rejected so typos surface at startup instead of silently falling back to
// defaults. All durations are Go duration strings (e.g. "500ms", "30s").
package config

import (
	"bytes"
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	// Listen is the HTTP listen address for the web UI and API.
	Listen string `yaml:"listen"`

	Logging     LoggingConfig     `yaml:"logging"`
	Storage     StorageConfig     `yaml:"storage"`
	Notify      NotifyConfig      `yaml:"notify"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `yaml:"busy_timeout"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig enables alarm delivery to a Telegram chat.
type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Token      string `yaml:"token"`
	ChatID     int64  `yaml:"chat_id"`
	RatePerSec int    `yaml:"rate_per_sec"`
}

// MaintenanceConfig controls the janitor that prunes fired non-recurring
// alarms from the database.
type MaintenanceConfig struct {
	Enabled bool `yaml:"enabled"`
	// PruneSchedule is a 5-field cron expression or descriptor ("@daily").
	PruneSchedule string `yaml:"prune_schedule"`
	// Retention is how long fired alarms are kept before pruning.
	Retention string `yaml:"retention"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Storage: StorageConfig{
			Path:        "./alarms.db",
			BusyTimeout: "5s",
		},
		Maintenance: MaintenanceConfig{
			Enabled:       true,
			PruneSchedule: "17 3 * * *",
			Retention:     "720h", // 30 days
		},
	}
}

// Load reads path and merges it over the defaults. A missing file is an
// error; run with a generated example config instead.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("maintenance.retention", c.Maintenance.Retention); err != nil {
		return err
	}
	if c.Notify.Telegram.Enabled && c.Notify.Telegram.Token == "" {
		return fmt.Errorf("notify.telegram.token is required when enabled")
	}
	return nil
}
