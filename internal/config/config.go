package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.syncbox/config.toml.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	Storage        Storage `toml:"storage"`
	Outbox         Outbox  `toml:"outbox"`
	Logs           Logs    `toml:"logs"`
}

// Storage tunes the engine's busy-retry policy.
type Storage struct {
	BusyRetries     int `toml:"busy_retries"`
	BusyBaseDelayMs int `toml:"busy_base_delay_ms"`
	BusyMaxDelayMs  int `toml:"busy_max_delay_ms"`
}

// Outbox tunes the drain policy.
type Outbox struct {
	MaxAttempts     int `toml:"max_attempts"`
	DrainIntervalMs int `toml:"drain_interval_ms"`
}

// Logs tunes diagnostic log retention.
type Logs struct {
	RetentionDays int `toml:"retention_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProfile: "default",
		Storage: Storage{
			BusyRetries:     5,
			BusyBaseDelayMs: 100,
			BusyMaxDelayMs:  500,
		},
		Outbox: Outbox{
			MaxAttempts:     5,
			DrainIntervalMs: 2000,
		},
		Logs: Logs{
			RetentionDays: 7,
		},
	}
}

// Load reads config from the given path. Returns an error if the file is
// missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
