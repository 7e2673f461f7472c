package config

import (
	"fmt"
	"time"
)

// Config holds all replay server configuration. Chunking parameters
// (sequence length, period) come from the vault registry entry, not from
// here.
type Config struct {
	// Dataset selection
	RegistryPath string `mapstructure:"registry_path"`
	Env          string `mapstructure:"env"`
	Scenario     string `mapstructure:"scenario"`
	VaultDir     string `mapstructure:"vault_dir"`
	Download     bool   `mapstructure:"download"`

	// Buffer settings
	MaxSize      int   `mapstructure:"max_size"`
	BatchSize    int   `mapstructure:"batch_size"`
	SamplePeriod int   `mapstructure:"sample_period"`
	Seed         int64 `mapstructure:"seed"`

	// Serving
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Collection (collect command)
	CollectEpisodes int           `mapstructure:"collect_episodes"`
	EpisodeTimeout  time.Duration `mapstructure:"episode_timeout"`

	// Training (train command)
	TrainSteps int `mapstructure:"train_steps"`
	LogEvery   int `mapstructure:"log_every"`

	// Events (optional; empty NATS URL disables publishing)
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		RegistryPath:    "vaults.yaml",
		VaultDir:        "vaults",
		MaxSize:         50_000,
		BatchSize:       32,
		SamplePeriod:    1,
		Seed:            42,
		HTTPAddr:        ":8080",
		ShutdownTimeout: 30 * time.Second,
		CollectEpisodes: 100,
		TrainSteps:      1000,
		LogEvery:        100,
		NATSSubject:     "trajectory",
		LogLevel:        "info",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RegistryPath == "" {
		return fmt.Errorf("registry_path is required")
	}
	if c.Env == "" {
		return fmt.Errorf("env is required")
	}
	if c.Scenario == "" {
		return fmt.Errorf("scenario is required")
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("max_size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.SamplePeriod < 1 {
		return fmt.Errorf("sample_period must be at least 1")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.CollectEpisodes == 0 || c.CollectEpisodes < -1 {
		return fmt.Errorf("collect_episodes must be positive or -1 for unlimited")
	}
	if c.TrainSteps <= 0 {
		return fmt.Errorf("train_steps must be positive")
	}
	if c.LogEvery <= 0 {
		return fmt.Errorf("log_every must be positive")
	}
	return nil
}
