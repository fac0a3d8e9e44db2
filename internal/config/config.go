// Package config loads the engine configuration from a YAML file.
//
// Every field has a usable default: running without a config file gives a
// local SQLite database and minute-granularity ticking, which is what
// development and the test harness want.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kpetrov/driplane/internal/domain"
	"github.com/kpetrov/driplane/internal/outbox"
	"github.com/kpetrov/driplane/internal/scheduler"
)

// Config is the engine configuration.
type Config struct {
	// DBPath is the SQLite database file. Created on first open.
	DBPath string `yaml:"db_path"`

	// SchedulerCron is the cron expression for the matching tick.
	// Standard five-field cron syntax.
	SchedulerCron string `yaml:"scheduler_cron"`

	// OutboxCron is the cron expression for the delivery pass.
	OutboxCron string `yaml:"outbox_cron"`

	// DripBatchSize caps due direct messages picked up per tick.
	DripBatchSize int `yaml:"drip_batch_size"`

	// OutboxBatchSize caps outbox tasks attempted per delivery pass.
	OutboxBatchSize int `yaml:"outbox_batch_size"`

	// MaxRetries is the delivery attempt budget for new outbox tasks.
	MaxRetries int `yaml:"max_retries"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBPath:          "driplane.db",
		SchedulerCron:   "* * * * *",
		OutboxCron:      "* * * * *",
		DripBatchSize:   scheduler.DefaultDripBatchSize,
		OutboxBatchSize: outbox.DefaultBatchSize,
		MaxRetries:      domain.DefaultMaxRetries,
	}
}

// Load reads a YAML config file and overlays it on the defaults. Fields
// absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.DripBatchSize <= 0 {
		return fmt.Errorf("drip_batch_size must be positive, got %d", c.DripBatchSize)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("outbox_batch_size must be positive, got %d", c.OutboxBatchSize)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries)
	}
	return nil
}
