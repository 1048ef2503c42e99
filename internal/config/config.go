// Package config loads glucoracle settings from an optional YAML file with
// GLUCORACLE_* environment overrides (for example GLUCORACLE_LOGGING_LEVEL).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Answerability AnswerabilityConfig `mapstructure:"answerability"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// MetricsConfig holds metrics engine configuration
type MetricsConfig struct {
	// Workers bounds concurrent per-event computation; 0 uses all CPUs.
	Workers         int    `mapstructure:"workers"`
	MetricSetPrefix string `mapstructure:"metric_set_prefix"`
}

// AnswerabilityConfig holds the evaluator thresholds
type AnswerabilityConfig struct {
	MinEventsPerGroup           int     `mapstructure:"min_events_per_group"`
	MinMetricCoverage           float64 `mapstructure:"min_metric_coverage"`
	MinIsolationMinutes         int     `mapstructure:"min_isolation_minutes"`
	DefaultEventDurationMinutes int     `mapstructure:"default_event_duration_minutes"`
}

// StorageConfig holds metric set store configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
	// MaxMetricSetsPerSubject rotates older sets away; 0 keeps everything.
	MaxMetricSetsPerSubject int `mapstructure:"max_metric_sets_per_subject"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("GLUCORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Every key needs a default so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.workers", 0)
	v.SetDefault("metrics.metric_set_prefix", "ms")

	v.SetDefault("answerability.min_events_per_group", 2)
	v.SetDefault("answerability.min_metric_coverage", 0.7)
	v.SetDefault("answerability.min_isolation_minutes", 30)
	v.SetDefault("answerability.default_event_duration_minutes", 30)

	v.SetDefault("storage.db_path", "./data/glucoracle.db")
	v.SetDefault("storage.max_metric_sets_per_subject", 50)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Metrics.Workers < 0 {
		return fmt.Errorf("metrics.workers must not be negative")
	}

	a := c.Answerability
	if a.MinEventsPerGroup < 1 {
		return fmt.Errorf("answerability.min_events_per_group must be at least 1")
	}
	if a.MinMetricCoverage < 0.0 || a.MinMetricCoverage > 1.0 {
		return fmt.Errorf("answerability.min_metric_coverage must be between 0.0 and 1.0")
	}
	if a.MinIsolationMinutes < 0 {
		return fmt.Errorf("answerability.min_isolation_minutes must not be negative")
	}
	if a.DefaultEventDurationMinutes < 0 {
		return fmt.Errorf("answerability.default_event_duration_minutes must not be negative")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxMetricSetsPerSubject < 0 {
		return fmt.Errorf("storage.max_metric_sets_per_subject must not be negative")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.MaxRetries < 1 {
			return fmt.Errorf("telegram.max_retries must be at least 1")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
