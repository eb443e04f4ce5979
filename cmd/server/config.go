// Package main provides the PlantPulse server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tidewater-labs/plantpulse/internal/models"
	"github.com/tidewater-labs/plantpulse/internal/notifier"
	"github.com/tidewater-labs/plantpulse/internal/scorer"
)

// Config represents the server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Verbose    bool             `yaml:"-"` // set via CLI flag
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	HTTPAddress      string `yaml:"http_address"`    // REST API listen address (default: :8080)
	MetricsAddress   string `yaml:"metrics_address"` // Prometheus listen address (default: :9090)
	IngestRatePerMin int    `yaml:"ingest_rate_per_min"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file path
}

// ClickHouseConfig contains the optional readings archive settings.
type ClickHouseConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addresses     []string      `yaml:"addresses"`
	Database      string        `yaml:"database"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	RetentionDays int           `yaml:"retention_days"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBuffer     int           `yaml:"max_buffer"`
}

// PipelineConfig contains worker pool settings.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	SkewTolerance time.Duration `yaml:"skew_tolerance"` // out-of-order acceptance window
}

// ThresholdConfig is the sigma boundary set for one sensor type.
type ThresholdConfig struct {
	Low      float64 `yaml:"low"`
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// LimitConfig is a static hard limit pair. Nil means unbounded on that
// side.
type LimitConfig struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// ScoringConfig contains anomaly scoring settings.
type ScoringConfig struct {
	MinSamples int     `yaml:"min_samples"`
	Alpha      float64 `yaml:"alpha"`

	// Thresholds and HardLimits are keyed by sensor type. Defaults apply
	// to sensor types without an entry.
	Thresholds map[string]ThresholdConfig `yaml:"thresholds"`
	Defaults   ThresholdConfig            `yaml:"defaults"`
	HardLimits map[string]LimitConfig     `yaml:"hard_limits"`
}

// AlertingConfig contains alert lifecycle settings.
type AlertingConfig struct {
	RenotifyCooldown time.Duration `yaml:"renotify_cooldown"`
	AutoResolveCount int           `yaml:"auto_resolve_count"`
	EventBufferSize  int           `yaml:"event_buffer_size"`

	// RetentionWindow is how long resolved alerts and their settled
	// notification jobs are kept before the retention sweep removes
	// them from the database and the in-memory indexes.
	RetentionWindow time.Duration `yaml:"retention_window"`
}

// EmailChannelConfig wraps the SMTP settings with an enable switch.
type EmailChannelConfig struct {
	Enabled              bool `yaml:"enabled"`
	notifier.EmailConfig `yaml:",inline"`
}

// SMSChannelConfig wraps the SMS gateway settings with an enable switch.
type SMSChannelConfig struct {
	Enabled            bool `yaml:"enabled"`
	notifier.SMSConfig `yaml:",inline"`
}

// PushChannelConfig wraps the push endpoint settings with an enable
// switch.
type PushChannelConfig struct {
	Enabled             bool `yaml:"enabled"`
	notifier.PushConfig `yaml:",inline"`
}

// OnCallEntry is one person on a factory's on-call roster.
type OnCallEntry struct {
	Channel string `yaml:"channel"`
	Address string `yaml:"address"`
}

// NotifierConfig contains notification dispatch settings.
type NotifierConfig struct {
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RenotifyPerMinute int           `yaml:"renotify_per_minute"`

	Email EmailChannelConfig `yaml:"email"`
	SMS   SMSChannelConfig   `yaml:"sms"`
	Push  PushChannelConfig  `yaml:"push"`

	// ChannelMap routes severity names to channel names. Empty means
	// the built-in default routing.
	ChannelMap map[string][]string `yaml:"channel_map"`

	// Recipients lists addresses per channel name.
	Recipients map[string][]string `yaml:"recipients"`

	// OnCall lists the broadcast roster per factory ID.
	OnCall map[string][]OnCallEntry `yaml:"on_call"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = ":9090"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/plantpulse.db"
	}
	if c.Pipeline.SkewTolerance == 0 {
		c.Pipeline.SkewTolerance = 5 * time.Minute
	}
	if c.Alerting.RetentionWindow == 0 {
		c.Alerting.RetentionWindow = 72 * time.Hour
	}
	if c.ClickHouse.Enabled && len(c.ClickHouse.Addresses) == 0 {
		c.ClickHouse.Addresses = []string{"localhost:9000"}
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "plantpulse"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Scoring.Alpha < 0 || c.Scoring.Alpha >= 1 {
		return fmt.Errorf("scoring.alpha must be in [0, 1)")
	}
	if c.Alerting.RetentionWindow < 0 {
		return fmt.Errorf("alerting.retention_window must not be negative")
	}
	for name := range c.Scoring.Thresholds {
		if _, err := models.ParseSensorType(name); err != nil {
			return fmt.Errorf("scoring.thresholds: %w", err)
		}
	}
	for name := range c.Scoring.HardLimits {
		if _, err := models.ParseSensorType(name); err != nil {
			return fmt.Errorf("scoring.hard_limits: %w", err)
		}
	}
	for sev, channels := range c.Notifier.ChannelMap {
		if _, err := models.ParseSeverity(sev); err != nil {
			return fmt.Errorf("notifier.channel_map: %w", err)
		}
		for _, ch := range channels {
			if _, err := models.ParseChannel(ch); err != nil {
				return fmt.Errorf("notifier.channel_map[%s]: %w", sev, err)
			}
		}
	}
	for ch := range c.Notifier.Recipients {
		if _, err := models.ParseChannel(ch); err != nil {
			return fmt.Errorf("notifier.recipients: %w", err)
		}
	}
	for factory, roster := range c.Notifier.OnCall {
		for _, e := range roster {
			if _, err := models.ParseChannel(e.Channel); err != nil {
				return fmt.Errorf("notifier.on_call[%s]: %w", factory, err)
			}
			if e.Address == "" {
				return fmt.Errorf("notifier.on_call[%s]: address is required", factory)
			}
		}
	}
	if c.Notifier.Email.Enabled {
		if err := c.Notifier.Email.EmailConfig.Validate(); err != nil {
			return fmt.Errorf("notifier.email: %w", err)
		}
	}
	if c.Notifier.SMS.Enabled {
		if err := c.Notifier.SMS.SMSConfig.Validate(); err != nil {
			return fmt.Errorf("notifier.sms: %w", err)
		}
	}
	if c.Notifier.Push.Enabled {
		if err := c.Notifier.Push.PushConfig.Validate(); err != nil {
			return fmt.Errorf("notifier.push: %w", err)
		}
	}
	return nil
}

// ScorerConfig converts the scoring section to a scorer.Config.
func (c *Config) ScorerConfig() scorer.Config {
	cfg := scorer.Config{
		MinSamples:        c.Scoring.MinSamples,
		Alpha:             c.Scoring.Alpha,
		Thresholds:        scoringThresholds(c.Scoring.Thresholds),
		DefaultThresholds: sigmaThresholds(c.Scoring.Defaults),
		HardLimits:        scoringLimits(c.Scoring.HardLimits),
	}
	return cfg
}

func sigmaThresholds(t ThresholdConfig) scorer.SigmaThresholds {
	return scorer.SigmaThresholds{
		Low:      t.Low,
		Medium:   t.Medium,
		High:     t.High,
		Critical: t.Critical,
	}
}

func scoringThresholds(in map[string]ThresholdConfig) map[models.SensorType]scorer.SigmaThresholds {
	if len(in) == 0 {
		return nil
	}
	out := make(map[models.SensorType]scorer.SigmaThresholds, len(in))
	for name, t := range in {
		out[models.SensorType(name)] = sigmaThresholds(t)
	}
	return out
}

func scoringLimits(in map[string]LimitConfig) map[models.SensorType]scorer.HardLimits {
	if len(in) == 0 {
		return nil
	}
	out := make(map[models.SensorType]scorer.HardLimits, len(in))
	for name, l := range in {
		out[models.SensorType(name)] = scorer.HardLimits{Min: l.Min, Max: l.Max}
	}
	return out
}

// DispatcherConfig converts the notifier section to a notifier.Config.
func (c *Config) DispatcherConfig() notifier.Config {
	cfg := notifier.Config{
		ChannelMap:        c.ChannelMap(),
		AttemptTimeout:    c.Notifier.AttemptTimeout,
		RenotifyPerMinute: c.Notifier.RenotifyPerMinute,
	}
	if c.Notifier.MaxAttempts > 0 {
		cfg.Retry = notifier.DefaultRetryPolicy()
		cfg.Retry.MaxAttempts = c.Notifier.MaxAttempts
	}
	if len(c.Notifier.Recipients) > 0 {
		cfg.Recipients = make(map[models.Channel][]string, len(c.Notifier.Recipients))
		for ch, addrs := range c.Notifier.Recipients {
			cfg.Recipients[models.Channel(ch)] = addrs
		}
	}
	if len(c.Notifier.OnCall) > 0 {
		cfg.OnCall = make(map[string][]notifier.Recipient, len(c.Notifier.OnCall))
		for factory, roster := range c.Notifier.OnCall {
			entries := make([]notifier.Recipient, len(roster))
			for i, e := range roster {
				entries[i] = notifier.Recipient{
					Channel: models.Channel(e.Channel),
					Address: e.Address,
				}
			}
			cfg.OnCall[factory] = entries
		}
	}
	return cfg
}

// ChannelMap converts the configured severity routing, or nil when
// unset so the dispatcher default applies.
func (c *Config) ChannelMap() map[models.Severity][]models.Channel {
	if len(c.Notifier.ChannelMap) == 0 {
		return nil
	}
	out := make(map[models.Severity][]models.Channel, len(c.Notifier.ChannelMap))
	for sev, channels := range c.Notifier.ChannelMap {
		parsed, err := models.ParseSeverity(sev)
		if err != nil {
			continue
		}
		chs := make([]models.Channel, 0, len(channels))
		for _, ch := range channels {
			chs = append(chs, models.Channel(ch))
		}
		out[parsed] = chs
	}
	return out
}
