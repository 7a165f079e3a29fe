package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when process settings fail validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the process-wide settings shared by every subcommand
type Config struct {
	RedisURL     string
	KeyPrefix    string // Optional namespace prepended to every Redis key
	LogLevel     string
	LogRetention int64 // Entries kept per room log stream
	MetricsAddr  string

	Inference InferenceConfig
	Dashboard DashboardConfig
	Archive   ArchiveConfig
	Alert     AlertConfig
}

// InferenceConfig configures the OpenAI-compatible vision endpoint
type InferenceConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	MaxRPS          float64
	Temperature     float64
	MaxTokens       int
	GuidedJSON      bool // Send vLLM guided_json with the verdict schema
	FailureLimit    int  // Consecutive failures before the endpoint is reported unavailable
	HealthInterval  time.Duration
}

// DashboardConfig configures the read-only viewer
type DashboardConfig struct {
	Port         int
	PollInterval time.Duration
	JWTSecret    string // Empty disables authentication
	TokenTTL     time.Duration
}

// ArchiveConfig configures the optional durable verdict history
type ArchiveConfig struct {
	DSN         string // mysql://... or a SQLite file path; empty disables the archive
	Retention   time.Duration
	CleanupCron string
}

// Enabled reports whether an archive DSN was configured
func (a ArchiveConfig) Enabled() bool {
	return a.DSN != ""
}

// AlertConfig configures the alert sinks
type AlertConfig struct {
	Player     string
	SoundFile  string
	WebhookURL string
}

var defaults = map[string]interface{}{
	"redis_url":                 "redis://localhost:6379",
	"key_prefix":                "",
	"log_level":                 "",
	"log_retention":             3600 * 6,
	"metrics_addr":              "",
	"inference_base_url":        "http://localhost:8000/v1",
	"inference_api_key":         "EMPTY",
	"inference_timeout":         "30s",
	"inference_max_retries":     2,
	"inference_retry_backoff":   "500ms",
	"inference_max_backoff":     "4s",
	"inference_max_rps":         2.0,
	"inference_temperature":     0.1,
	"inference_max_tokens":      512,
	"inference_guided_json":     true,
	"inference_failure_limit":   3,
	"inference_health_interval": "5m",
	"dashboard_port":            8501,
	"dashboard_poll_interval":   "1s",
	"dashboard_jwt_secret":      "",
	"dashboard_token_ttl":       "720h",
	"archive_dsn":               "",
	"archive_retention":         "720h",
	"archive_cleanup_cron":      "0 3 * * *",
	"alert_player":              "aplay",
	"alert_sound_file":          "",
	"alert_webhook_url":         "",
}

// NewViper returns a viper instance carrying defaults, environment overrides and,
// when settingsFile is non-empty, the values from that file.
// Callers may bind command-line flags onto it before calling FromViper.
func NewViper(settingsFile string) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}
	return v, nil
}

// Load reads settings from the environment and the optional settings file
func Load(settingsFile string) (*Config, error) {
	v, err := NewViper(settingsFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper builds and validates a Config
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		RedisURL:     v.GetString("redis_url"),
		KeyPrefix:    v.GetString("key_prefix"),
		LogLevel:     v.GetString("log_level"),
		LogRetention: v.GetInt64("log_retention"),
		MetricsAddr:  v.GetString("metrics_addr"),

		Inference: InferenceConfig{
			BaseURL:         strings.TrimRight(v.GetString("inference_base_url"), "/"),
			APIKey:          v.GetString("inference_api_key"),
			Timeout:         v.GetDuration("inference_timeout"),
			MaxRetries:      v.GetInt("inference_max_retries"),
			RetryBackoff:    v.GetDuration("inference_retry_backoff"),
			MaxRetryBackoff: v.GetDuration("inference_max_backoff"),
			MaxRPS:          v.GetFloat64("inference_max_rps"),
			Temperature:     v.GetFloat64("inference_temperature"),
			MaxTokens:       v.GetInt("inference_max_tokens"),
			GuidedJSON:      v.GetBool("inference_guided_json"),
			FailureLimit:    v.GetInt("inference_failure_limit"),
			HealthInterval:  v.GetDuration("inference_health_interval"),
		},

		Dashboard: DashboardConfig{
			Port:         v.GetInt("dashboard_port"),
			PollInterval: v.GetDuration("dashboard_poll_interval"),
			JWTSecret:    v.GetString("dashboard_jwt_secret"),
			TokenTTL:     v.GetDuration("dashboard_token_ttl"),
		},

		Archive: ArchiveConfig{
			DSN:         v.GetString("archive_dsn"),
			Retention:   v.GetDuration("archive_retention"),
			CleanupCron: v.GetString("archive_cleanup_cron"),
		},

		Alert: AlertConfig{
			Player:     v.GetString("alert_player"),
			SoundFile:  v.GetString("alert_sound_file"),
			WebhookURL: v.GetString("alert_webhook_url"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail later inside a loop
func (c *Config) Validate() error {
	var errs []error

	if c.RedisURL == "" {
		errs = append(errs, errors.New("redis_url is required"))
	}
	if u, err := url.Parse(c.Inference.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("inference_base_url %q is not an absolute URL", c.Inference.BaseURL))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, errors.New("inference_timeout must be positive"))
	}
	if c.Inference.MaxRetries < 0 {
		errs = append(errs, errors.New("inference_max_retries must not be negative"))
	}
	if c.Inference.MaxRPS <= 0 {
		errs = append(errs, errors.New("inference_max_rps must be positive"))
	}
	if c.Inference.MaxTokens <= 0 {
		errs = append(errs, errors.New("inference_max_tokens must be positive"))
	}
	if c.LogRetention <= 0 {
		errs = append(errs, errors.New("log_retention must be positive"))
	}
	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Errorf("dashboard_port %d is out of range", c.Dashboard.Port))
	}
	if c.Archive.Enabled() {
		if c.Archive.Retention <= 0 {
			errs = append(errs, errors.New("archive_retention must be positive"))
		}
		if _, err := cron.ParseStandard(c.Archive.CleanupCron); err != nil {
			errs = append(errs, fmt.Errorf("archive_cleanup_cron %q: %w", c.Archive.CleanupCron, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
