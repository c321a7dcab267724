// Package config provides configuration management for the alarm reconciler.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/robfig/cron/v3"

	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/security"
)

// MaxSampleDays is the longest lookback the backend retains at hourly granularity.
const MaxSampleDays = 455

// Upper bounds for the alarm's evaluation settings.
const (
	MaxAlarmPeriod       = 86400 // one day, in seconds
	MaxEvaluationPeriods = 10080 // one week of one-minute periods
)

// Config holds all configuration for the reconciler. It is built once at startup and not
// modified afterwards.
type Config struct {
	// Alarm definition
	AlarmActions            []string `json:"alarm_actions"`
	OKActions               []string `json:"ok_actions"`
	InsufficientDataActions []string `json:"insufficient_data_actions"`
	AlarmBounds             string   `json:"alarm_bounds"`
	EvaluationPeriods       int      `json:"evaluation_periods"`
	DatapointsToAlarm       int      `json:"datapoints_to_alarm"`
	AlarmPeriod             int      `json:"alarm_period"` // seconds
	AlarmName               string   `json:"alarm_name,omitempty"`
	TreatMissingData        string   `json:"treat_missing_data"`

	// Metric selection
	Namespace        string `json:"namespace"`
	MetricName       string `json:"metric_name"`
	MetricDimensions string `json:"metric_dimensions,omitempty"` // name,regex;name,regex
	SampleDays       int    `json:"sample_days"`
	Statistic        string `json:"statistic"`
	Unit             string `json:"unit,omitempty"`
	StdDevMultiplier int    `json:"stddev_multiplier"`

	// CloudWatch client
	AWSRegion          string `json:"aws_region,omitempty"`
	CloudWatchEndpoint string `json:"cloudwatch_endpoint,omitempty"`
	MaxRetries         int    `json:"max_retries"`
	RateLimit          int    `json:"rate_limit"`       // requests per second
	RateLimitBurst     int    `json:"rate_limit_burst"` // burst size
	EnableRateLimit    bool   `json:"enable_rate_limit"`

	// Run control
	RunTimeout time.Duration `json:"run_timeout"`
	DryRun     bool          `json:"dry_run"`
	Schedule   string        `json:"schedule,omitempty"` // cron expression, empty runs once

	// Observability
	PushgatewayURL string `json:"pushgateway_url,omitempty"`
	PushJobName    string `json:"push_job_name"`
	MetricsAddr    string `json:"metrics_addr,omitempty"` // scheduled mode only
	EnableTracing  bool   `json:"enable_tracing"`
	EnableAuditLog bool   `json:"enable_audit_log"`

	// Logging
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"` // json or console
	LogFile     string `json:"log_file,omitempty"` // rotated copy of the log, empty = stderr only
	Environment string `json:"environment"`
}

// Load configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		AlarmBounds:      string(monitoring.BoundsBoth),
		TreatMissingData: string(monitoring.TreatMissingMissing),
		SampleDays:       15,
		StdDevMultiplier: 3,
		MaxRetries:       5,
		RateLimit:        10,
		RateLimitBurst:   5,
		EnableRateLimit:  true,
		RunTimeout:       5 * time.Minute,
		PushJobName:      "cloudwatch_stddev_alarms",
		EnableTracing:    false,
		EnableAuditLog:   true,
		LogLevel:         "info",
		LogFormat:        "json",
		Environment:      "production",
	}

	// Try to load from config file if specified
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	cleanPath := filepath.Clean(path)

	// Prevent path traversal by checking for ".." components
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid file path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return json.Unmarshal(data, cfg)
}

// envLoader applies environment overrides and remembers the first malformed value.
type envLoader struct {
	err error
}

func (l *envLoader) setString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (l *envLoader) setInt(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(apperrors.NewConfigurationError("%s must be an integer, got %q", key, v))
		return
	}
	*dst = n
}

func (l *envLoader) setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func (l *envLoader) setDuration(key string, dst *time.Duration) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(apperrors.NewConfigurationError("%s must be a duration such as 5m, got %q", key, v))
		return
	}
	*dst = d
}

func (l *envLoader) setList(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		*dst = ParseActions(v)
	}
}

func (l *envLoader) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func loadFromEnv(cfg *Config) error {
	l := &envLoader{}

	l.setList("ALARM_ACTIONS", &cfg.AlarmActions)
	l.setList("OK_ACTIONS", &cfg.OKActions)
	l.setList("INSUFFICIENT_DATA_ACTIONS", &cfg.InsufficientDataActions)
	l.setString("ALARM_BOUNDS", &cfg.AlarmBounds)
	l.setInt("ALARM_EVALUATION_PERIODS", &cfg.EvaluationPeriods)
	l.setInt("ALARM_DATAPOINTS_TO_ALARM", &cfg.DatapointsToAlarm)
	l.setInt("ALARM_PERIOD", &cfg.AlarmPeriod)
	l.setString("ALARM_NAME", &cfg.AlarmName)
	l.setString("TREAT_MISSING_DATA", &cfg.TreatMissingData)

	l.setString("METRIC_NAMESPACE", &cfg.Namespace)
	l.setString("METRIC_NAME", &cfg.MetricName)
	l.setString("METRIC_DIMENSIONS", &cfg.MetricDimensions)
	l.setInt("METRIC_SAMPLE_DAYS", &cfg.SampleDays)
	l.setString("METRIC_STAT", &cfg.Statistic)
	l.setString("METRIC_UNIT", &cfg.Unit)
	l.setInt("NUM_STANDARD_DEVIATION", &cfg.StdDevMultiplier)

	l.setString("AWS_REGION", &cfg.AWSRegion)
	l.setString("CLOUDWATCH_ENDPOINT", &cfg.CloudWatchEndpoint)
	l.setInt("CLOUDWATCH_MAX_RETRIES", &cfg.MaxRetries)
	l.setInt("CLOUDWATCH_RATE_LIMIT", &cfg.RateLimit)
	l.setInt("CLOUDWATCH_RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	l.setBool("ENABLE_RATE_LIMIT", &cfg.EnableRateLimit)

	l.setDuration("RUN_TIMEOUT", &cfg.RunTimeout)
	l.setBool("DRY_RUN", &cfg.DryRun)
	l.setString("SCHEDULE", &cfg.Schedule)

	l.setString("PUSHGATEWAY_URL", &cfg.PushgatewayURL)
	l.setString("PUSH_JOB_NAME", &cfg.PushJobName)
	l.setString("METRICS_ADDR", &cfg.MetricsAddr)
	l.setBool("ENABLE_TRACING", &cfg.EnableTracing)
	l.setBool("ENABLE_AUDIT_LOG", &cfg.EnableAuditLog)

	l.setString("LOG_LEVEL", &cfg.LogLevel)
	l.setString("LOG_FORMAT", &cfg.LogFormat)
	l.setString("LOG_FILE", &cfg.LogFile)
	l.setString("ENVIRONMENT", &cfg.Environment)

	return l.err
}

// ParseActions splits a comma-separated action list, trimming entries and dropping empties.
func ParseActions(raw string) []string {
	actions := []string{}
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}
	return actions
}

// Validate checks if the configuration is valid. Every failure is a configuration error.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"METRIC_NAMESPACE", c.Namespace},
		{"METRIC_NAME", c.MetricName},
		{"METRIC_STAT", c.Statistic},
	}
	for _, r := range required {
		if r.value == "" {
			return apperrors.NewMissingParameter(r.name)
		}
	}

	if c.AlarmPeriod <= 0 || c.AlarmPeriod > MaxAlarmPeriod {
		return apperrors.NewConfigurationError(
			"ALARM_PERIOD must be between 1 and %d seconds, got %d", MaxAlarmPeriod, c.AlarmPeriod)
	}
	if c.EvaluationPeriods < 1 || c.EvaluationPeriods > MaxEvaluationPeriods {
		return apperrors.NewConfigurationError(
			"ALARM_EVALUATION_PERIODS must be between 1 and %d, got %d", MaxEvaluationPeriods, c.EvaluationPeriods)
	}
	if c.DatapointsToAlarm < 1 || c.DatapointsToAlarm > c.EvaluationPeriods {
		return apperrors.NewConfigurationError(
			"ALARM_DATAPOINTS_TO_ALARM must be between 1 and ALARM_EVALUATION_PERIODS (%d), got %d",
			c.EvaluationPeriods, c.DatapointsToAlarm)
	}
	if c.SampleDays < 1 || c.SampleDays > MaxSampleDays {
		return apperrors.NewConfigurationError(
			"METRIC_SAMPLE_DAYS must be between 1 and %d, got %d", MaxSampleDays, c.SampleDays)
	}
	if c.StdDevMultiplier < 1 {
		return apperrors.NewConfigurationError("NUM_STANDARD_DEVIATION must be at least 1, got %d", c.StdDevMultiplier)
	}
	if !monitoring.ValidStatistic(c.Statistic) {
		return apperrors.NewConfigurationError(
			"METRIC_STAT %s is neither a standard statistic nor a percentile such as p99", c.Statistic)
	}
	if c.Unit != "" && !validUnit(c.Unit) {
		return apperrors.NewConfigurationError("METRIC_UNIT %s is not a CloudWatch standard unit", c.Unit)
	}
	if _, err := c.BoundsMode(); err != nil {
		return err
	}
	if _, err := c.TreatMissing(); err != nil {
		return err
	}
	if _, err := c.DimensionFilter(); err != nil {
		return err
	}

	if c.MaxRetries < 0 {
		return apperrors.NewConfigurationError("CLOUDWATCH_MAX_RETRIES must be non-negative")
	}
	if c.EnableRateLimit && (c.RateLimit <= 0 || c.RateLimitBurst <= 0) {
		return apperrors.NewConfigurationError("rate limit and burst must be positive when rate limiting is enabled")
	}
	if c.RunTimeout <= 0 {
		return apperrors.NewConfigurationError("RUN_TIMEOUT must be positive")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return apperrors.NewConfigurationError("SCHEDULE %q is not a valid cron expression", c.Schedule).Wrap(err)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return apperrors.NewConfigurationError("invalid log level: %s", c.LogLevel)
	}

	return nil
}

func validUnit(unit string) bool {
	for _, u := range types.StandardUnit("").Values() {
		if string(u) == unit {
			return true
		}
	}
	return false
}

// BoundsMode returns the parsed ALARM_BOUNDS value
func (c *Config) BoundsMode() (monitoring.BoundsMode, error) {
	return monitoring.ParseBoundsMode(c.AlarmBounds)
}

// TreatMissing returns the parsed TREAT_MISSING_DATA value
func (c *Config) TreatMissing() (monitoring.TreatMissingData, error) {
	return monitoring.ParseTreatMissingData(c.TreatMissingData)
}

// DimensionFilter returns the parsed METRIC_DIMENSIONS value
func (c *Config) DimensionFilter() (monitoring.DimensionFilter, error) {
	return monitoring.ParseDimensionFilter(c.MetricDimensions)
}

// Redact returns a copy of the config with account IDs in action ARNs masked
func (c *Config) Redact() *Config {
	redacted := *c
	redacted.AlarmActions = security.MaskARNs(c.AlarmActions)
	redacted.OKActions = security.MaskARNs(c.OKActions)
	redacted.InsufficientDataActions = security.MaskARNs(c.InsufficientDataActions)
	return &redacted
}
