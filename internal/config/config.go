// Package config provides configuration management for the
// orchestration core. It supports loading configuration from
// environment variables, files (YAML/JSON), and defaults, with a clear
// precedence order: env > file > defaults.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete orchestrator configuration.
type Config struct {
	Scheduling    SchedulingConfig    `json:"scheduling" yaml:"scheduling"`
	AgentManager  AgentManagerConfig  `json:"agent_manager" yaml:"agent_manager"`
	Bus           BusConfig           `json:"bus" yaml:"bus"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// SchedulingConfig holds the Workflow Orchestrator's scheduling defaults
// (§4.1, §5).
type SchedulingConfig struct {
	DefaultMaxConcurrentSteps       int     `json:"default_max_concurrent_steps" yaml:"default_max_concurrent_steps"`
	DefaultWorkflowDeadlineMinutes  float64 `json:"default_workflow_deadline_minutes" yaml:"default_workflow_deadline_minutes"`
	DefaultStepTimeoutSeconds       int     `json:"default_step_timeout_seconds" yaml:"default_step_timeout_seconds"`
	DefaultStepIdleYieldMillis      int     `json:"default_step_idle_yield_millis" yaml:"default_step_idle_yield_millis"`
}

// AgentManagerConfig holds the Agent Manager's per-type concurrency caps
// (§4.2) and the named quality-gate profile to apply.
type AgentManagerConfig struct {
	ConcurrencyCaps    map[string]int `json:"concurrency_caps" yaml:"concurrency_caps"`
	QualityGateProfile string         `json:"quality_gate_profile" yaml:"quality_gate_profile"` // default, relaxed, strict
}

// BusConfig holds the Communication Bus's queueing defaults (§4.4).
type BusConfig struct {
	QueueCapacity    int    `json:"queue_capacity" yaml:"queue_capacity"`
	ProcessingRate   int    `json:"processing_rate" yaml:"processing_rate"`
	MaxDeliveryTries int    `json:"max_delivery_tries" yaml:"max_delivery_tries"`
	RedisAddr        string `json:"redis_addr" yaml:"redis_addr"` // loaded and merged only; the Bus does not read it
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Sentry  SentryConfig  `json:"sentry" yaml:"sentry"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// SentryConfig holds Sentry error monitoring configuration.
type SentryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	DSN         string  `json:"dsn" yaml:"dsn"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
	Release     string  `json:"release" yaml:"release"`
}

// Default values
const (
	DefaultMaxConcurrentSteps      = 1
	DefaultWorkflowDeadlineMinutes = 5.0
	DefaultStepTimeoutSeconds      = 30
	DefaultStepIdleYieldMillis     = 50

	DefaultQualityGateProfile = "default"

	DefaultBusQueueCapacity    = 1000
	DefaultBusProcessingRate   = 10
	DefaultBusMaxDeliveryTries = 3

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsEnabled  = false
	DefaultMetricsPort     = 9091
	DefaultMetricsPath     = "/metrics"
	DefaultTracingEnabled  = false
	DefaultTracingEndpoint = "http://localhost:4318"
	DefaultSampleRate      = 0.1
	DefaultSentryEnabled   = false
	DefaultSentryEnv       = "development"
	DefaultSentrySampleRate = 1.0
	DefaultSentryRelease   = "0.1.0"
)

// ValidLogLevels and ValidLogFormats bound LoggingConfig.Validate.
var (
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"json", "text"}
)

// defaultConcurrencyCaps mirrors agentmgr's fixed per-type defaults
// (§4.2). agentmgr keeps its own table and does not read these values,
// so overriding them here does not change the caps it enforces.
func defaultConcurrencyCaps() map[string]int {
	return map[string]int{
		"analysis":       3,
		"content":        2,
		"recommendation": 4,
		"validation":     5,
		"coordination":   1,
		"specialist":     2,
	}
}

// Load loads configuration from environment variables and an optional
// config file. Precedence: env vars > config file > defaults.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("ORCHESTRATOR_CONFIG_FILE"); path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		cfg = merge(cfg, fileCfg)
	}

	cfg = loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config populated entirely from the Default* constants.
func defaults() *Config {
	return &Config{
		Scheduling: SchedulingConfig{
			DefaultMaxConcurrentSteps:      DefaultMaxConcurrentSteps,
			DefaultWorkflowDeadlineMinutes: DefaultWorkflowDeadlineMinutes,
			DefaultStepTimeoutSeconds:      DefaultStepTimeoutSeconds,
			DefaultStepIdleYieldMillis:     DefaultStepIdleYieldMillis,
		},
		AgentManager: AgentManagerConfig{
			ConcurrencyCaps:    defaultConcurrencyCaps(),
			QualityGateProfile: DefaultQualityGateProfile,
		},
		Bus: BusConfig{
			QueueCapacity:    DefaultBusQueueCapacity,
			ProcessingRate:   DefaultBusProcessingRate,
			MaxDeliveryTries: DefaultBusMaxDeliveryTries,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled, Port: DefaultMetricsPort, Path: DefaultMetricsPath},
			Tracing: TracingConfig{Enabled: DefaultTracingEnabled, Endpoint: DefaultTracingEndpoint, SampleRate: DefaultSampleRate},
			Sentry:  SentryConfig{Enabled: DefaultSentryEnabled, Environment: DefaultSentryEnv, SampleRate: DefaultSentrySampleRate, Release: DefaultSentryRelease},
		},
	}
}

// loadFile reads a YAML or JSON config file, selecting the decoder by
// extension (.json vs everything else).
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnv applies explicit ORCHESTRATOR_* environment overrides on top of cfg.
func loadEnv(cfg *Config) *Config {
	if v := os.Getenv("ORCHESTRATOR_MAX_CONCURRENT_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.DefaultMaxConcurrentSteps = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_WORKFLOW_DEADLINE_MINUTES"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scheduling.DefaultWorkflowDeadlineMinutes = f
		}
	}
	if v := os.Getenv("ORCHESTRATOR_STEP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.DefaultStepTimeoutSeconds = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_QUALITY_GATE_PROFILE"); v != "" {
		cfg.AgentManager.QualityGateProfile = v
	}
	if v := os.Getenv("ORCHESTRATOR_BUS_REDIS_ADDR"); v != "" {
		cfg.Bus.RedisAddr = v
	}
	if v := os.Getenv("ORCHESTRATOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ORCHESTRATOR_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ORCHESTRATOR_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ORCHESTRATOR_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Observability.Metrics.Port = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ORCHESTRATOR_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		cfg.Observability.Sentry.Enabled = true
		cfg.Observability.Sentry.DSN = v
	}
	return cfg
}

// merge overlays override's non-zero scheduling, agent-manager, bus and
// logging fields onto base, field by field. The Observability section is
// replaced wholesale by override's.
func merge(base, override *Config) *Config {
	result := *base
	if override.Scheduling.DefaultMaxConcurrentSteps != 0 {
		result.Scheduling.DefaultMaxConcurrentSteps = override.Scheduling.DefaultMaxConcurrentSteps
	}
	if override.Scheduling.DefaultWorkflowDeadlineMinutes != 0 {
		result.Scheduling.DefaultWorkflowDeadlineMinutes = override.Scheduling.DefaultWorkflowDeadlineMinutes
	}
	if override.Scheduling.DefaultStepTimeoutSeconds != 0 {
		result.Scheduling.DefaultStepTimeoutSeconds = override.Scheduling.DefaultStepTimeoutSeconds
	}
	if override.Scheduling.DefaultStepIdleYieldMillis != 0 {
		result.Scheduling.DefaultStepIdleYieldMillis = override.Scheduling.DefaultStepIdleYieldMillis
	}
	if len(override.AgentManager.ConcurrencyCaps) > 0 {
		result.AgentManager.ConcurrencyCaps = override.AgentManager.ConcurrencyCaps
	}
	if override.AgentManager.QualityGateProfile != "" {
		result.AgentManager.QualityGateProfile = override.AgentManager.QualityGateProfile
	}
	if override.Bus.QueueCapacity != 0 {
		result.Bus.QueueCapacity = override.Bus.QueueCapacity
	}
	if override.Bus.ProcessingRate != 0 {
		result.Bus.ProcessingRate = override.Bus.ProcessingRate
	}
	if override.Bus.MaxDeliveryTries != 0 {
		result.Bus.MaxDeliveryTries = override.Bus.MaxDeliveryTries
	}
	if override.Bus.RedisAddr != "" {
		result.Bus.RedisAddr = override.Bus.RedisAddr
	}
	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}
	result.Observability = override.Observability
	return &result
}

// Validate rejects a Config whose values would put the engine in an
// inconsistent state.
func (c *Config) Validate() error {
	if c.Scheduling.DefaultMaxConcurrentSteps < 0 {
		return fmt.Errorf("scheduling.default_max_concurrent_steps must be >= 0")
	}
	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of %v, got %q", ValidLogLevels, c.Logging.Level)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of %v, got %q", ValidLogFormats, c.Logging.Format)
	}
	switch c.AgentManager.QualityGateProfile {
	case "default", "relaxed", "strict":
	default:
		return fmt.Errorf("agent_manager.quality_gate_profile must be one of [default relaxed strict], got %q", c.AgentManager.QualityGateProfile)
	}
	if c.Observability.Tracing.SampleRate < 0 || c.Observability.Tracing.SampleRate > 1 {
		return fmt.Errorf("observability.tracing.sample_rate must be in [0, 1]")
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Default returns the zero-config defaults, useful for tests.
func Default() *Config {
	return defaults()
}
