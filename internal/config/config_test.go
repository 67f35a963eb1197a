package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, DefaultMaxConcurrentSteps, cfg.Scheduling.DefaultMaxConcurrentSteps)
	assert.Equal(t, DefaultWorkflowDeadlineMinutes, cfg.Scheduling.DefaultWorkflowDeadlineMinutes)
	assert.Equal(t, DefaultStepTimeoutSeconds, cfg.Scheduling.DefaultStepTimeoutSeconds)
	assert.Equal(t, DefaultStepIdleYieldMillis, cfg.Scheduling.DefaultStepIdleYieldMillis)
	assert.Equal(t, defaultConcurrencyCaps(), cfg.AgentManager.ConcurrencyCaps)
	assert.Equal(t, DefaultQualityGateProfile, cfg.AgentManager.QualityGateProfile)
	assert.Equal(t, DefaultBusQueueCapacity, cfg.Bus.QueueCapacity)
	assert.Equal(t, DefaultBusProcessingRate, cfg.Bus.ProcessingRate)
	assert.Equal(t, DefaultBusMaxDeliveryTries, cfg.Bus.MaxDeliveryTries)
	assert.Empty(t, cfg.Bus.RedisAddr)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, DefaultMetricsEnabled, cfg.Observability.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsPort, cfg.Observability.Metrics.Port)
	assert.Equal(t, DefaultMetricsPath, cfg.Observability.Metrics.Path)
	assert.Equal(t, DefaultTracingEnabled, cfg.Observability.Tracing.Enabled)
	assert.Equal(t, DefaultTracingEndpoint, cfg.Observability.Tracing.Endpoint)
	assert.Equal(t, DefaultSampleRate, cfg.Observability.Tracing.SampleRate)
	assert.Equal(t, DefaultSentryEnabled, cfg.Observability.Sentry.Enabled)
	assert.Equal(t, DefaultSentryEnv, cfg.Observability.Sentry.Environment)
	assert.Equal(t, DefaultSentrySampleRate, cfg.Observability.Sentry.SampleRate)
	assert.Equal(t, DefaultSentryRelease, cfg.Observability.Sentry.Release)
}

func TestDefaultConcurrencyCaps(t *testing.T) {
	caps := defaultConcurrencyCaps()
	assert.Equal(t, 3, caps["analysis"])
	assert.Equal(t, 2, caps["content"])
	assert.Equal(t, 4, caps["recommendation"])
	assert.Equal(t, 5, caps["validation"])
	assert.Equal(t, 1, caps["coordination"])
	assert.Equal(t, 2, caps["specialist"])
}

func clearOrchestratorEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"ORCHESTRATOR_CONFIG_FILE",
		"ORCHESTRATOR_MAX_CONCURRENT_STEPS",
		"ORCHESTRATOR_WORKFLOW_DEADLINE_MINUTES",
		"ORCHESTRATOR_STEP_TIMEOUT_SECONDS",
		"ORCHESTRATOR_QUALITY_GATE_PROFILE",
		"ORCHESTRATOR_BUS_REDIS_ADDR",
		"ORCHESTRATOR_LOG_LEVEL",
		"ORCHESTRATOR_LOG_FORMAT",
		"ORCHESTRATOR_METRICS_ENABLED",
		"ORCHESTRATOR_METRICS_PORT",
		"ORCHESTRATOR_TRACING_ENABLED",
		"ORCHESTRATOR_TRACING_ENDPOINT",
		"SENTRY_DSN",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
	t.Cleanup(func() {
		for _, v := range vars {
			os.Unsetenv(v)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "all scheduling and bus vars",
			envVars: map[string]string{
				"ORCHESTRATOR_MAX_CONCURRENT_STEPS":      "8",
				"ORCHESTRATOR_WORKFLOW_DEADLINE_MINUTES":  "15.5",
				"ORCHESTRATOR_STEP_TIMEOUT_SECONDS":       "60",
				"ORCHESTRATOR_QUALITY_GATE_PROFILE":       "strict",
				"ORCHESTRATOR_BUS_REDIS_ADDR":             "localhost:6379",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8, cfg.Scheduling.DefaultMaxConcurrentSteps)
				assert.Equal(t, 15.5, cfg.Scheduling.DefaultWorkflowDeadlineMinutes)
				assert.Equal(t, 60, cfg.Scheduling.DefaultStepTimeoutSeconds)
				assert.Equal(t, "strict", cfg.AgentManager.QualityGateProfile)
				assert.Equal(t, "localhost:6379", cfg.Bus.RedisAddr)
			},
		},
		{
			name: "logging vars",
			envVars: map[string]string{
				"ORCHESTRATOR_LOG_LEVEL":  "debug",
				"ORCHESTRATOR_LOG_FORMAT": "text",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "text", cfg.Logging.Format)
			},
		},
		{
			name: "observability vars",
			envVars: map[string]string{
				"ORCHESTRATOR_METRICS_ENABLED":  "true",
				"ORCHESTRATOR_METRICS_PORT":     "9999",
				"ORCHESTRATOR_TRACING_ENABLED":  "1",
				"ORCHESTRATOR_TRACING_ENDPOINT": "http://collector:4318",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Observability.Metrics.Enabled)
				assert.Equal(t, 9999, cfg.Observability.Metrics.Port)
				assert.True(t, cfg.Observability.Tracing.Enabled)
				assert.Equal(t, "http://collector:4318", cfg.Observability.Tracing.Endpoint)
			},
		},
		{
			name: "sentry dsn enables sentry",
			envVars: map[string]string{
				"SENTRY_DSN": "https://examplePublicKey@o0.ingest.sentry.io/0",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Observability.Sentry.Enabled)
				assert.Equal(t, "https://examplePublicKey@o0.ingest.sentry.io/0", cfg.Observability.Sentry.DSN)
			},
		},
		{
			name:    "no env vars leaves defaults untouched",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultMaxConcurrentSteps, cfg.Scheduling.DefaultMaxConcurrentSteps)
				assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
				assert.False(t, cfg.Observability.Sentry.Enabled)
			},
		},
		{
			name: "invalid numeric values are ignored",
			envVars: map[string]string{
				"ORCHESTRATOR_MAX_CONCURRENT_STEPS": "not-a-number",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultMaxConcurrentSteps, cfg.Scheduling.DefaultMaxConcurrentSteps)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearOrchestratorEnv(t)
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := loadEnv(defaults())
			tt.check(t, cfg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Run("yaml file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `
scheduling:
  default_max_concurrent_steps: 12
  default_workflow_deadline_minutes: 20
bus:
  queue_capacity: 500
logging:
  level: warn
  format: text
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := loadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 12, cfg.Scheduling.DefaultMaxConcurrentSteps)
		assert.Equal(t, 20.0, cfg.Scheduling.DefaultWorkflowDeadlineMinutes)
		assert.Equal(t, 500, cfg.Bus.QueueCapacity)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "text", cfg.Logging.Format)
	})

	t.Run("json file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.json")
		content := `{
			"scheduling": {"default_max_concurrent_steps": 4},
			"logging": {"level": "error", "format": "json"}
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := loadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Scheduling.DefaultMaxConcurrentSteps)
		assert.Equal(t, "error", cfg.Logging.Level)
	})

	t.Run("extension is case-insensitive", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.JSON")
		require.NoError(t, os.WriteFile(path, []byte(`{"logging": {"level": "debug"}}`), 0o644))

		cfg, err := loadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := loadFile("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := defaults()

	t.Run("override applies non-zero fields", func(t *testing.T) {
		override := &Config{
			Scheduling: SchedulingConfig{DefaultMaxConcurrentSteps: 20},
			Bus:        BusConfig{QueueCapacity: 2000},
			Logging:    LoggingConfig{Level: "debug"},
		}

		merged := merge(base, override)
		assert.Equal(t, 20, merged.Scheduling.DefaultMaxConcurrentSteps)
		assert.Equal(t, base.Scheduling.DefaultStepTimeoutSeconds, merged.Scheduling.DefaultStepTimeoutSeconds)
		assert.Equal(t, 2000, merged.Bus.QueueCapacity)
		assert.Equal(t, "debug", merged.Logging.Level)
	})

	t.Run("zero-value override fields fall back to base", func(t *testing.T) {
		override := &Config{}
		merged := merge(base, override)
		assert.Equal(t, base.Scheduling, merged.Scheduling)
		assert.Equal(t, base.Bus, merged.Bus)
		assert.Equal(t, base.Logging, merged.Logging)
	})

	t.Run("concurrency caps override wholesale", func(t *testing.T) {
		override := &Config{AgentManager: AgentManagerConfig{ConcurrencyCaps: map[string]int{"analysis": 99}}}
		merged := merge(base, override)
		assert.Equal(t, map[string]int{"analysis": 99}, merged.AgentManager.ConcurrencyCaps)
	})

	t.Run("observability section replaces wholesale", func(t *testing.T) {
		override := &Config{Observability: ObservabilityConfig{Metrics: MetricsConfig{Enabled: true, Port: 1234}}}
		merged := merge(base, override)
		assert.True(t, merged.Observability.Metrics.Enabled)
		assert.Equal(t, 1234, merged.Observability.Metrics.Port)
		assert.Equal(t, "", merged.Observability.Tracing.Endpoint)
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid defaults pass", func(t *testing.T) {
		assert.NoError(t, defaults().Validate())
	})

	t.Run("negative max concurrent steps rejected", func(t *testing.T) {
		cfg := defaults()
		cfg.Scheduling.DefaultMaxConcurrentSteps = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid log level rejected", func(t *testing.T) {
		cfg := defaults()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid log format rejected", func(t *testing.T) {
		cfg := defaults()
		cfg.Logging.Format = "xml"
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid quality gate profile rejected", func(t *testing.T) {
		cfg := defaults()
		cfg.AgentManager.QualityGateProfile = "nonsense"
		assert.Error(t, cfg.Validate())
	})

	t.Run("sample rate out of range rejected", func(t *testing.T) {
		cfg := defaults()
		cfg.Observability.Tracing.SampleRate = 1.5
		assert.Error(t, cfg.Validate())

		cfg.Observability.Tracing.SampleRate = -0.1
		assert.Error(t, cfg.Validate())
	})

	t.Run("sample rate boundaries accepted", func(t *testing.T) {
		cfg := defaults()
		cfg.Observability.Tracing.SampleRate = 0
		assert.NoError(t, cfg.Validate())
		cfg.Observability.Tracing.SampleRate = 1
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		clearOrchestratorEnv(t)
		cfg, err := Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxConcurrentSteps, cfg.Scheduling.DefaultMaxConcurrentSteps)
	})

	t.Run("env overrides file overrides defaults", func(t *testing.T) {
		clearOrchestratorEnv(t)
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
scheduling:
  default_max_concurrent_steps: 7
logging:
  level: warn
  format: text
`), 0o644))

		os.Setenv("ORCHESTRATOR_CONFIG_FILE", path)
		os.Setenv("ORCHESTRATOR_LOG_LEVEL", "error")

		cfg, err := Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Scheduling.DefaultMaxConcurrentSteps)
		assert.Equal(t, "error", cfg.Logging.Level)
		assert.Equal(t, "text", cfg.Logging.Format)
	})

	t.Run("missing config file surfaces an error", func(t *testing.T) {
		clearOrchestratorEnv(t)
		os.Setenv("ORCHESTRATOR_CONFIG_FILE", "/nonexistent/config.yaml")
		_, err := Load(context.Background())
		assert.Error(t, err)
	})

	t.Run("invalid resulting config surfaces an error", func(t *testing.T) {
		clearOrchestratorEnv(t)
		os.Setenv("ORCHESTRATOR_LOG_LEVEL", "not-a-level")
		_, err := Load(context.Background())
		assert.Error(t, err)
	})
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "a"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
	assert.False(t, contains(nil, "a"))
}

func TestDefault(t *testing.T) {
	assert.Equal(t, defaults(), Default())
}
