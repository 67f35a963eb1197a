// Command orchestrator runs a self-contained demonstration of the
// workflow orchestration engine: it wires up the Agent Manager,
// Decision Engine, Communication Bus, and HandoffTicket audit logger,
// registers a handful of demo agents, builds a small multi-step
// workflow, executes it, and prints the resulting execution record.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcflow/orchestrator/internal/clock"
	"github.com/arcflow/orchestrator/internal/config"
	"github.com/arcflow/orchestrator/internal/observability"
	"github.com/arcflow/orchestrator/internal/orchestrator/agentmgr"
	"github.com/arcflow/orchestrator/internal/orchestrator/audit"
	"github.com/arcflow/orchestrator/internal/orchestrator/bus"
	"github.com/arcflow/orchestrator/internal/orchestrator/decision"
	"github.com/arcflow/orchestrator/internal/orchestrator/workflow"
	"github.com/arcflow/orchestrator/pkg/schema"
)

const Version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        os.Stdout,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})

	logger.Info("orchestrator starting",
		"version", Version,
		"max_concurrent_steps", cfg.Scheduling.DefaultMaxConcurrentSteps,
		"quality_gate_profile", cfg.AgentManager.QualityGateProfile,
		"metrics_enabled", cfg.Observability.Metrics.Enabled,
		"tracing_enabled", cfg.Observability.Tracing.Enabled,
	)

	var metrics *observability.MetricsCollector
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("orchestrator")
		metrics.SetSystemStartTime(time.Now())
		logger.Info("metrics collection enabled", "port", cfg.Observability.Metrics.Port, "path", cfg.Observability.Metrics.Path)
		go startMetricsServer(ctx, cfg.Observability.Metrics, logger)
	} else {
		logger.Info("metrics collection disabled")
	}

	var tracerProvider *observability.TracerProvider
	if cfg.Observability.Tracing.Enabled {
		tracerProvider, err = observability.NewTracerProvider(observability.TracerConfig{
			ServiceName:    "orchestrator",
			ServiceVersion: Version,
			Environment:    "development",
			OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
			SamplingRate:   cfg.Observability.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			logger.Error("failed to initialize tracing provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown tracer provider", "error", err)
			}
		}()
		logger.Info("tracing enabled", "endpoint", cfg.Observability.Tracing.Endpoint, "sample_rate", cfg.Observability.Tracing.SampleRate)
	} else {
		logger.Info("tracing disabled")
	}

	if cfg.Observability.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			Release:          cfg.Observability.Sentry.Release,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
			EnableTracing:    true,
		}); err != nil {
			logger.Error("failed to initialize sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
		logger.Info("sentry enabled", "environment", cfg.Observability.Sentry.Environment)
	} else {
		logger.Info("sentry disabled")
	}

	c := clock.New()

	agents := agentmgr.New(demoExecutor{logger: logger}, c).
		WithResultCache(agentmgr.NewStepResultCache(256, 30*time.Second, c))
	for _, def := range demoAgents() {
		agents.Register(def)
	}

	escalation := decision.NewEscalationPolicy()
	escalation.AddPath("content-writer", []string{"senior-reviewer"})
	escalation.AddFallback("content-writer", []string{"coordinator"})

	actions := decision.NewActionRegistry()
	decision.RegisterEscalateAction(actions, escalation)
	decisions := decision.NewEngine(actions)

	messageBus := bus.New(bus.Config{
		QueueCapacity:    cfg.Bus.QueueCapacity,
		ProcessingRate:   cfg.Bus.ProcessingRate,
		MaxDeliveryTries: cfg.Bus.MaxDeliveryTries,
	}, c)
	messageBus.Start(ctx)
	defer messageBus.Stop()

	sinks := []audit.Sink{audit.NewLoggerSink(logger.Underlying())}
	auditLogger := audit.NewLogger(audit.DefaultConfig(), sinks...)
	defer auditLogger.Close()

	engine := workflow.New(agents, decisions, messageBus, auditLogger, c)

	def := demoWorkflow()
	logger.Info("executing demo workflow", "workflow_id", def.ID, "steps", len(def.Steps))

	exec, execErr := engine.Execute(ctx, def, map[string]interface{}{
		"topic": "distributed systems observability",
	}, "demo-tenant", "demo-user", 5)
	if execErr != nil {
		logger.Error("workflow execution failed to start", "error", execErr.Message)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(exec, "", "  ")
	if err != nil {
		logger.Error("failed to marshal execution result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	logger.LogWorkflowCompletion(ctx, exec.ID, string(exec.Status), qualityOrZero(exec.QualityScore), exec.EndTime.Sub(exec.StartTime))

	cacheStats := agents.CacheStats()
	logger.Info("step result cache stats", "hits", cacheStats.HitCount, "misses", cacheStats.MissCount, "hit_rate", cacheStats.HitRate(), "size", cacheStats.Size)
}

func qualityOrZero(score *float64) float64 {
	if score == nil {
		return 0
	}
	return *score
}

// startMetricsServer serves the Prometheus scrape endpoint on its own port.
func startMetricsServer(ctx context.Context, cfg config.MetricsConfig, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","component":"metrics"}`)
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}

// demoExecutor is a minimal StepExecutor that fabricates outputs instead
// of calling out to real agent backends.
type demoExecutor struct {
	logger *observability.Logger
}

func (d demoExecutor) Execute(ctx context.Context, agent schema.AgentDefinition, step schema.WorkflowStep, inputs map[string]interface{}) (map[string]interface{}, float64, float64, error) {
	d.logger.Debug("executing step", "step_id", step.ID, "agent_id", agent.ID, "inputs", inputs)
	outputs := map[string]interface{}{
		"summary": fmt.Sprintf("%s processed by %s", step.ID, agent.ID),
	}
	return outputs, 0.01, 0.9, nil
}

func demoAgents() []schema.AgentDefinition {
	return []schema.AgentDefinition{
		{
			ID:   "research-analyst",
			Type: schema.AgentAnalysis,
			Specialization: schema.AgentSpecialization{
				Domain:           "research",
				Expertise:        []string{"distributed-systems", "observability"},
				QualityThreshold: 0.7,
			},
			Capabilities: []schema.AgentCapabilityDecl{
				{InputTypes: []string{"text"}, OutputTypes: []string{"analysis"}, ProcessingTime: 2.0, Accuracy: 0.9, CostPerOp: 0.01, CapabilityClass: "analysis"},
			},
			MemoryConfig: schema.MemoryConfig{RetentionPeriod: time.Hour, SharingPolicy: "execution"},
		},
		{
			ID:   "content-writer",
			Type: schema.AgentContent,
			Specialization: schema.AgentSpecialization{
				Domain:           "writing",
				Expertise:        []string{"technical-writing"},
				QualityThreshold: 0.75,
			},
			Capabilities: []schema.AgentCapabilityDecl{
				{InputTypes: []string{"analysis"}, OutputTypes: []string{"draft"}, ProcessingTime: 3.0, Accuracy: 0.85, CostPerOp: 0.02, CapabilityClass: "content"},
			},
			MemoryConfig: schema.MemoryConfig{RetentionPeriod: time.Hour, SharingPolicy: "execution"},
		},
		{
			ID:   "senior-reviewer",
			Type: schema.AgentValidation,
			Specialization: schema.AgentSpecialization{
				Domain:           "review",
				Expertise:        []string{"quality-assurance"},
				QualityThreshold: 0.8,
			},
			Capabilities: []schema.AgentCapabilityDecl{
				{InputTypes: []string{"draft"}, OutputTypes: []string{"validation"}, ProcessingTime: 1.5, Accuracy: 0.95, CostPerOp: 0.015, CapabilityClass: "validation"},
			},
			MemoryConfig: schema.MemoryConfig{RetentionPeriod: time.Hour, SharingPolicy: "execution"},
		},
	}
}

func demoWorkflow() schema.WorkflowDefinition {
	b := workflow.NewBuilder("research-and-publish").
		WithVersion("1").
		WithMaxConcurrentSteps(2).
		WithEstimatedDuration(5)

	for _, a := range demoAgents() {
		b.AddAgent(a)
	}

	b.AddStep(schema.WorkflowStep{
		ID:      "analyze",
		Type:    schema.StepAnalysis,
		AgentID: "research-analyst",
		Inputs:  ioBinding("topic", schema.SourceWorkflowInput, "topic", true),
		Outputs: []schema.IOBinding{{Name: "analysis", SourceType: schema.SourceStepOutput}},
		RetryPolicy: schema.RetryPolicy{MaxAttempts: 2, BackoffStrategy: schema.BackoffFixed, BaseDelayMs: 500},
		TimeoutSeconds: 30,
	})

	b.AddStep(schema.WorkflowStep{
		ID:           "draft",
		Type:         schema.StepGeneration,
		AgentID:      "content-writer",
		Dependencies: []string{"analyze"},
		Inputs:       ioBindingPath("analysis", "analyze", "summary", true),
		Outputs:      []schema.IOBinding{{Name: "draft", SourceType: schema.SourceStepOutput}},
		RetryPolicy:  schema.RetryPolicy{MaxAttempts: 2, BackoffStrategy: schema.BackoffLinear, BaseDelayMs: 500},
		TimeoutSeconds: 30,
	})

	b.AddStep(schema.WorkflowStep{
		ID:           "review",
		Type:         schema.StepValidation,
		AgentID:      "senior-reviewer",
		Dependencies: []string{"draft"},
		Inputs:       ioBindingPath("draft", "draft", "summary", true),
		Outputs:      []schema.IOBinding{{Name: "validation", SourceType: schema.SourceStepOutput}},
		RetryPolicy:  schema.RetryPolicy{MaxAttempts: 1, BackoffStrategy: schema.BackoffFixed, BaseDelayMs: 500},
		TimeoutSeconds: 30,
	})

	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

func ioBinding(name string, sourceType schema.InputSourceType, reference string, required bool) []schema.IOBinding {
	return []schema.IOBinding{{Name: name, SourceType: sourceType, Reference: reference, Required: required}}
}

// ioBindingPath builds a step_output binding that reads stepID's outputs
// at the given dot path, rather than by matching the input's own name.
func ioBindingPath(name, stepID, path string, required bool) []schema.IOBinding {
	return []schema.IOBinding{{Name: name, SourceType: schema.SourceStepOutput, Reference: stepID, Path: path, Required: required}}
}
