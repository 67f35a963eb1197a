package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// TraceIDKey is the context key for trace IDs.
	TraceIDKey ContextKey = "trace_id"
	// ExecutionIDKey is the context key for workflow execution IDs.
	ExecutionIDKey ContextKey = "execution_id"
	// WorkflowIDKey is the context key for workflow definition IDs.
	WorkflowIDKey ContextKey = "workflow_id"
	// StepIDKey is the context key for the step currently executing.
	StepIDKey ContextKey = "step_id"
	// AgentIDKey is the context key for the agent handling a step.
	AgentIDKey ContextKey = "agent_id"
	// TenantIDKey is the context key for the owning tenant.
	TenantIDKey ContextKey = "tenant_id"
	// UserIDKey is the context key for user IDs.
	UserIDKey ContextKey = "user_id"
)

// Logger wraps slog.Logger with additional context-aware methods.
type Logger struct {
	logger *slog.Logger
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// Format is the log format (json, text)
	Format string
	// Output is the output destination (defaults to os.Stdout)
	Output io.Writer
	// AddSource adds source file/line to log entries
	AddSource bool
	// SentryEnabled enables Sentry integration for logs
	SentryEnabled bool
}

// DefaultLoggerConfig returns a default logger configuration.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:         "info",
		Format:        "json",
		Output:        os.Stdout,
		AddSource:     true,
		SentryEnabled: false,
	}
}

// sentryHandler is a slog.Handler that sends logs to Sentry.
type sentryHandler struct {
	next slog.Handler
}

func (h *sentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	// Send to Sentry for error and warn levels
	if r.Level >= slog.LevelWarn {
		var attrs []slog.Attr
		r.Attrs(func(attr slog.Attr) bool {
			attrs = append(attrs, attr)
			return true
		})

		// Convert slog attributes to Sentry context
		sentryCtx := make(map[string]interface{})
		for _, attr := range attrs {
			sentryCtx[attr.Key] = attr.Value.Any()
		}

		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetContext("log", sentryCtx)
			scope.SetTag("logger", "slog")
			scope.SetTag("level", r.Level.String())

			// Capture as message with context for error and warn logs
			sentry.CaptureMessage(r.Message)
		})
	}

	return h.next.Handle(ctx, r)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{next: h.next.WithAttrs(attrs)}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{next: h.next.WithGroup(name)}
}

// NewLogger creates a new structured logger.
func NewLogger(cfg LoggerConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, handlerOpts)
	}

	// Wrap with Sentry handler if enabled
	if cfg.SentryEnabled {
		handler = &sentryHandler{next: handler}
	}

	return &Logger{
		logger: slog.New(handler),
	}
}

// WithContext extracts context values and adds them to the logger.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger

	// Add trace ID if present
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		logger = logger.With("trace_id", traceID)
	}

	// Add execution ID if present
	if executionID, ok := ctx.Value(ExecutionIDKey).(string); ok && executionID != "" {
		logger = logger.With("execution_id", executionID)
	}

	// Add workflow ID if present
	if workflowID, ok := ctx.Value(WorkflowIDKey).(string); ok && workflowID != "" {
		logger = logger.With("workflow_id", workflowID)
	}

	// Add step ID if present
	if stepID, ok := ctx.Value(StepIDKey).(string); ok && stepID != "" {
		logger = logger.With("step_id", stepID)
	}

	// Add agent ID if present
	if agentID, ok := ctx.Value(AgentIDKey).(string); ok && agentID != "" {
		logger = logger.With("agent_id", agentID)
	}

	// Add tenant ID if present
	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok && tenantID != "" {
		logger = logger.With("tenant_id", tenantID)
	}

	// Add user ID if present
	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		logger = logger.With("user_id", userID)
	}

	return logger
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// DebugContext logs a debug message with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}

// InfoContext logs an info message with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Error(msg, args...)
}

// With returns a logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		logger: l.logger.With(args...),
	}
}

// WithGroup returns a logger with a named group.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		logger: l.logger.WithGroup(name),
	}
}

// LogStepTransition logs a step's terminal status with standard fields.
func (l *Logger) LogStepTransition(ctx context.Context, stepID, agentID, status string, attempts int, duration time.Duration) {
	l.WithContext(ctx).Info("step_transition",
		"step_id", stepID,
		"agent_id", agentID,
		"status", status,
		"attempts", attempts,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogDecisionTraversal logs a decision-tree traversal's outcome.
func (l *Logger) LogDecisionTraversal(ctx context.Context, treeID, outcomeID string, confidence float64, duration time.Duration) {
	l.WithContext(ctx).Info("decision_traversal",
		"tree_id", treeID,
		"outcome_id", outcomeID,
		"confidence", confidence,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogHandoff logs an audit HandoffTicket.
func (l *Logger) LogHandoff(ctx context.Context, fromAgent, toAgent, stepID, status string) {
	l.WithContext(ctx).Info("handoff",
		"from_agent", fromAgent,
		"to_agent", toAgent,
		"step_id", stepID,
		"status", status,
	)
}

// LogWorkflowCompletion logs a workflow execution's terminal status.
func (l *Logger) LogWorkflowCompletion(ctx context.Context, executionID, status string, qualityScore float64, duration time.Duration) {
	l.WithContext(ctx).Info("workflow_completion",
		"execution_id", executionID,
		"status", status,
		"quality_score", qualityScore,
		"duration_ms", duration.Milliseconds(),
	)
}

// Underlying returns the underlying slog.Logger.
func (l *Logger) Underlying() *slog.Logger {
	return l.logger
}
