// Package observability provides enhanced error handling and context propagation for the orchestration engine.
package observability

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorContext represents the context for error handling and reporting.
type ErrorContext struct {
	// Execution context
	ExecutionID string `json:"execution_id,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
	SpanID      string `json:"span_id,omitempty"`
	WorkflowID  string `json:"workflow_id,omitempty"`
	TenantID    string `json:"tenant_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`

	// Step context
	StepID  string `json:"step_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`

	// Request context
	Inputs    json.RawMessage `json:"inputs,omitempty"`
	Duration  time.Duration   `json:"duration_ms,omitempty"`
	ErrorType string          `json:"error_type,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`

	// Additional metadata
	Tags  map[string]string      `json:"tags,omitempty"`
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// ErrorHandler provides enhanced error handling with Sentry integration and context propagation.
type ErrorHandler struct {
	logger        *Logger
	metrics       *MetricsCollector
	sentryEnabled bool
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *Logger, metrics *MetricsCollector, sentryEnabled bool) *ErrorHandler {
	return &ErrorHandler{
		logger:        logger,
		metrics:       metrics,
		sentryEnabled: sentryEnabled,
	}
}

// HandleError processes an error with full context and reporting.
func (eh *ErrorHandler) HandleError(ctx context.Context, err error, errorCtx ErrorContext) {
	// Handle success case (nil error)
	if err == nil {
		eh.logger.InfoContext(ctx, "Operation completed successfully",
			"error_type", errorCtx.ErrorType,
			"step_id", errorCtx.StepID,
			"agent_id", errorCtx.AgentID,
			"duration_ms", errorCtx.Duration.Milliseconds(),
		)
		return
	}

	// Log the error with full context
	eh.logger.ErrorContext(ctx, "Error occurred",
		"error", err.Error(),
		"error_type", errorCtx.ErrorType,
		"error_code", errorCtx.ErrorCode,
		"step_id", errorCtx.StepID,
		"agent_id", errorCtx.AgentID,
		"duration_ms", errorCtx.Duration.Milliseconds(),
	)

	// Report to Sentry if enabled
	if eh.sentryEnabled {
		eh.reportToSentry(ctx, err, errorCtx)
	}

	// Set span error if tracing is active
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String("error.type", errorCtx.ErrorType),
			attribute.String("error.code", errorCtx.ErrorCode),
		)
	}
}

// reportToSentry reports the error to Sentry with full context.
func (eh *ErrorHandler) reportToSentry(ctx context.Context, err error, errorCtx ErrorContext) {
	sentry.WithScope(func(scope *sentry.Scope) {
		// Set basic error information
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("error_type", errorCtx.ErrorType)
		scope.SetTag("service", "orchestrator")

		// Set execution context
		if errorCtx.WorkflowID != "" {
			scope.SetTag("workflow.id", errorCtx.WorkflowID)
		}
		if errorCtx.ExecutionID != "" {
			scope.SetTag("execution_id", errorCtx.ExecutionID)
		}
		if errorCtx.TraceID != "" {
			scope.SetTag("trace_id", errorCtx.TraceID)
		}
		if errorCtx.SpanID != "" {
			scope.SetTag("span_id", errorCtx.SpanID)
		}

		// Set user context
		if errorCtx.UserID != "" {
			scope.SetUser(sentry.User{
				ID:       errorCtx.UserID,
				Username: errorCtx.UserID,
			})
		}
		if errorCtx.TenantID != "" {
			scope.SetTag("tenant_id", errorCtx.TenantID)
		}

		// Set step context
		if errorCtx.StepID != "" {
			scope.SetTag("step.id", errorCtx.StepID)
		}
		if errorCtx.AgentID != "" {
			scope.SetTag("step.agent_id", errorCtx.AgentID)
		}

		// Set error context
		if errorCtx.ErrorCode != "" {
			scope.SetTag("error_code", errorCtx.ErrorCode)
		}

		// Add custom tags
		for key, value := range errorCtx.Tags {
			scope.SetTag(key, value)
		}

		// Add extra context
		if errorCtx.Inputs != nil && len(errorCtx.Inputs) < 10000 { // Limit size
			scope.SetContext("step_inputs", map[string]interface{}{
				"raw": string(errorCtx.Inputs),
			})
		}

		if errorCtx.Duration > 0 {
			scope.SetContext("performance", map[string]interface{}{
				"duration_ms": errorCtx.Duration.Milliseconds(),
			})
		}

		// Add stack trace context
		pc := make([]uintptr, 10)
		n := runtime.Callers(2, pc)
		if n > 0 {
			frames := runtime.CallersFrames(pc[:n])
			stackTrace := make([]map[string]interface{}, 0, n)
			for {
				frame, more := frames.Next()
				stackTrace = append(stackTrace, map[string]interface{}{
					"function": frame.Function,
					"file":     frame.File,
					"line":     frame.Line,
				})
				if !more {
					break
				}
			}
			scope.SetContext("stack_trace", map[string]interface{}{
				"frames": stackTrace,
			})
		}

		// Add extra metadata
		if len(errorCtx.Extra) > 0 {
			scope.SetContext("extra", errorCtx.Extra)
		}

		// Capture the exception
		sentry.CaptureException(err)
	})
}

// CreateErrorResponse creates a user-friendly error response describing a failed step or workflow.
func (eh *ErrorHandler) CreateErrorResponse(err error, errorCtx ErrorContext) map[string]interface{} {
	response := map[string]interface{}{
		"error": map[string]interface{}{
			"type":      errorCtx.ErrorType,
			"message":   eh.sanitizeErrorMessage(err.Error()),
			"code":      errorCtx.ErrorCode,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"context": map[string]interface{}{
			"execution_id": errorCtx.ExecutionID,
			"workflow_id":  errorCtx.WorkflowID,
			"step_id":      errorCtx.StepID,
		},
	}

	response["debug"] = map[string]interface{}{
		"trace_id":    errorCtx.TraceID,
		"span_id":     errorCtx.SpanID,
		"duration_ms": errorCtx.Duration.Milliseconds(),
	}
	response["suggestions"] = eh.getErrorSuggestions(errorCtx.ErrorType)

	if errorCtx.AgentID != "" {
		response["context"].(map[string]interface{})["agent_id"] = errorCtx.AgentID
	}

	return response
}

// sanitizeErrorMessage truncates messages longer than 500 bytes, appending
// "...". It does not redact any content.
func (eh *ErrorHandler) sanitizeErrorMessage(message string) string {
	if len(message) > 500 {
		return message[:500] + "..."
	}
	return message
}

// getErrorSuggestions provides helpful suggestions for common error types.
func (eh *ErrorHandler) getErrorSuggestions(errorType string) []string {
	suggestions := map[string][]string{
		"VALIDATION_ERROR": {
			"Check that all required step inputs resolve",
			"Verify workflow agent ids reference declared agents",
		},
		"AGENT_NOT_AVAILABLE": {
			"Check the agent's concurrency cap and current load",
			"Configure a fallback agent for this step type",
		},
		"EXECUTION_TIMEOUT": {
			"Increase the step or workflow deadline",
			"Check whether the assigned agent is overloaded",
		},
		"CAPABILITY_MISMATCH": {
			"Verify the step type is in the agent's capability table",
			"Register an agent that declares this capability",
		},
	}

	if suggestions, exists := suggestions[errorType]; exists {
		return suggestions
	}

	return []string{
		"Please retry the workflow execution",
		"If the problem persists, inspect the execution's audit trail",
	}
}

// ExtractErrorContext extracts error context from the current context and span.
func ExtractErrorContext(ctx context.Context, stepID string) ErrorContext {
	errorCtx := ErrorContext{
		StepID: stepID,
		Tags:   make(map[string]string),
		Extra:  make(map[string]interface{}),
	}

	// Extract trace information
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		spanCtx := span.SpanContext()
		if spanCtx.HasTraceID() {
			errorCtx.TraceID = spanCtx.TraceID().String()
		}
		if spanCtx.HasSpanID() {
			errorCtx.SpanID = spanCtx.SpanID().String()
		}
	}

	// Extract context values
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		errorCtx.TraceID = traceID
	}
	if executionID, ok := ctx.Value(ExecutionIDKey).(string); ok {
		errorCtx.ExecutionID = executionID
	}
	if workflowID, ok := ctx.Value(WorkflowIDKey).(string); ok {
		errorCtx.WorkflowID = workflowID
	}
	if agentID, ok := ctx.Value(AgentIDKey).(string); ok {
		errorCtx.AgentID = agentID
	}
	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok {
		errorCtx.TenantID = tenantID
	}
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		errorCtx.UserID = userID
	}

	return errorCtx
}

// WithExecutionContext adds workflow execution context to the provided context.
func WithExecutionContext(ctx context.Context, workflowID, executionID, tenantID string) context.Context {
	ctx = context.WithValue(ctx, WorkflowIDKey, workflowID)
	ctx = context.WithValue(ctx, ExecutionIDKey, executionID)
	if tenantID != "" {
		ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("workflow.id", workflowID)
		scope.SetTag("execution_id", executionID)
		if tenantID != "" {
			scope.SetTag("tenant_id", tenantID)
		}
	})

	return ctx
}

// WithStepContext adds step context to the provided context.
func WithStepContext(ctx context.Context, stepID, agentID string) context.Context {
	ctx = context.WithValue(ctx, StepIDKey, stepID)
	ctx = context.WithValue(ctx, AgentIDKey, agentID)

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("step.id", stepID)
		scope.SetTag("step.agent_id", agentID)
	})

	return ctx
}

// WithTraceContext adds trace context to the provided context.
func WithTraceContext(ctx context.Context, traceID string) context.Context {
	ctx = context.WithValue(ctx, TraceIDKey, traceID)

	// Set Sentry trace tag
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("trace_id", traceID)
	})

	return ctx
}

// GracefulDegradation handles monitoring failures gracefully.
func (eh *ErrorHandler) GracefulDegradation(ctx context.Context, operation string, err error) {
	eh.logger.WarnContext(ctx, "Monitoring operation failed, continuing without monitoring",
		"operation", operation,
		"error", err.Error(),
	)

	// Log the degradation but don't fail the main operation
	// The calling code should continue normally
}

// HealthCheck represents the health status of various components.
type HealthCheck struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version"`
	Components map[string]interface{} `json:"components"`
}

// CreateHealthCheck creates a comprehensive health check response.
func (eh *ErrorHandler) CreateHealthCheck(ctx context.Context, version string) HealthCheck {
	health := HealthCheck{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Version:    version,
		Components: make(map[string]interface{}),
	}

	// Check Sentry status
	if eh.sentryEnabled {
		health.Components["sentry"] = map[string]interface{}{
			"status":     "enabled",
			"configured": true,
		}
	} else {
		health.Components["sentry"] = map[string]interface{}{
			"status":     "disabled",
			"configured": false,
		}
	}

	// Check metrics status
	if eh.metrics != nil {
		health.Components["metrics"] = map[string]interface{}{
			"status":     "enabled",
			"configured": true,
		}
	} else {
		health.Components["metrics"] = map[string]interface{}{
			"status":     "disabled",
			"configured": false,
		}
	}

	// Check tracing status
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		health.Components["tracing"] = map[string]interface{}{
			"status":     "enabled",
			"configured": true,
		}
	} else {
		health.Components["tracing"] = map[string]interface{}{
			"status":     "disabled",
			"configured": false,
		}
	}

	// Determine overall health
	allHealthy := true
	for _, component := range health.Components {
		if comp, ok := component.(map[string]interface{}); ok {
			if status, ok := comp["status"].(string); ok && status != "enabled" {
				allHealthy = false
				break
			}
		}
	}

	if !allHealthy {
		health.Status = "degraded"
	}

	return health
}
