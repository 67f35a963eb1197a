package schema

// ErrorKind is the stable identifier carried in error envelopes, matching
// the error taxonomy: validation, resource, transient, timeout, safety,
// and internal errors.
type ErrorKind string

const (
	ErrMissingFields        ErrorKind = "MISSING_FIELDS"
	ErrWorkflowNotFound     ErrorKind = "WORKFLOW_NOT_FOUND"
	ErrValidation           ErrorKind = "VALIDATION_ERROR"
	ErrAgentNotAvailable    ErrorKind = "AGENT_NOT_AVAILABLE"
	ErrExecutionTimeout     ErrorKind = "EXECUTION_TIMEOUT"
	ErrExecutionNotFound    ErrorKind = "EXECUTION_NOT_FOUND"
	ErrInvalidStatus        ErrorKind = "INVALID_STATUS"
	ErrCapabilityMismatch   ErrorKind = "CAPABILITY_MISMATCH"
	ErrInvalidDecisionTree  ErrorKind = "INVALID_DECISION_TREE"
	ErrInvalidMessage       ErrorKind = "INVALID_MESSAGE"
	ErrQueueNotFound        ErrorKind = "QUEUE_NOT_FOUND"
	ErrTransient            ErrorKind = "TRANSIENT_ERROR"
	ErrInternal             ErrorKind = "INTERNAL_ERROR"
)

// EngineError is the stable error envelope attached to StepExecutions and
// WorkflowExecutions. Recoverable drives retry eligibility (§7).
type EngineError struct {
	Code        ErrorKind              `json:"code"`
	Message     string                 `json:"message"`
	Recoverable bool                   `json:"recoverable"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Code) + ": " + e.Message
}

// NewEngineError builds a non-recoverable error of the given kind.
func NewEngineError(code ErrorKind, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewRecoverableError builds a retry-eligible error of the given kind.
func NewRecoverableError(code ErrorKind, message string) *EngineError {
	return &EngineError{Code: code, Message: message, Recoverable: true}
}
