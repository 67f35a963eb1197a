// Package schema defines the shared data model exchanged between the
// orchestrator, the agent manager, and the decision engine: workflow
// definitions, executions, and the records they produce.
package schema

import "time"

// StepType enumerates the kinds of work a WorkflowStep can perform.
type StepType string

const (
	StepAnalysis       StepType = "analysis"
	StepGeneration     StepType = "generation"
	StepValidation     StepType = "validation"
	StepTransformation StepType = "transformation"
	StepDecision       StepType = "decision"
	StepAggregation    StepType = "aggregation"
	StepNotification   StepType = "notification"
	StepHumanReview    StepType = "human_review"
)

// AgentType enumerates the declared role of an agent.
type AgentType string

const (
	AgentAnalysis       AgentType = "analysis"
	AgentContent        AgentType = "content"
	AgentRecommendation AgentType = "recommendation"
	AgentValidation     AgentType = "validation"
	AgentCoordination   AgentType = "coordination"
	AgentSpecialist     AgentType = "specialist"
)

// BackoffStrategy selects the retry-delay formula.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// ExecutionStatus is the lifecycle state of a WorkflowExecution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	ExecutionTimeout   ExecutionStatus = "timeout"
	ExecutionPaused    ExecutionStatus = "paused"
)

// StepStatus is the lifecycle state of a single StepExecution attempt.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepTimeout   StepStatus = "timeout"
	StepSkipped   StepStatus = "skipped"
)

// InputSourceType names where a step input value is resolved from.
type InputSourceType string

const (
	SourceWorkflowInput InputSourceType = "workflow_input"
	SourceStepOutput    InputSourceType = "step_output"
	SourceAgentMemory   InputSourceType = "agent_memory"
	SourceConstant      InputSourceType = "constant"
)

// ConditionType names the kind of terminal-status test a StepCondition runs.
type ConditionType string

const (
	ConditionSuccess ConditionType = "success"
	ConditionFailure ConditionType = "failure"
	ConditionTimeout ConditionType = "timeout"
	ConditionCustom  ConditionType = "custom"
)

// ConditionAction names what happens when a StepCondition fires.
type ConditionAction string

const (
	ActionContinue ConditionAction = "continue"
	ActionSkip     ConditionAction = "skip"
	ActionFail     ConditionAction = "fail"
	ActionBranch   ConditionAction = "branch"
	ActionNotify   ConditionAction = "notify"
)

// RetryPolicy controls whether and how a failed step is retried.
type RetryPolicy struct {
	MaxAttempts     int             `json:"maxAttempts"`
	BackoffStrategy BackoffStrategy `json:"backoffStrategy"`
	BaseDelayMs     int64           `json:"baseDelay"`
	MaxDelayMs      int64           `json:"maxDelay"`
	RetryableErrors []string        `json:"retryableErrors"`
	TimeoutMs       int64           `json:"timeoutMs,omitempty"`
}

// Transformation is applied, in order, to a resolved input or output value.
type Transformation struct {
	Type   string                 `json:"type"` // map, filter, format
	Format string                 `json:"format,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// IOBinding describes how a single step input or output value is located.
type IOBinding struct {
	Name            string           `json:"name"`
	SourceType      InputSourceType  `json:"sourceType"`
	Reference       string           `json:"reference"`
	Path            string           `json:"path,omitempty"`
	Required        bool             `json:"required"`
	Transformations []Transformation `json:"transformations,omitempty"`
}

// StepCondition fires an action based on a step's terminal status.
type StepCondition struct {
	Type           ConditionType   `json:"type"`
	Expression     string          `json:"expression,omitempty"`
	Action         ConditionAction `json:"action"`
	Target         string          `json:"target,omitempty"`
	DecisionTreeID string          `json:"decisionTreeId,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// WorkflowStep is a single unit of work in a WorkflowDefinition.
type WorkflowStep struct {
	ID              string          `json:"id"`
	Type            StepType        `json:"type"`
	AgentID         string          `json:"agentId"`
	Inputs          []IOBinding     `json:"inputs"`
	Outputs         []IOBinding     `json:"outputs"`
	Conditions      []StepCondition `json:"conditions"`
	TimeoutSeconds  int             `json:"timeout"`
	RetryPolicy     RetryPolicy     `json:"retryPolicy"`
	Dependencies    []string        `json:"dependencies"`
	MinQualityScore *float64        `json:"minQualityScore,omitempty"`
}

// AgentCapabilityDecl is a capability an agent declares it can serve.
type AgentCapabilityDecl struct {
	InputTypes      []string `json:"inputTypes"`
	OutputTypes     []string `json:"outputTypes"`
	ProcessingTime  float64  `json:"processingTime"` // seconds, average
	Accuracy        float64  `json:"accuracy"`
	CostPerOp       float64  `json:"costPerOperation"`
	CapabilityClass string   `json:"capabilityClass"` // see capability table in agentmgr
}

// MemoryConfig governs how long and how broadly an agent's memory is shared.
type MemoryConfig struct {
	RetentionPeriod time.Duration `json:"retentionPeriod"`
	SharingPolicy   string        `json:"sharingPolicy"`
}

// AgentDefinition describes a registrable agent.
type AgentDefinition struct {
	ID                     string                `json:"id"`
	Type                   AgentType             `json:"type"`
	Specialization         AgentSpecialization   `json:"specialization"`
	Capabilities           []AgentCapabilityDecl `json:"capabilities"`
	Configuration          map[string]interface{} `json:"configuration"`
	MemoryConfig           MemoryConfig          `json:"memoryConfig"`
	CommunicationProtocols []string              `json:"communicationProtocols"`
}

// AgentSpecialization narrows an agent's declared expertise.
type AgentSpecialization struct {
	Domain             string   `json:"domain"`
	Expertise          []string `json:"expertise"`
	QualityThreshold   float64  `json:"qualityThreshold"`
	SupportedLanguages []string `json:"supportedLanguages"`
	SupportedFormats   []string `json:"supportedFormats"`
}

// WorkflowMetadata carries scheduling and safety knobs for a definition.
type WorkflowMetadata struct {
	EstimatedDurationMinutes float64           `json:"estimatedDuration"`
	MaxConcurrentSteps       int               `json:"maxConcurrentSteps"`
	AllowCustomExpressions   bool              `json:"allowCustomExpressions"`
	Tags                     []string          `json:"tags,omitempty"`
	Extra                    map[string]string `json:"extra,omitempty"`
}

// WorkflowDefinition is an immutable DAG of steps once admitted.
type WorkflowDefinition struct {
	ID            string                     `json:"id"`
	Version       string                     `json:"version"`
	Steps         []WorkflowStep             `json:"steps"`
	Agents        []AgentDefinition          `json:"agents"`
	DecisionTrees map[string]DecisionTree    `json:"decisionTrees,omitempty"`
	Metadata      WorkflowMetadata           `json:"metadata"`
}

// StepExecution is one attempt at running a WorkflowStep inside an execution.
type StepExecution struct {
	StepID       string                 `json:"stepId"`
	Inputs       map[string]interface{} `json:"inputs"`
	Outputs      map[string]interface{} `json:"outputs"`
	Status       StepStatus             `json:"status"`
	StartTime    time.Time              `json:"startTime"`
	EndTime      time.Time              `json:"endTime"`
	Attempts     int                    `json:"attempts"`
	Cost         float64                `json:"cost"`
	QualityScore *float64               `json:"qualityScore,omitempty"`
	Error        *EngineError           `json:"error,omitempty"`
}

// AgentExecution is the per-execution view of one participating agent.
type AgentExecution struct {
	AgentID             string        `json:"agentId"`
	AssignedSteps       []string      `json:"assignedSteps"`
	CompletedSteps      []string      `json:"completedSteps"`
	TotalProcessingTime time.Duration `json:"totalProcessingTime"`
	TotalCost           float64       `json:"totalCost"`
	AverageQualityScore float64       `json:"averageQualityScore"`
	CommunicationLog    []string      `json:"communicationLog"`
}

// WorkflowExecution is the mutable lifecycle object created by `execute`.
type WorkflowExecution struct {
	ID                string                    `json:"id"`
	WorkflowID        string                    `json:"workflowId"`
	TenantID          string                    `json:"tenantId"`
	UserID            string                    `json:"userId"`
	Priority          int                       `json:"priority"`
	Status            ExecutionStatus           `json:"status"`
	Inputs            map[string]interface{}    `json:"inputs"`
	Outputs           map[string]interface{}    `json:"outputs"`
	Steps             []StepExecution           `json:"steps"`
	Agents            map[string]*AgentExecution `json:"agents"`
	StartTime         time.Time                 `json:"startTime"`
	EndTime           time.Time                 `json:"endTime"`
	TotalCost         float64                   `json:"totalCost"`
	QualityScore      *float64                  `json:"qualityScore,omitempty"`
	ErrorDetails      []EngineError             `json:"errorDetails,omitempty"`
	Metadata          map[string]interface{}    `json:"metadata"`
}

// DecisionNodeType enumerates the kind of a DecisionTree node.
type DecisionNodeType string

const (
	NodeCondition DecisionNodeType = "condition"
	NodeAction    DecisionNodeType = "action"
	NodeLeaf      DecisionNodeType = "leaf"
)

// DecisionVariable is a named, typed input to a DecisionTree's conditions.
type DecisionVariable struct {
	Name         string      `json:"name"`
	Source       string      `json:"source"` // execution.*, agent.*, environment.*, calculated.*
	DefaultValue interface{} `json:"defaultValue,omitempty"`
}

// DecisionOutcome is a named terminal result of a tree traversal.
type DecisionOutcome struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Actions     []string `json:"actions,omitempty"`
	Probability float64  `json:"probability,omitempty"`
}

// DecisionNode is one node in a DecisionTree.
type DecisionNode struct {
	ID         string           `json:"id"`
	Type       DecisionNodeType `json:"type"`
	Condition  string           `json:"condition,omitempty"`
	TrueNode   string           `json:"trueNode,omitempty"`
	FalseNode  string           `json:"falseNode,omitempty"`
	ActionType string           `json:"actionType,omitempty"`
	ActionArgs map[string]interface{} `json:"actionArgs,omitempty"`
}

// DecisionTree is a traversable tree of condition/action/leaf nodes.
type DecisionTree struct {
	ID            string                  `json:"id"`
	RootNode      string                  `json:"rootNode"`
	Nodes         map[string]DecisionNode `json:"nodes"`
	Variables     []DecisionVariable      `json:"variables"`
	Outcomes      map[string]DecisionOutcome `json:"outcomes"`
	DefaultOutcome string                 `json:"defaultOutcome,omitempty"`
}

// HandoffTicket is the audit record emitted at every step transition.
type HandoffTicket struct {
	ID              string                 `json:"id"`
	FromAgent       string                 `json:"fromAgent"`
	ToAgent         string                 `json:"toAgent"`
	Reason          string                 `json:"reason"`
	ExpectedOutcome string                 `json:"expectedOutcome"`
	SLAMs           int64                  `json:"slaMs"`
	Confidence      float64                `json:"confidence"`
	Status          string                 `json:"status"`
	CreatedAt       time.Time              `json:"createdAt"`
	Context         map[string]interface{} `json:"context,omitempty"`
	Annotations     map[string]interface{} `json:"annotations"`
	PayloadKeys     []string               `json:"payloadKeys"`
}

// Transition renders the stable "<from> -> <to>" wire value.
func (h HandoffTicket) Transition() string {
	return h.FromAgent + " -> " + h.ToAgent
}
