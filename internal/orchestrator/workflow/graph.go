package workflow

import (
	"fmt"

	"github.com/arcflow/orchestrator/pkg/schema"
)

// Builder provides a fluent interface for constructing WorkflowDefinitions:
// steps carry their dependencies directly, forming an explicit DAG rather
// than being split across separate sequential/parallel/conditional modes.
type Builder struct {
	def WorkflowDefinitionDraft
}

// WorkflowDefinitionDraft accumulates fields before Build validates and
// returns an immutable schema.WorkflowDefinition.
type WorkflowDefinitionDraft struct {
	id       string
	version  string
	steps    []schema.WorkflowStep
	agents   []schema.AgentDefinition
	trees    map[string]schema.DecisionTree
	metadata schema.WorkflowMetadata
}

// NewBuilder starts a draft for the given workflow id.
func NewBuilder(id string) *Builder {
	return &Builder{def: WorkflowDefinitionDraft{
		id:      id,
		version: "1",
		trees:   make(map[string]schema.DecisionTree),
		metadata: schema.WorkflowMetadata{
			MaxConcurrentSteps: 1,
		},
	}}
}

// WithVersion sets the definition version.
func (b *Builder) WithVersion(v string) *Builder {
	b.def.version = v
	return b
}

// WithMaxConcurrentSteps sets metadata.maxConcurrentSteps.
func (b *Builder) WithMaxConcurrentSteps(n int) *Builder {
	b.def.metadata.MaxConcurrentSteps = n
	return b
}

// AllowCustomExpressions toggles metadata.allowCustomExpressions.
func (b *Builder) AllowCustomExpressions(allow bool) *Builder {
	b.def.metadata.AllowCustomExpressions = allow
	return b
}

// WithEstimatedDuration sets the workflow deadline, in minutes.
func (b *Builder) WithEstimatedDuration(minutes float64) *Builder {
	b.def.metadata.EstimatedDurationMinutes = minutes
	return b
}

// AddAgent registers an agent definition usable by this workflow's steps.
func (b *Builder) AddAgent(agent schema.AgentDefinition) *Builder {
	b.def.agents = append(b.def.agents, agent)
	return b
}

// AddStep appends a step to the definition.
func (b *Builder) AddStep(step schema.WorkflowStep) *Builder {
	b.def.steps = append(b.def.steps, step)
	return b
}

// AddDecisionTree registers a decision tree referenceable by step conditions.
func (b *Builder) AddDecisionTree(tree schema.DecisionTree) *Builder {
	b.def.trees[tree.ID] = tree
	return b
}

// Build validates structural completeness and returns the immutable
// definition. Full DAG/agent-resolution validation runs separately via
// Validator.Validate — Build only checks that the draft is non-empty.
func (b *Builder) Build() (schema.WorkflowDefinition, error) {
	if b.def.id == "" {
		return schema.WorkflowDefinition{}, fmt.Errorf("workflow id is required")
	}
	if len(b.def.steps) == 0 {
		return schema.WorkflowDefinition{}, fmt.Errorf("workflow must have at least one step")
	}
	if b.def.metadata.MaxConcurrentSteps <= 0 {
		b.def.metadata.MaxConcurrentSteps = 1
	}

	return schema.WorkflowDefinition{
		ID:            b.def.id,
		Version:       b.def.version,
		Steps:         b.def.steps,
		Agents:        b.def.agents,
		DecisionTrees: b.def.trees,
		Metadata:      b.def.metadata,
	}, nil
}
