package workflow

import (
	"fmt"

	"github.com/arcflow/orchestrator/pkg/schema"
)

// Validator validates a WorkflowDefinition before any step runs:
// non-empty steps/agents, every dependency and agentId resolves, and
// the dependency graph is acyclic, checked unconditionally regardless
// of concurrency mode.
type Validator struct{}

// NewValidator returns a stateless Validator.
func NewValidator() *Validator { return &Validator{} }

// Validate returns a *schema.EngineError with code VALIDATION_ERROR on
// the first problem found.
func (v *Validator) Validate(def schema.WorkflowDefinition) *schema.EngineError {
	if def.ID == "" {
		return schema.NewEngineError(schema.ErrValidation, "workflow id is required")
	}
	if len(def.Steps) == 0 {
		return schema.NewEngineError(schema.ErrValidation, "workflow must have at least one step")
	}
	if len(def.Agents) == 0 {
		return schema.NewEngineError(schema.ErrValidation, "workflow must declare at least one agent")
	}

	agentIDs := make(map[string]bool, len(def.Agents))
	for _, a := range def.Agents {
		agentIDs[a.ID] = true
	}

	stepIDs := make(map[string]bool, len(def.Steps))
	for i, step := range def.Steps {
		if step.ID == "" {
			return schema.NewEngineError(schema.ErrValidation, fmt.Sprintf("step %d: id is required", i))
		}
		if stepIDs[step.ID] {
			return schema.NewEngineError(schema.ErrValidation, fmt.Sprintf("duplicate step id: %s", step.ID))
		}
		stepIDs[step.ID] = true

		if step.AgentID == "" {
			return schema.NewEngineError(schema.ErrValidation, fmt.Sprintf("step %s: agentId is required", step.ID))
		}
		if !agentIDs[step.AgentID] {
			return schema.NewEngineError(schema.ErrValidation, fmt.Sprintf("step %s: unknown agent %s", step.ID, step.AgentID))
		}
	}

	for _, step := range def.Steps {
		for _, dep := range step.Dependencies {
			if !stepIDs[dep] {
				return schema.NewEngineError(schema.ErrValidation, fmt.Sprintf("step %s: unknown dependency %s", step.ID, dep))
			}
		}
	}

	if err := checkCircularDependencies(def.Steps); err != nil {
		return schema.NewEngineError(schema.ErrValidation, err.Error())
	}

	return nil
}

// checkCircularDependencies rejects any definition whose dependency graph
// is not a DAG, via DFS with a recursion stack.
func checkCircularDependencies(steps []schema.WorkflowStep) error {
	graph := make(map[string][]string, len(steps))
	for _, s := range steps {
		graph[s.ID] = s.Dependencies
	}

	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	var hasCycle func(string) bool
	hasCycle = func(id string) bool {
		visited[id] = true
		inStack[id] = true
		for _, dep := range graph[id] {
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if inStack[dep] {
				return true
			}
		}
		inStack[id] = false
		return false
	}

	for _, s := range steps {
		if !visited[s.ID] {
			if hasCycle(s.ID) {
				return fmt.Errorf("circular dependency detected involving step %s", s.ID)
			}
		}
	}
	return nil
}
