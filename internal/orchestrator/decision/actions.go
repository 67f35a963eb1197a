package decision

import "github.com/arcflow/orchestrator/pkg/schema"

// ActionExecutor runs the side effect attached to an action node. Node
// args are whatever the tree author configured; vars is the resolved
// variable map available at traversal time.
type ActionExecutor func(node schema.DecisionNode, vars map[string]interface{}) error

// ActionRegistry is a symbolic-type -> function table, following the
// registry idiom used throughout the rest of the orchestrator package
// rather than a type switch or interface hierarchy.
type ActionRegistry struct {
	executors map[string]ActionExecutor
}

// NewActionRegistry returns a registry with no-op defaults registered for
// every action type named in §4.3; callers override the ones they
// need (assign_agent, modify_workflow, escalate, terminate,
// send_notification).
func NewActionRegistry() *ActionRegistry {
	r := &ActionRegistry{executors: make(map[string]ActionExecutor)}
	for _, actionType := range []string{"assign_agent", "modify_workflow", "escalate", "terminate", "send_notification"} {
		r.executors[actionType] = func(schema.DecisionNode, map[string]interface{}) error { return nil }
	}
	return r
}

// Register binds actionType to fn, replacing any existing binding.
func (r *ActionRegistry) Register(actionType string, fn ActionExecutor) {
	r.executors[actionType] = fn
}

// Execute runs the registered executor for node.ActionType, or returns
// nil if no executor is registered (unknown action types are a no-op,
// not a traversal error).
func (r *ActionRegistry) Execute(node schema.DecisionNode, vars map[string]interface{}) error {
	fn, ok := r.executors[node.ActionType]
	if !ok {
		return nil
	}
	return fn(node, vars)
}
