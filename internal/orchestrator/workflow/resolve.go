package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arcflow/orchestrator/internal/orchestrator/agentmgr"
	"github.com/arcflow/orchestrator/pkg/schema"
)

// memoryReader is the subset of agentmgr.Manager the input resolver
// needs, kept as an interface so tests can supply a fake without a full
// Manager.
type memoryReader interface {
	GetMemoryValue(agentID, executionID, key, path string) (interface{}, bool)
}

// resolveInputs resolves every declared input of step against the
// execution-so-far (§4.1.1). Required inputs that fail to
// resolve return a non-recoverable ValidationError.
func resolveInputs(step schema.WorkflowStep, exec *schema.WorkflowExecution, mem memoryReader, executionID string) (map[string]interface{}, *schema.EngineError) {
	resolved := make(map[string]interface{}, len(step.Inputs))

	for _, in := range step.Inputs {
		value, ok := resolveOne(in, exec, mem, executionID)
		if !ok {
			if in.Required {
				return nil, schema.NewEngineError(schema.ErrValidation, fmt.Sprintf("step %s: required input %s did not resolve", step.ID, in.Name))
			}
			continue
		}
		for _, t := range in.Transformations {
			value = applyTransformation(value, t)
		}
		resolved[in.Name] = value
	}

	return resolved, nil
}

func resolveOne(in schema.IOBinding, exec *schema.WorkflowExecution, mem memoryReader, executionID string) (interface{}, bool) {
	switch in.SourceType {
	case schema.SourceWorkflowInput:
		v, ok := exec.Inputs[in.Reference]
		return v, ok

	case schema.SourceStepOutput:
		for _, s := range exec.Steps {
			if s.StepID != in.Reference {
				continue
			}
			if in.Path != "" {
				return dotPath(s.Outputs, in.Path)
			}
			v, ok := s.Outputs[in.Name]
			return v, ok
		}
		return nil, false

	case schema.SourceAgentMemory:
		if mem == nil {
			return nil, false
		}
		return mem.GetMemoryValue(in.Reference, executionID, in.Name, in.Path)

	case schema.SourceConstant:
		return in.Reference, true

	default:
		return nil, false
	}
}

func dotPath(v map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = v
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// applyTransformation applies one transformation to a resolved value.
// Only "format" is applied (uppercase, lowercase, json, on string
// values); "map", "filter" and unrecognized types pass the value through
// unchanged, and Params is not read.
func applyTransformation(value interface{}, t schema.Transformation) interface{} {
	switch t.Type {
	case "format":
		s, ok := value.(string)
		if !ok {
			return value
		}
		switch t.Format {
		case "uppercase":
			return strings.ToUpper(s)
		case "lowercase":
			return strings.ToLower(s)
		case "json":
			if encoded, err := json.Marshal(value); err == nil {
				return string(encoded)
			}
			return value
		default:
			return value
		}
	default:
		return value
	}
}

// memoryWriter is the subset of agentmgr.Manager the output router needs
// to route a declared output to an agent's memory partition.
type memoryWriter interface {
	UpdateMemory(agentID, key string, data interface{}, executionID string)
}

// routeOutputs walks step's declared output bindings (destinations,
// symmetric to §4.1.1's input sources) and, after applying any
// transformations, writes each resolved value to its destination:
// workflow_input writes into the execution's top-level Outputs map,
// agent_memory writes into the owning agent's per-execution memory
// partition. step_output and constant destinations are no-ops — the raw
// executor outputs are already available to downstream steps via
// StepExecution.Outputs.
func routeOutputs(step schema.WorkflowStep, outputs map[string]interface{}, exec *schema.WorkflowExecution, mem memoryWriter, executionID string) {
	for _, out := range step.Outputs {
		value, ok := outputs[out.Name]
		if !ok && out.Path != "" {
			value, ok = dotPath(outputs, out.Path)
		}
		if !ok {
			continue
		}
		for _, t := range out.Transformations {
			value = applyTransformation(value, t)
		}

		key := out.Reference
		if key == "" {
			key = out.Name
		}

		switch out.SourceType {
		case schema.SourceWorkflowInput:
			if exec.Outputs == nil {
				exec.Outputs = make(map[string]interface{})
			}
			exec.Outputs[key] = value
		case schema.SourceAgentMemory:
			if mem != nil {
				mem.UpdateMemory(step.AgentID, key, value, executionID)
			}
		}
	}
}

var _ memoryReader = (*agentmgr.Manager)(nil)
var _ memoryWriter = (*agentmgr.Manager)(nil)
