package decision

import (
	"strings"
	"time"

	"github.com/arcflow/orchestrator/pkg/schema"
)

// AgentMetrics is the per-agent slice of the decision context.
type AgentMetrics struct {
	ProcessingTime      time.Duration
	Cost                float64
	QualityScore        float64
	CompletedStepsCount int
}

// Context is the read-only snapshot a DecisionTree traversal evaluates
// variables and conditions against.
type Context struct {
	Execution   *schema.WorkflowExecution
	StepOutputs map[string]map[string]interface{} // stepId -> outputs
	AgentStats  map[string]AgentMetrics            // agentId -> metrics
	Environment map[string]interface{}
}

// NewContext assembles a Context from an execution snapshot.
func NewContext(exec *schema.WorkflowExecution, now time.Time, allowCustomExpressions bool) *Context {
	stepOutputs := make(map[string]map[string]interface{}, len(exec.Steps))
	for _, s := range exec.Steps {
		stepOutputs[s.StepID] = s.Outputs
	}

	agentStats := make(map[string]AgentMetrics, len(exec.Agents))
	for id, ae := range exec.Agents {
		agentStats[id] = AgentMetrics{
			ProcessingTime:      ae.TotalProcessingTime,
			Cost:                ae.TotalCost,
			QualityScore:        ae.AverageQualityScore,
			CompletedStepsCount: len(ae.CompletedSteps),
		}
	}

	quality := 0.0
	if exec.QualityScore != nil {
		quality = *exec.QualityScore
	}

	env := map[string]interface{}{
		"currentTime":            now,
		"executionDuration":      now.Sub(exec.StartTime).Seconds(),
		"totalCost":              exec.TotalCost,
		"qualityScore":           quality,
		"allowCustomExpressions": allowCustomExpressions,
	}

	return &Context{Execution: exec, StepOutputs: stepOutputs, AgentStats: agentStats, Environment: env}
}

// resolverFor returns the resolver function bound to a variable's source
// prefix, or nil if no resolver owns that prefix (caller falls back to a
// whole-context dot path).
func (c *Context) resolverFor(source string) func(reference string) (interface{}, bool) {
	switch {
	case strings.HasPrefix(source, "execution."):
		return c.resolveExecution
	case strings.HasPrefix(source, "agent."):
		return c.resolveAgent
	case strings.HasPrefix(source, "environment."):
		return c.resolveEnvironment
	case strings.HasPrefix(source, "calculated."):
		return c.resolveCalculated
	default:
		return nil
	}
}

func (c *Context) resolveExecution(ref string) (interface{}, bool) {
	field := strings.TrimPrefix(ref, "execution.")
	switch field {
	case "status":
		return string(c.Execution.Status), true
	case "totalCost":
		return c.Execution.TotalCost, true
	case "qualityScore":
		if c.Execution.QualityScore == nil {
			return nil, false
		}
		return *c.Execution.QualityScore, true
	default:
		if v, ok := c.Execution.Outputs[field]; ok {
			return v, true
		}
		return dotPathLookup(c.Execution.Inputs, field)
	}
}

func (c *Context) resolveAgent(ref string) (interface{}, bool) {
	rest := strings.TrimPrefix(ref, "agent.")
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 {
		return nil, false
	}
	agentID, field := parts[0], parts[1]
	stats, ok := c.AgentStats[agentID]
	if !ok {
		return nil, false
	}
	switch field {
	case "processingTime":
		return stats.ProcessingTime.Seconds(), true
	case "cost":
		return stats.Cost, true
	case "qualityScore":
		return stats.QualityScore, true
	case "completedStepsCount":
		return float64(stats.CompletedStepsCount), true
	default:
		return nil, false
	}
}

func (c *Context) resolveEnvironment(ref string) (interface{}, bool) {
	field := strings.TrimPrefix(ref, "environment.")
	v, ok := c.Environment[field]
	return v, ok
}

func (c *Context) resolveCalculated(ref string) (interface{}, bool) {
	field := strings.TrimPrefix(ref, "calculated.")
	switch field {
	case "completionRate":
		if len(c.Execution.Steps) == 0 {
			return 0.0, true
		}
		done := 0
		for _, s := range c.Execution.Steps {
			if s.Status == schema.StepCompleted {
				done++
			}
		}
		return float64(done) / float64(len(c.Execution.Steps)), true
	case "averageQuality":
		sum, n := 0.0, 0
		for _, s := range c.Execution.Steps {
			if s.QualityScore != nil {
				sum += *s.QualityScore
				n++
			}
		}
		if n == 0 {
			return 0.0, true
		}
		return sum / float64(n), true
	case "costEfficiency":
		sum, n := 0.0, 0
		for _, s := range c.Execution.Steps {
			if s.QualityScore != nil && s.Cost > 0 {
				sum += *s.QualityScore / s.Cost
				n++
			}
		}
		if n == 0 {
			return 0.0, true
		}
		return sum / float64(n), true
	default:
		return nil, false
	}
}

// Resolve resolves one DecisionVariable against the context, falling back
// to a whole-context dot path, then the declared default.
func (c *Context) Resolve(v schema.DecisionVariable) interface{} {
	if fn := c.resolverFor(v.Source); fn != nil {
		if val, ok := fn(v.Source); ok {
			return val
		}
		return v.DefaultValue
	}
	whole := map[string]interface{}{
		"execution":   c.Execution,
		"agent":       c.AgentStats,
		"environment": c.Environment,
	}
	if val, ok := dotPathLookup(whole, v.Source); ok {
		return val
	}
	return v.DefaultValue
}

func dotPathLookup(v interface{}, path string) (interface{}, bool) {
	cur := v
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
