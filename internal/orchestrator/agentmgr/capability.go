package agentmgr

import "github.com/arcflow/orchestrator/pkg/schema"

// capabilityStepTypes is the fixed capability-class -> step-type table.
var capabilityStepTypes = map[string][]schema.StepType{
	"text_analysis":      {schema.StepAnalysis, schema.StepValidation},
	"content_generation": {schema.StepGeneration},
	"data_extraction":    {schema.StepAnalysis, schema.StepTransformation},
	"quality_assessment": {schema.StepValidation},
	"decision_making":    {schema.StepDecision},
	"coordination":       {schema.StepAggregation, schema.StepNotification},
	"validation":         {schema.StepValidation},
}

// typeFallback is the fallback capability-free match by agent type.
var typeFallback = map[schema.AgentType][]schema.StepType{
	schema.AgentAnalysis:       {schema.StepAnalysis, schema.StepValidation},
	schema.AgentContent:        {schema.StepGeneration},
	schema.AgentRecommendation: {schema.StepAnalysis, schema.StepGeneration},
	schema.AgentValidation:     {schema.StepValidation},
	schema.AgentCoordination:   {schema.StepAggregation, schema.StepNotification},
	schema.AgentSpecialist:     {schema.StepAnalysis, schema.StepTransformation},
}

// defaultConcurrencyCaps are the fixed per-type concurrency defaults.
var defaultConcurrencyCaps = map[schema.AgentType]int{
	schema.AgentAnalysis:       3,
	schema.AgentContent:        2,
	schema.AgentRecommendation: 4,
	schema.AgentValidation:     5,
	schema.AgentCoordination:   1,
	schema.AgentSpecialist:     2,
}

func maxConcurrentExecutions(t schema.AgentType) int {
	if cap, ok := defaultConcurrencyCaps[t]; ok {
		return cap
	}
	return 1
}

// canHandle reports whether def can run a step of the given type, first by
// declared capability class, then by agent-type fallback.
func canHandle(def schema.AgentDefinition, stepType schema.StepType) bool {
	for _, cap := range def.Capabilities {
		for _, st := range capabilityStepTypes[cap.CapabilityClass] {
			if st == stepType {
				return true
			}
		}
	}
	for _, st := range typeFallback[def.Type] {
		if st == stepType {
			return true
		}
	}
	return false
}
