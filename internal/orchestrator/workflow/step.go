package workflow

import (
	"context"
	"time"

	"github.com/arcflow/orchestrator/internal/orchestrator/bus"
	"github.com/arcflow/orchestrator/internal/orchestrator/decision"
	"github.com/arcflow/orchestrator/pkg/schema"
)

// runStep executes one WorkflowStep to a terminal StepExecution, including
// its retry loop, and sends the result on results. Follows §4.1's
// eight-step per-step pipeline: resolve inputs, enforce the deadline,
// dispatch to the Agent Manager, apply the quality gate, evaluate
// conditions, and emit a HandoffTicket for every attempt.
func (e *Engine) runStep(ctx context.Context, def schema.WorkflowDefinition, exec *schema.WorkflowExecution, step schema.WorkflowStep, results chan<- stepOutcome) {
	inputs, inErr := resolveInputs(step, exec, e.agents, exec.ID)
	if inErr != nil {
		final := schema.StepExecution{
			StepID:    step.ID,
			Inputs:    inputs,
			Status:    schema.StepFailed,
			StartTime: e.clock.Now(),
			EndTime:   e.clock.Now(),
			Attempts:  1,
			Error:     inErr,
		}
		e.emitHandoff(def, final, step, exec)
		results <- stepOutcome{stepID: step.ID, result: final}
		return
	}

	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	agentID := step.AgentID
	var attempts int
	var final schema.StepExecution

	for {
		attempts++
		start := e.clock.Now()

		if !e.agents.IsAvailable(agentID) {
			if alt, ok := e.agents.GetOptimalAgent(step.Type); ok {
				agentID = alt
			}
		}

		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		result, execErr := e.agents.ExecuteStep(stepCtx, agentID, step, inputs, exec.ID)
		cancel()

		end := e.clock.Now()
		attempt := schema.StepExecution{
			StepID:    step.ID,
			Inputs:    inputs,
			Outputs:   result.Outputs,
			StartTime: start,
			EndTime:   end,
			Attempts:  attempts,
			Cost:      result.Cost,
		}

		switch {
		case stepCtx.Err() == context.DeadlineExceeded:
			attempt.Status = schema.StepTimeout
			attempt.Error = schema.NewRecoverableError(schema.ErrExecutionTimeout, "step deadline exceeded")
		case execErr != nil:
			attempt.Status = schema.StepFailed
			attempt.Error = execErr
		default:
			attempt.Status = schema.StepCompleted
			q := result.QualityScore
			attempt.QualityScore = &q
			routeOutputs(step, attempt.Outputs, exec, e.agents, exec.ID)
		}

		e.emitHandoff(def, attempt, step, exec)
		final = attempt

		if attempt.Status == schema.StepCompleted {
			break
		}
		if !shouldRetry(step.RetryPolicy, attempts, attempt.Error) {
			break
		}
		e.clock.Sleep(backoffDelay(step.RetryPolicy, attempts))
	}

	final = e.applyQualityGate(final, step, exec)
	final = e.evaluateConditions(def, exec, step, final)

	results <- stepOutcome{stepID: step.ID, result: final}
}

// applyQualityGate marks execution.Metadata["humanReviewRequired"] when a
// completed step's quality score falls below its declared minimum, per
// §4.1's quality-gate edge case. The step itself still reports completed;
// the gate is advisory, not a failure.
func (e *Engine) applyQualityGate(step schema.StepExecution, def schema.WorkflowStep, exec *schema.WorkflowExecution) schema.StepExecution {
	if step.Status != schema.StepCompleted || def.MinQualityScore == nil || step.QualityScore == nil {
		return step
	}
	if *step.QualityScore < *def.MinQualityScore {
		exec.Metadata["humanReviewRequired"] = true
	}
	return step
}

// evaluateConditions runs step.Conditions matching the step's terminal
// status, per §4.1.2. "fail" marks the step failed, which makes finalize
// report the execution failed; "skip"
// marks the step skipped; "branch" traverses the referenced decision
// tree and records its outcome; "notify" fans a message out over the bus.
func (e *Engine) evaluateConditions(def schema.WorkflowDefinition, exec *schema.WorkflowExecution, step schema.WorkflowStep, result schema.StepExecution) schema.StepExecution {
	for _, cond := range step.Conditions {
		if !conditionMatches(cond, result, def.Metadata.AllowCustomExpressions) {
			continue
		}
		switch cond.Action {
		case schema.ActionSkip:
			result.Status = schema.StepSkipped
		case schema.ActionFail:
			result.Status = schema.StepFailed
			if result.Error == nil {
				result.Error = schema.NewEngineError(schema.ErrValidation, cond.Message)
			}
		case schema.ActionBranch:
			if e.decisions == nil || cond.DecisionTreeID == "" {
				continue
			}
			tree, ok := def.DecisionTrees[cond.DecisionTreeID]
			if !ok {
				continue
			}
			dctx := decision.NewContext(exec, e.clock.Now(), def.Metadata.AllowCustomExpressions)
			if res, err := e.decisions.ExecuteDecisionTree(tree, dctx, nil); err == nil {
				if exec.Metadata == nil {
					exec.Metadata = make(map[string]interface{})
				}
				exec.Metadata["lastDecision:"+step.ID] = res.OutcomeID
			}
		case schema.ActionNotify:
			if e.bus == nil || cond.Target == "" {
				continue
			}
			e.bus.Send(bus.Message{
				From: step.AgentID,
				To:   cond.Target,
				Type: bus.TypeNotification,
				Payload: map[string]interface{}{
					"stepId":  step.ID,
					"status":  string(result.Status),
					"message": cond.Message,
				},
			})
		}
	}
	return result
}

// conditionMatches reports whether a condition fires for the step's
// terminal status. A custom condition only ever fires when the workflow
// has opted into allowCustomExpressions; with the flag off it is always
// false and never parsed, per §4.1.2, scenario 5. With the flag on, its
// Expression is evaluated through the same restricted grammar the
// decision engine uses, against a variable map built from this step's
// own result.
func conditionMatches(cond schema.StepCondition, result schema.StepExecution, allowCustom bool) bool {
	switch cond.Type {
	case schema.ConditionSuccess:
		return result.Status == schema.StepCompleted
	case schema.ConditionFailure:
		return result.Status == schema.StepFailed
	case schema.ConditionTimeout:
		return result.Status == schema.StepTimeout
	case schema.ConditionCustom:
		if !allowCustom || cond.Expression == "" {
			return false
		}
		expr, err := decision.Parse(cond.Expression)
		if err != nil {
			return false
		}
		ok, err := expr.Eval(stepConditionVars(result))
		return err == nil && ok
	default:
		return false
	}
}

func stepConditionVars(result schema.StepExecution) map[string]interface{} {
	vars := map[string]interface{}{
		"status":   string(result.Status),
		"attempts": result.Attempts,
		"cost":     result.Cost,
	}
	if result.QualityScore != nil {
		vars["qualityScore"] = *result.QualityScore
	}
	return vars
}

// emitHandoff records a HandoffTicket for one step attempt. toAgent is
// the first downstream step's agent in definition order, or
// "orchestrator" when nothing depends on this step (§4.1 step 7).
func (e *Engine) emitHandoff(full schema.WorkflowDefinition, step schema.StepExecution, def schema.WorkflowStep, exec *schema.WorkflowExecution) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(step, def.AgentID, downstreamAgent(full, def.ID), exec)
}

func downstreamAgent(def schema.WorkflowDefinition, stepID string) string {
	for _, s := range def.Steps {
		for _, dep := range s.Dependencies {
			if dep == stepID {
				return s.AgentID
			}
		}
	}
	return "orchestrator"
}
