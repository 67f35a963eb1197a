// Package workflow implements the Workflow Orchestrator: DAG execution
// with dependency resolution, bounded parallelism, per-step and
// per-workflow timeouts, retry with backoff, conditional branching,
// pause/resume/cancel, and aggregated termination status. Steps become
// ready as their dependencies complete; a single scheduler loop runs
// the ready set up to the workflow's concurrency bound.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcflow/orchestrator/internal/clock"
	"github.com/arcflow/orchestrator/internal/orchestrator/agentmgr"
	"github.com/arcflow/orchestrator/internal/orchestrator/audit"
	"github.com/arcflow/orchestrator/internal/orchestrator/bus"
	"github.com/arcflow/orchestrator/internal/orchestrator/decision"
	"github.com/arcflow/orchestrator/pkg/schema"
	"github.com/google/uuid"
)

// idleYield is the brief pause the scheduler takes when nothing is ready
// but steps are still running, to avoid a tight spin (§4.1 step 4).
const idleYield = 50 * time.Millisecond

type execControl struct {
	mu     sync.Mutex
	exec   *schema.WorkflowExecution
	cancel context.CancelFunc
}

// Engine is the Workflow Orchestrator.
type Engine struct {
	agents    *agentmgr.Manager
	decisions *decision.Engine
	bus       *bus.Bus
	audit     *audit.Logger
	clock     clock.Clock

	mu     sync.Mutex
	active map[string]*execControl
}

// New builds an Engine wired to its collaborators.
func New(agents *agentmgr.Manager, decisions *decision.Engine, b *bus.Bus, auditLogger *audit.Logger, c clock.Clock) *Engine {
	if c == nil {
		c = clock.New()
	}
	return &Engine{
		agents:    agents,
		decisions: decisions,
		bus:       b,
		audit:     auditLogger,
		clock:     c,
		active:    make(map[string]*execControl),
	}
}

// Execute validates def, admits an execution, and runs it to a terminal
// state synchronously with respect to the caller (§4.1).
func (e *Engine) Execute(ctx context.Context, def schema.WorkflowDefinition, inputs map[string]interface{}, tenantID, userID string, priority int) (*schema.WorkflowExecution, *schema.EngineError) {
	v := NewValidator()
	if err := v.Validate(def); err != nil {
		return nil, err
	}

	exec := &schema.WorkflowExecution{
		ID:         uuid.NewString(),
		WorkflowID: def.ID,
		TenantID:   tenantID,
		UserID:     userID,
		Priority:   priority,
		Status:     schema.ExecutionRunning,
		Inputs:     inputs,
		Outputs:    make(map[string]interface{}),
		Agents:     make(map[string]*schema.AgentExecution),
		StartTime:  e.clock.Now(),
		Metadata:   make(map[string]interface{}),
	}

	for _, a := range def.Agents {
		if err := e.agents.Initialize(a, exec.ID); err != nil {
			exec.Status = schema.ExecutionFailed
			exec.EndTime = e.clock.Now()
			exec.ErrorDetails = append(exec.ErrorDetails, *err)
			return exec, err
		}
		exec.Agents[a.ID] = &schema.AgentExecution{AgentID: a.ID}
	}

	runCtx, cancel := context.WithCancel(ctx)
	ctrl := &execControl{exec: exec, cancel: cancel}
	e.mu.Lock()
	e.active[exec.ID] = ctrl
	e.mu.Unlock()

	defer e.cleanup(def, exec)

	deadline := time.Duration(def.Metadata.EstimatedDurationMinutes * float64(time.Minute))
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	deadlineCh := e.clock.After(deadline)

	e.runLoop(runCtx, def, ctrl, deadlineCh)

	exec.EndTime = e.clock.Now()
	return exec, nil
}

func (e *Engine) cleanup(def schema.WorkflowDefinition, exec *schema.WorkflowExecution) {
	for _, a := range def.Agents {
		e.agents.Release(a.ID, exec.ID)
	}
	e.mu.Lock()
	delete(e.active, exec.ID)
	e.mu.Unlock()
}

type stepOutcome struct {
	stepID string
	result schema.StepExecution
}

func (e *Engine) runLoop(ctx context.Context, def schema.WorkflowDefinition, ctrl *execControl, deadlineCh <-chan time.Time) {
	exec := ctrl.exec
	maxConcurrent := def.Metadata.MaxConcurrentSteps
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	done := make(map[string]schema.StepStatus)
	running := make(map[string]bool)
	results := make(chan stepOutcome, len(def.Steps))

	stepByID := make(map[string]schema.WorkflowStep, len(def.Steps))
	for _, s := range def.Steps {
		stepByID[s.ID] = s
	}

	for len(done) < len(def.Steps) {
		ctrl.mu.Lock()
		status := exec.Status
		ctrl.mu.Unlock()

		if status == schema.ExecutionCancelled {
			break
		}

		if status == schema.ExecutionRunning {
			ready := e.readySteps(def.Steps, done, running)
			for len(running) < maxConcurrent && len(ready) > 0 {
				step := ready[0]
				ready = ready[1:]
				running[step.ID] = true
				go e.runStep(ctx, def, exec, step, results)
			}
		}

		if len(running) == 0 {
			if status != schema.ExecutionRunning {
				// paused with nothing in flight: wait for resume or cancel
				select {
				case <-deadlineCh:
					e.applyTimeout(ctrl)
					return
				case <-e.clock.After(idleYield):
					continue
				}
			}
			if len(done) >= len(def.Steps) {
				break
			}
			// nothing ready and nothing running: scheduling is stuck
			// (should not happen for a validated DAG) — avoid a hang.
			e.clock.Sleep(idleYield)
			continue
		}

		select {
		case <-deadlineCh:
			e.applyTimeout(ctrl)
			return
		case outcome := <-results:
			delete(running, outcome.stepID)
			done[outcome.stepID] = outcome.result.Status
			ctrl.mu.Lock()
			exec.Steps = append(exec.Steps, outcome.result)
			e.foldAgentExecution(exec, stepByID[outcome.stepID], outcome.result)
			ctrl.mu.Unlock()
		case <-e.clock.After(idleYield):
		}
	}

	ctrl.mu.Lock()
	e.finalize(exec)
	ctrl.mu.Unlock()
}

func (e *Engine) applyTimeout(ctrl *execControl) {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	ctrl.exec.Status = schema.ExecutionTimeout
	ctrl.exec.ErrorDetails = append(ctrl.exec.ErrorDetails, *schema.NewEngineError(schema.ErrExecutionTimeout, "workflow deadline exceeded"))
	ctrl.cancel()
}

// readySteps returns, in definition order, every step not yet terminal,
// not already running, whose dependencies are all terminal.
func (e *Engine) readySteps(steps []schema.WorkflowStep, done map[string]schema.StepStatus, running map[string]bool) []schema.WorkflowStep {
	var ready []schema.WorkflowStep
	for _, s := range steps {
		if _, finished := done[s.ID]; finished {
			continue
		}
		if running[s.ID] {
			continue
		}
		allDepsDone := true
		for _, dep := range s.Dependencies {
			if _, ok := done[dep]; !ok {
				allDepsDone = false
				break
			}
		}
		if allDepsDone {
			ready = append(ready, s)
		}
	}
	return ready
}

func (e *Engine) foldAgentExecution(exec *schema.WorkflowExecution, step schema.WorkflowStep, result schema.StepExecution) {
	ae, ok := exec.Agents[step.AgentID]
	if !ok {
		return
	}
	ae.AssignedSteps = append(ae.AssignedSteps, step.ID)
	if result.Status == schema.StepCompleted {
		ae.CompletedSteps = append(ae.CompletedSteps, step.ID)
	}
	ae.TotalProcessingTime += result.EndTime.Sub(result.StartTime)
	ae.TotalCost += result.Cost
	if result.QualityScore != nil {
		n := float64(len(ae.CompletedSteps))
		if n <= 1 {
			ae.AverageQualityScore = *result.QualityScore
		} else {
			ae.AverageQualityScore = ((ae.AverageQualityScore * (n - 1)) + *result.QualityScore) / n
		}
	}
	exec.TotalCost += result.Cost
}

// finalize computes the aggregate terminal status per §4.1's rule:
// timeout if any step timed out, else failed if any step failed, else
// completed. qualityScore is the mean of defined per-step scores.
func (e *Engine) finalize(exec *schema.WorkflowExecution) {
	if exec.Status == schema.ExecutionCancelled || exec.Status == schema.ExecutionTimeout {
		return
	}

	status := schema.ExecutionCompleted
	var sum float64
	var n int
	for _, s := range exec.Steps {
		switch s.Status {
		case schema.StepTimeout:
			status = schema.ExecutionTimeout
		case schema.StepFailed:
			if status != schema.ExecutionTimeout {
				status = schema.ExecutionFailed
			}
		}
		if s.QualityScore != nil {
			sum += *s.QualityScore
			n++
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		exec.QualityScore = &avg
	}
	exec.Status = status
}

// Pause transitions a running execution to paused. Only valid from running.
func (e *Engine) Pause(executionID string) *schema.EngineError {
	ctrl, err := e.lookup(executionID)
	if err != nil {
		return err
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.exec.Status != schema.ExecutionRunning {
		return schema.NewEngineError(schema.ErrInvalidStatus, "pause is only valid from running")
	}
	ctrl.exec.Status = schema.ExecutionPaused
	return nil
}

// Resume transitions a paused execution back to running.
func (e *Engine) Resume(executionID string) *schema.EngineError {
	ctrl, err := e.lookup(executionID)
	if err != nil {
		return err
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.exec.Status != schema.ExecutionPaused {
		return schema.NewEngineError(schema.ErrInvalidStatus, "resume is only valid from paused")
	}
	ctrl.exec.Status = schema.ExecutionRunning
	return nil
}

// Cancel transitions any non-terminal execution to cancelled. Idempotent
// on an already-terminal execution: returns the current snapshot as a
// no-op, per §8's round-trip invariant.
func (e *Engine) Cancel(executionID string) (*schema.WorkflowExecution, *schema.EngineError) {
	ctrl, err := e.lookup(executionID)
	if err != nil {
		return nil, err
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if isTerminal(ctrl.exec.Status) {
		return ctrl.exec, nil
	}
	ctrl.exec.Status = schema.ExecutionCancelled
	ctrl.cancel()
	return ctrl.exec, nil
}

// GetStatus returns a snapshot with no side effects.
func (e *Engine) GetStatus(executionID string) (*schema.WorkflowExecution, *schema.EngineError) {
	ctrl, err := e.lookup(executionID)
	if err != nil {
		return nil, err
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	snapshot := *ctrl.exec
	return &snapshot, nil
}

// ListActive returns snapshots of every in-flight execution.
func (e *Engine) ListActive() []*schema.WorkflowExecution {
	e.mu.Lock()
	ctrls := make([]*execControl, 0, len(e.active))
	for _, c := range e.active {
		ctrls = append(ctrls, c)
	}
	e.mu.Unlock()

	out := make([]*schema.WorkflowExecution, 0, len(ctrls))
	for _, c := range ctrls {
		c.mu.Lock()
		snapshot := *c.exec
		c.mu.Unlock()
		out = append(out, &snapshot)
	}
	return out
}

func (e *Engine) lookup(executionID string) (*execControl, *schema.EngineError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctrl, ok := e.active[executionID]
	if !ok {
		return nil, schema.NewEngineError(schema.ErrExecutionNotFound, fmt.Sprintf("execution %s not found", executionID))
	}
	return ctrl, nil
}

func isTerminal(s schema.ExecutionStatus) bool {
	switch s {
	case schema.ExecutionCompleted, schema.ExecutionFailed, schema.ExecutionCancelled, schema.ExecutionTimeout:
		return true
	default:
		return false
	}
}
