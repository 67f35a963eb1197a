// Package agentmgr implements the Agent Manager: a registry of stateful
// agents with capability matching, per-type concurrency caps, weighted
// load balancing, per-execution memory partitions, and EMA performance
// tracking.
package agentmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcflow/orchestrator/internal/clock"
	"github.com/arcflow/orchestrator/pkg/schema"
)

// Status is an agent's coarse availability state.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusBusy        Status = "busy"
	StatusMaintenance Status = "maintenance"
	StatusError       Status = "error"
)

// StepExecutor is the pluggable (step, inputs) -> (outputs, cost, quality)
// collaborator the Agent Manager invokes. This is the "think" step the
// core deliberately treats as an external dependency.
type StepExecutor interface {
	Execute(ctx context.Context, agent schema.AgentDefinition, step schema.WorkflowStep, inputs map[string]interface{}) (outputs map[string]interface{}, cost float64, qualityScore float64, err error)
}

// StepResult is what executeStep returns to the orchestrator.
type StepResult struct {
	Outputs          map[string]interface{}
	Cost             float64
	QualityScore     float64
	ProcessingTime   time.Duration
	MemoryUpdates    []string
	CommunicationLog []string
}

type registeredAgent struct {
	def               schema.AgentDefinition
	status            Status
	currentExecutions map[string]struct{} // execution id -> rental marker
	memory            map[string]map[string]interface{} // "execution:<id>" -> key -> value
	metrics           performanceMetrics
}

// Manager is the Agent Manager: registry, load balancer, and dispatcher.
type Manager struct {
	mu       sync.RWMutex
	agents   map[string]*registeredAgent
	executor StepExecutor
	clock    clock.Clock
	cache    *StepResultCache
}

// New builds an Agent Manager dispatching step execution through executor.
func New(executor StepExecutor, c clock.Clock) *Manager {
	if c == nil {
		c = clock.New()
	}
	return &Manager{
		agents:   make(map[string]*registeredAgent),
		executor: executor,
		clock:    c,
		cache:    NewStepResultCache(0, 0, c), // disabled by default; see WithResultCache
	}
}

// WithResultCache attaches an advisory StepResultCache; ExecuteStep
// consults it before dispatching to the real StepExecutor and populates
// it after a successful run. Passing nil disables caching again.
func (m *Manager) WithResultCache(cache *StepResultCache) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cache == nil {
		cache = NewStepResultCache(0, 0, m.clock)
	}
	m.cache = cache
	return m
}

// CacheStats reports the attached StepResultCache's hit/miss counters.
func (m *Manager) CacheStats() CacheStats {
	m.mu.RLock()
	c := m.cache
	m.mu.RUnlock()
	return c.Stats()
}

// Register adds or replaces an agent definition. Idempotent by id.
func (m *Manager) Register(def schema.AgentDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.agents[def.ID]
	if ok {
		existing.def = def
		return
	}
	m.agents[def.ID] = &registeredAgent{
		def:               def,
		status:            StatusIdle,
		currentExecutions: make(map[string]struct{}),
		memory:            make(map[string]map[string]interface{}),
		metrics:           newPerformanceMetrics(),
	}
}

// IsAvailable reports whether the agent exists, is idle/busy, and has a
// free concurrency slot.
func (m *Manager) IsAvailable(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[agentID]
	if !ok {
		return false
	}
	if a.status != StatusIdle && a.status != StatusBusy {
		return false
	}
	return len(a.currentExecutions) < maxConcurrentExecutions(a.def.Type)
}

// Initialize reserves a slot for executionID and allocates its memory
// partition. Fails with AgentNotAvailable when in maintenance/error or at
// capacity.
func (m *Manager) Initialize(def schema.AgentDefinition, executionID string) *schema.EngineError {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[def.ID]
	if !ok {
		m.agents[def.ID] = &registeredAgent{
			def:               def,
			status:            StatusIdle,
			currentExecutions: make(map[string]struct{}),
			memory:            make(map[string]map[string]interface{}),
			metrics:           newPerformanceMetrics(),
		}
		a = m.agents[def.ID]
	}

	if a.status == StatusMaintenance || a.status == StatusError {
		return schema.NewEngineError(schema.ErrAgentNotAvailable, fmt.Sprintf("agent %s is %s", def.ID, a.status))
	}
	if len(a.currentExecutions) >= maxConcurrentExecutions(a.def.Type) {
		return schema.NewRecoverableError(schema.ErrAgentNotAvailable, fmt.Sprintf("agent %s at capacity", def.ID))
	}

	a.currentExecutions[executionID] = struct{}{}
	a.memory[partitionKey(executionID)] = make(map[string]interface{})
	a.status = StatusBusy
	return nil
}

// Release removes the execution's rental and memory partition. Idempotent.
func (m *Manager) Release(agentID, executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return
	}
	delete(a.currentExecutions, executionID)
	delete(a.memory, partitionKey(executionID))
	if len(a.currentExecutions) == 0 && a.status != StatusError && a.status != StatusMaintenance {
		a.status = StatusIdle
	}
}

// ExecuteStep dispatches a step to agentID via the configured StepExecutor
// and folds the result into the agent's EMA metrics.
func (m *Manager) ExecuteStep(ctx context.Context, agentID string, step schema.WorkflowStep, inputs map[string]interface{}, executionID string) (StepResult, *schema.EngineError) {
	m.mu.RLock()
	a, ok := m.agents[agentID]
	m.mu.RUnlock()
	if !ok {
		return StepResult{}, schema.NewEngineError(schema.ErrAgentNotAvailable, fmt.Sprintf("agent %s not registered", agentID))
	}
	if !canHandle(a.def, step.Type) {
		return StepResult{}, schema.NewEngineError(schema.ErrCapabilityMismatch, fmt.Sprintf("agent %s cannot handle step type %s", agentID, step.Type))
	}

	m.mu.RLock()
	cache := m.cache
	m.mu.RUnlock()
	cacheKey := cache.Key(string(step.Type), agentID, inputs)
	if cached, ok := cache.Get(cacheKey); ok {
		return cached, nil
	}

	start := m.clock.Now()
	outputs, cost, quality, err := m.executor.Execute(ctx, a.def, step, inputs)
	elapsed := m.clock.Now().Sub(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		a.metrics.record(float64(elapsed.Milliseconds()), 0, cost)
		if a.metrics.successRate < 0.5 {
			a.status = StatusError
		}
		return StepResult{ProcessingTime: elapsed}, schema.NewRecoverableError(schema.ErrTransient, err.Error())
	}

	a.metrics.record(float64(elapsed.Milliseconds()), quality, cost)
	if a.metrics.successRate < 0.5 {
		a.status = StatusError
	}

	if part, ok := a.memory[partitionKey(executionID)]; ok {
		for k, v := range outputs {
			part[k] = v
		}
	}

	fresh := StepResult{
		Outputs:        outputs,
		Cost:           cost,
		QualityScore:   quality,
		ProcessingTime: elapsed,
	}
	cache.Put(cacheKey, fresh)
	return fresh, nil
}

// UpdateMemory replaces a key's value in an execution's memory partition.
func (m *Manager) UpdateMemory(agentID, key string, data interface{}, executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return
	}
	part, ok := a.memory[partitionKey(executionID)]
	if !ok {
		part = make(map[string]interface{})
		a.memory[partitionKey(executionID)] = part
	}
	part[key] = data
}

func partitionKey(executionID string) string {
	return "execution:" + executionID
}

// GetMemoryValue reads a key (optionally at a dot path) from agentID's
// memory partition for executionID. Used by the orchestrator's
// agent_memory input resolver.
func (m *Manager) GetMemoryValue(agentID, executionID, key, path string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[agentID]
	if !ok {
		return nil, false
	}
	part, ok := a.memory[partitionKey(executionID)]
	if !ok {
		return nil, false
	}
	v, ok := part[key]
	if !ok {
		return nil, false
	}
	if path == "" {
		return v, true
	}
	return dotPath(v, path)
}
