package decision

import (
	"sync"

	"github.com/arcflow/orchestrator/pkg/schema"
)

// EscalationPolicy is an allowed-path graph plus a fallback list, keyed
// by agent id. It backs the decision engine's "escalate" action
// executor (§4.3).
type EscalationPolicy struct {
	mu        sync.RWMutex
	paths     map[string][]string
	fallbacks map[string][]string
	maxDepth  int
}

// NewEscalationPolicy returns an empty policy with no configured paths.
// Callers add paths/fallbacks for their own agent ids with AddPath and
// AddFallback.
func NewEscalationPolicy() *EscalationPolicy {
	return &EscalationPolicy{
		paths:     make(map[string][]string),
		fallbacks: make(map[string][]string),
		maxDepth:  3,
	}
}

// AddPath registers the agents source is allowed to escalate to.
func (p *EscalationPolicy) AddPath(source string, targets []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths[source] = targets
}

// AddFallback registers agent's fallback chain. DetermineTarget consults
// it only when agent has no configured path; target availability is not
// checked.
func (p *EscalationPolicy) AddFallback(agent string, fallbacks []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallbacks[agent] = fallbacks
}

// SetMaxDepth sets the depth bound reported by MaxDepth. DetermineTarget
// resolves a single hop and does not consult it.
func (p *EscalationPolicy) SetMaxDepth(depth int) {
	if depth > 0 {
		p.mu.Lock()
		p.maxDepth = depth
		p.mu.Unlock()
	}
}

// AllowEscalation reports whether source may escalate directly to target.
func (p *EscalationPolicy) AllowEscalation(source, target string) bool {
	if source == target {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, allowed := range p.paths[source] {
		if allowed == target {
			return true
		}
	}
	return false
}

// DetermineTarget picks the first configured escalation target for
// source, or its first fallback if it has no direct path. Empty string
// means source has nowhere to escalate.
func (p *EscalationPolicy) DetermineTarget(source string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if targets := p.paths[source]; len(targets) > 0 {
		return targets[0]
	}
	if fallbacks := p.fallbacks[source]; len(fallbacks) > 0 {
		return fallbacks[0]
	}
	return ""
}

// GetFallbacks returns agent's configured fallback chain.
func (p *EscalationPolicy) GetFallbacks(agent string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.fallbacks[agent]...)
}

// MaxDepth returns the configured escalation depth bound.
func (p *EscalationPolicy) MaxDepth() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxDepth
}

// RegisterEscalateAction binds an "escalate" executor to registry that
// consults policy: it resolves vars["sourceAgent"], determines a target
// via policy, and records it at vars["escalationTarget"]. A source with
// neither a configured path nor a fallback is a no-op, matching the
// registry's unknown-action tolerance.
func RegisterEscalateAction(registry *ActionRegistry, policy *EscalationPolicy) {
	registry.Register("escalate", func(node schema.DecisionNode, vars map[string]interface{}) error {
		source, _ := vars["sourceAgent"].(string)
		if source == "" {
			return nil
		}
		target := policy.DetermineTarget(source)
		if target == "" {
			return nil
		}
		vars["escalationTarget"] = target
		return nil
	})
}
