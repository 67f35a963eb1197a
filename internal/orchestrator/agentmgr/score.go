package agentmgr

import (
	"sort"
	"strings"

	"github.com/arcflow/orchestrator/pkg/schema"
)

// GetOptimalAgent scores every available, capable agent and returns the
// highest-scoring id. Ties break by stable (lexicographic) id ordering.
func (m *Manager) GetOptimalAgent(stepType schema.StepType) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type candidate struct {
		id    string
		score float64
	}
	var candidates []candidate
	for id, a := range m.agents {
		if a.status == StatusMaintenance || a.status == StatusError {
			continue
		}
		if len(a.currentExecutions) >= maxConcurrentExecutions(a.def.Type) {
			continue
		}
		if !canHandle(a.def, stepType) {
			continue
		}
		load := float64(len(a.currentExecutions))
		score := 0.4*a.metrics.qualityScore +
			0.3*a.metrics.costEfficiency +
			0.2*(1-load/5) +
			0.1*a.metrics.successRate
		candidates = append(candidates, candidate{id: id, score: score})
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return strings.Compare(candidates[i].id, candidates[j].id) < 0
	})
	return candidates[0].id, true
}

// dotPath descends a dotted path ("a.b.c") into a nested
// map[string]interface{}/[]interface{} value.
func dotPath(v interface{}, path string) (interface{}, bool) {
	cur := v
	for _, part := range strings.Split(path, ".") {
		switch t := cur.(type) {
		case map[string]interface{}:
			next, ok := t[part]
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	return cur, true
}
