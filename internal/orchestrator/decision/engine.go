package decision

import (
	"fmt"
	"sync"
	"time"

	"github.com/arcflow/orchestrator/pkg/schema"
)

// maxHistoryPerExecution bounds the per-execution decision audit (§4.3:
// "bounded (≤ 50) per-execution decision history").
const maxHistoryPerExecution = 50

// Result is what ExecuteDecisionTree returns.
type Result struct {
	OutcomeID  string
	Outcome    schema.DecisionOutcome
	Actions    []string
	Confidence float64
	Reasoning  []string
	Variables  map[string]interface{}
}

// treeIndex is the lazily-built node lookup that makes per-hop traversal
// O(1) (§4.3).
type treeIndex struct {
	nodes map[string]schema.DecisionNode
}

func buildIndex(tree schema.DecisionTree) *treeIndex {
	idx := &treeIndex{nodes: make(map[string]schema.DecisionNode, len(tree.Nodes))}
	for id, n := range tree.Nodes {
		idx.nodes[id] = n
	}
	return idx
}

// Engine is the Decision Engine: tree traversal, variable resolution, and
// a bounded per-execution audit trail, with node lookup by index and
// confidence scoring over the resolved traversal path.
type Engine struct {
	mu      sync.Mutex
	actions *ActionRegistry
	history map[string][]auditEntry // executionId -> bounded history
	indexes map[string]*treeIndex   // treeId -> lazily built index
}

type auditEntry struct {
	at      time.Time
	outcome string
	result  Result
}

// NewEngine builds a Decision Engine dispatching actions through actions.
func NewEngine(actions *ActionRegistry) *Engine {
	if actions == nil {
		actions = NewActionRegistry()
	}
	return &Engine{
		actions: actions,
		history: make(map[string][]auditEntry),
		indexes: make(map[string]*treeIndex),
	}
}

// ExecuteDecisionTree traverses tree starting at its root node, resolving
// condition variables from ctx, and appends the outcome to the
// execution's bounded audit history.
func (e *Engine) ExecuteDecisionTree(tree schema.DecisionTree, ctx *Context, extra map[string]interface{}) (Result, error) {
	idx := e.indexFor(tree)

	vars := make(map[string]interface{}, len(tree.Variables))
	for _, v := range tree.Variables {
		vars[v.Name] = ctx.Resolve(v)
	}
	for k, v := range extra {
		vars[k] = v
	}

	var reasoning []string
	outcomeID, err := e.traverse(tree, idx, tree.RootNode, vars, &reasoning)
	if err != nil {
		return Result{}, err
	}

	outcome, ok := tree.Outcomes[outcomeID]
	if !ok {
		return Result{}, fmt.Errorf("invalid decision tree %s: no outcome for node %s", tree.ID, outcomeID)
	}

	confidence := computeConfidence(outcome, vars)
	result := Result{
		OutcomeID:  outcomeID,
		Outcome:    outcome,
		Actions:    outcome.Actions,
		Confidence: confidence,
		Reasoning:  reasoning,
		Variables:  vars,
	}

	if ctx.Execution != nil {
		e.record(ctx.Execution.ID, outcomeID, result)
	}
	return result, nil
}

func (e *Engine) indexFor(tree schema.DecisionTree) *treeIndex {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indexes[tree.ID]
	if !ok {
		idx = buildIndex(tree)
		e.indexes[tree.ID] = idx
	}
	return idx
}

func (e *Engine) traverse(tree schema.DecisionTree, idx *treeIndex, nodeID string, vars map[string]interface{}, reasoning *[]string) (string, error) {
	node, ok := idx.nodes[nodeID]
	if !ok {
		if _, isOutcome := tree.Outcomes[nodeID]; isOutcome {
			return nodeID, nil
		}
		return "", fmt.Errorf("invalid decision tree %s: missing node %s", tree.ID, nodeID)
	}

	switch node.Type {
	case schema.NodeLeaf:
		if _, ok := tree.Outcomes[node.ID]; !ok {
			return "", fmt.Errorf("invalid decision tree %s: leaf %s has no matching outcome", tree.ID, node.ID)
		}
		return node.ID, nil

	case schema.NodeCondition:
		expr, err := Parse(node.Condition)
		taken := false
		if err == nil {
			taken, err = expr.Eval(vars)
		}
		if err != nil {
			*reasoning = append(*reasoning, fmt.Sprintf("condition %q rejected by safety grammar: %v; treated as false", node.Condition, err))
			taken = false
		} else {
			*reasoning = append(*reasoning, fmt.Sprintf("condition %q evaluated to %v", node.Condition, taken))
		}

		next := node.FalseNode
		if taken {
			next = node.TrueNode
		}
		if next == "" {
			return "", fmt.Errorf("invalid decision tree %s: node %s missing child for outcome %v", tree.ID, node.ID, taken)
		}
		return e.traverse(tree, idx, next, vars, reasoning)

	case schema.NodeAction:
		if err := e.actions.Execute(node, vars); err != nil {
			*reasoning = append(*reasoning, fmt.Sprintf("action %s failed: %v", node.ActionType, err))
		} else {
			*reasoning = append(*reasoning, fmt.Sprintf("action %s executed", node.ActionType))
		}
		if node.TrueNode != "" {
			return e.traverse(tree, idx, node.TrueNode, vars, reasoning)
		}
		if tree.DefaultOutcome != "" {
			return tree.DefaultOutcome, nil
		}
		return "", fmt.Errorf("invalid decision tree %s: action node %s has no continuation and tree has no default outcome", tree.ID, node.ID)

	default:
		return "", fmt.Errorf("invalid decision tree %s: unknown node type %q", tree.ID, node.Type)
	}
}

// computeConfidence implements §4.3's scoring rule: a base of outcome.Probability
// (or 0.7 if unset), plus 0.1 per defined numeric/boolean variable and
// 0.05 per non-empty string variable, normalized by variable count,
// clamped to [0, 1].
func computeConfidence(outcome schema.DecisionOutcome, vars map[string]interface{}) float64 {
	base := outcome.Probability
	if base == 0 {
		base = 0.7
	}
	if len(vars) == 0 {
		return clamp01(base)
	}

	var evidence float64
	for _, v := range vars {
		switch t := v.(type) {
		case float64, int, int64, bool:
			evidence += 0.1
		case string:
			if t != "" {
				evidence += 0.05
			}
		}
	}
	normalized := evidence / float64(len(vars))
	return clamp01(base + 0.1*normalized)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (e *Engine) record(executionID, outcomeID string, result Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := append(e.history[executionID], auditEntry{at: time.Now(), outcome: outcomeID, result: result})
	if len(h) > maxHistoryPerExecution {
		h = h[len(h)-maxHistoryPerExecution:]
	}
	e.history[executionID] = h
}

// PatternAnalysis is the supplemental analyzeDecisionPatterns report.
type PatternAnalysis struct {
	SampleSize       int
	AverageConfidence float64
	CommonOutcomes   map[string]int
	Suggestions      []string
}

// AnalyzePatterns reports aggregate traversal behavior for executionID:
// sample size, average confidence, outcome frequency, and a recency-based
// downward-trend suggestion.
func (e *Engine) AnalyzePatterns(executionID string) PatternAnalysis {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := e.history[executionID]
	analysis := PatternAnalysis{SampleSize: len(h), CommonOutcomes: make(map[string]int)}
	if len(h) == 0 {
		return analysis
	}

	var sum float64
	for _, entry := range h {
		sum += entry.result.Confidence
		analysis.CommonOutcomes[entry.outcome]++
	}
	analysis.AverageConfidence = sum / float64(len(h))

	if len(h) >= 3 {
		recent := h[len(h)-3:]
		var recentSum float64
		for _, e := range recent {
			recentSum += e.result.Confidence
		}
		if recentSum/3 < analysis.AverageConfidence-0.1 {
			analysis.Suggestions = append(analysis.Suggestions, "confidence trending downward over the last 3 traversals; consider reviewing the tree's conditions")
		}
	}
	return analysis
}
