package decision

import (
	"testing"
	"time"

	"github.com/arcflow/orchestrator/pkg/schema"
)

func simpleTree() schema.DecisionTree {
	return schema.DecisionTree{
		ID:       "quality-gate",
		RootNode: "root",
		Nodes: map[string]schema.DecisionNode{
			"root": {ID: "root", Type: schema.NodeCondition, Condition: "qualityScore >= 0.8", TrueNode: "approve", FalseNode: "escalate"},
		},
		Variables: []schema.DecisionVariable{
			{Name: "qualityScore", Source: "execution.qualityScore", DefaultValue: 0.0},
		},
		Outcomes: map[string]schema.DecisionOutcome{
			"approve":  {ID: "approve", Label: "Approve", Actions: []string{"continue"}},
			"escalate": {ID: "escalate", Label: "Escalate for Review", Actions: []string{"escalate"}},
		},
	}
}

func execWithQuality(q float64) *schema.WorkflowExecution {
	return &schema.WorkflowExecution{
		ID:           "exec-1",
		StartTime:    time.Now().Add(-time.Minute),
		QualityScore: &q,
		Agents:       map[string]*schema.AgentExecution{},
	}
}

func TestEngine_TraverseToApprove(t *testing.T) {
	e := NewEngine(nil)
	ctx := NewContext(execWithQuality(0.9), time.Now(), false)

	res, err := e.ExecuteDecisionTree(simpleTree(), ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OutcomeID != "approve" {
		t.Errorf("expected approve, got %s", res.OutcomeID)
	}
}

func TestEngine_TraverseToEscalate(t *testing.T) {
	e := NewEngine(nil)
	ctx := NewContext(execWithQuality(0.3), time.Now(), false)

	res, err := e.ExecuteDecisionTree(simpleTree(), ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OutcomeID != "escalate" {
		t.Errorf("expected escalate, got %s", res.OutcomeID)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Errorf("confidence out of range: %f", res.Confidence)
	}
}

func TestEngine_MissingChildIsInvalidTree(t *testing.T) {
	e := NewEngine(nil)
	tree := schema.DecisionTree{
		ID:       "broken",
		RootNode: "root",
		Nodes: map[string]schema.DecisionNode{
			"root": {ID: "root", Type: schema.NodeCondition, Condition: "true"},
		},
		Outcomes: map[string]schema.DecisionOutcome{},
	}
	ctx := NewContext(execWithQuality(0.5), time.Now(), false)
	if _, err := e.ExecuteDecisionTree(tree, ctx, nil); err == nil {
		t.Error("expected InvalidDecisionTree error for missing child node")
	}
}

func TestEngine_LeafWithoutOutcomeIsInvalidTree(t *testing.T) {
	e := NewEngine(nil)
	tree := schema.DecisionTree{
		ID:       "broken-leaf",
		RootNode: "leaf1",
		Nodes: map[string]schema.DecisionNode{
			"leaf1": {ID: "leaf1", Type: schema.NodeLeaf},
		},
		Outcomes: map[string]schema.DecisionOutcome{},
	}
	ctx := NewContext(execWithQuality(0.5), time.Now(), false)
	if _, err := e.ExecuteDecisionTree(tree, ctx, nil); err == nil {
		t.Error("expected InvalidDecisionTree error for leaf with no matching outcome")
	}
}

func TestEngine_UnsafeConditionEvaluatesFalse(t *testing.T) {
	e := NewEngine(nil)
	tree := schema.DecisionTree{
		ID:       "unsafe",
		RootNode: "root",
		Nodes: map[string]schema.DecisionNode{
			"root": {ID: "root", Type: schema.NodeCondition, Condition: "os.Exit(1)", TrueNode: "bad", FalseNode: "safe"},
		},
		Outcomes: map[string]schema.DecisionOutcome{
			"bad":  {ID: "bad", Label: "should never be reached"},
			"safe": {ID: "safe", Label: "safe fallback"},
		},
	}
	ctx := NewContext(execWithQuality(0.5), time.Now(), false)
	res, err := e.ExecuteDecisionTree(tree, ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OutcomeID != "safe" {
		t.Errorf("expected unparseable condition to fall through to false branch, got %s", res.OutcomeID)
	}
}

func TestEngine_ActionNodeContinuesToChild(t *testing.T) {
	e := NewEngine(NewActionRegistry())
	tree := schema.DecisionTree{
		ID:       "with-action",
		RootNode: "act",
		Nodes: map[string]schema.DecisionNode{
			"act":  {ID: "act", Type: schema.NodeAction, ActionType: "send_notification", TrueNode: "done"},
			"done": {ID: "done", Type: schema.NodeLeaf},
		},
		Outcomes: map[string]schema.DecisionOutcome{
			"done": {ID: "done", Label: "Done"},
		},
	}
	ctx := NewContext(execWithQuality(0.5), time.Now(), false)
	res, err := e.ExecuteDecisionTree(tree, ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OutcomeID != "done" {
		t.Errorf("expected done, got %s", res.OutcomeID)
	}
}

func TestEngine_AnalyzePatternsReportsAverageConfidence(t *testing.T) {
	e := NewEngine(nil)
	ctx := NewContext(execWithQuality(0.9), time.Now(), false)
	for i := 0; i < 5; i++ {
		if _, err := e.ExecuteDecisionTree(simpleTree(), ctx, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	analysis := e.AnalyzePatterns("exec-1")
	if analysis.SampleSize != 5 {
		t.Errorf("expected sample size 5, got %d", analysis.SampleSize)
	}
	if analysis.CommonOutcomes["approve"] != 5 {
		t.Errorf("expected 5 approve outcomes, got %d", analysis.CommonOutcomes["approve"])
	}
}

func TestEngine_HistoryIsBounded(t *testing.T) {
	e := NewEngine(nil)
	ctx := NewContext(execWithQuality(0.9), time.Now(), false)
	for i := 0; i < maxHistoryPerExecution+10; i++ {
		if _, err := e.ExecuteDecisionTree(simpleTree(), ctx, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(e.history["exec-1"]) != maxHistoryPerExecution {
		t.Errorf("expected history bounded to %d, got %d", maxHistoryPerExecution, len(e.history["exec-1"]))
	}
}

func TestParse_RestrictedGrammar(t *testing.T) {
	tests := []struct {
		expr    string
		vars    map[string]interface{}
		want    bool
		wantErr bool
	}{
		{expr: "a == 1", vars: map[string]interface{}{"a": 1.0}, want: true},
		{expr: "a != 1", vars: map[string]interface{}{"a": 1.0}, want: false},
		{expr: "a >= 0.5 and b < 10", vars: map[string]interface{}{"a": 0.8, "b": 5.0}, want: true},
		{expr: "not (a == 1)", vars: map[string]interface{}{"a": 1.0}, want: false},
		{expr: "a == 1 or b == 2", vars: map[string]interface{}{"a": 0.0, "b": 2.0}, want: true},
		{expr: "status == \"completed\"", vars: map[string]interface{}{"status": "completed"}, want: true},
		{expr: "a === 1", vars: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := Parse(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected parse error for %q", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected parse error: %v", err)
			}
			got, err := expr.Eval(tt.vars)
			if err != nil {
				t.Fatalf("unexpected eval error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expr %q: expected %v, got %v", tt.expr, tt.want, got)
			}
		})
	}
}

func TestEscalationPolicy_DetermineTarget(t *testing.T) {
	p := NewEscalationPolicy()
	p.AddPath("content-writer", []string{"senior-reviewer"})
	p.AddFallback("content-writer", []string{"coordinator"})

	if got := p.DetermineTarget("content-writer"); got != "senior-reviewer" {
		t.Errorf("expected senior-reviewer, got %s", got)
	}
	if got := p.DetermineTarget("unknown-agent"); got != "" {
		t.Errorf("expected no target for unconfigured agent, got %s", got)
	}

	if !p.AllowEscalation("content-writer", "senior-reviewer") {
		t.Error("expected configured path to be allowed")
	}
	if p.AllowEscalation("content-writer", "content-writer") {
		t.Error("self-escalation must never be allowed")
	}
}
