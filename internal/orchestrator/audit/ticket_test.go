package audit

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/pkg/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogger_EmitRoutesToSinks(t *testing.T) {
	sink := NewMemorySink()
	logger := NewLogger(DefaultConfig(), sink)

	q := 0.85
	step := schema.StepExecution{
		StepID:       "step1",
		Status:       schema.StepCompleted,
		StartTime:    time.Now().Add(-time.Second),
		EndTime:      time.Now(),
		Cost:         0.02,
		QualityScore: &q,
		Outputs:      map[string]interface{}{"summary": "hello", "confidence": 0.9},
	}
	exec := &schema.WorkflowExecution{ID: "exec-1", WorkflowID: "wf-1"}

	logger.Emit(step, "agent-a", "agent-b", exec)
	logger.Close()

	tickets := sink.All()
	require.Len(t, tickets, 1)
	ticket := tickets[0]
	assert.Equal(t, "agent-a -> agent-b", ticket.Transition())
	assert.Equal(t, "consume_previous_step_outputs", ticket.ExpectedOutcome)
	assert.Equal(t, 0.85, ticket.Confidence)
	assert.ElementsMatch(t, []string{"summary", "confidence"}, ticket.PayloadKeys)
	assert.Equal(t, "exec-1", ticket.Annotations["executionId"])
}

func TestLogger_EmitOnFailureUsesFailureOutcome(t *testing.T) {
	sink := NewMemorySink()
	logger := NewLogger(DefaultConfig(), sink)

	step := schema.StepExecution{StepID: "step1", Status: schema.StepFailed}
	exec := &schema.WorkflowExecution{ID: "exec-1", WorkflowID: "wf-1"}

	logger.Emit(step, "agent-a", "orchestrator", exec)
	logger.Close()

	tickets := sink.All()
	require.Len(t, tickets, 1)
	assert.Equal(t, "handle_step_failure", tickets[0].ExpectedOutcome)
	assert.Equal(t, "orchestrator", tickets[0].ToAgent)
}

func TestMemorySink_AllReturnsSnapshot(t *testing.T) {
	sink := NewMemorySink()
	sink.Write(schema.HandoffTicket{ID: "t1"})
	sink.Write(schema.HandoffTicket{ID: "t2"})

	snap := sink.All()
	require.Len(t, snap, 2)

	// mutating the returned slice must not affect the sink's internal state
	snap[0].ID = "mutated"
	assert.Equal(t, "t1", sink.All()[0].ID)
}

func TestLoggerSink_WriteDoesNotError(t *testing.T) {
	s := NewLoggerSink(testLogger())
	err := s.Write(schema.HandoffTicket{ID: "t1", PayloadKeys: []string{"a"}})
	assert.NoError(t, err)
}
