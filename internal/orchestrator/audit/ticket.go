// Package audit emits HandoffTickets to a pluggable sink over a buffered
// channel drained by a background goroutine, in the stable HandoffTicket
// wire format described in §6.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcflow/orchestrator/pkg/schema"
)

// Sink is where HandoffTickets ultimately land. The reference
// implementations below (logger sink, in-memory sink) satisfy
// §6's "the core itself persists nothing; it relies on an injected
// executor."
type Sink interface {
	Write(t schema.HandoffTicket) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(t schema.HandoffTicket) error

func (f SinkFunc) Write(t schema.HandoffTicket) error { return f(t) }

// Config controls the buffered writer.
type Config struct {
	BufferSize int
}

// DefaultConfig returns the buffered-writer defaults for a per-execution
// ticket stream.
func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

// Logger buffers HandoffTickets on a channel and fans them out to every
// configured Sink from a background goroutine.
type Logger struct {
	cfg    Config
	sinks  []Sink
	buffer chan schema.HandoffTicket
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewLogger starts the background flush goroutine immediately.
func NewLogger(cfg Config, sinks ...Sink) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	l := &Logger{
		cfg:    cfg,
		sinks:  sinks,
		buffer: make(chan schema.HandoffTicket, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.process()
	return l
}

func (l *Logger) process() {
	defer l.wg.Done()
	for {
		select {
		case t, ok := <-l.buffer:
			if !ok {
				return
			}
			for _, s := range l.sinks {
				_ = s.Write(t)
			}
		case <-l.done:
			// drain remaining buffered tickets before exiting
			for {
				select {
				case t := <-l.buffer:
					for _, s := range l.sinks {
						_ = s.Write(t)
					}
				default:
					return
				}
			}
		}
	}
}

// Close stops accepting new tickets, flushes the buffer, and waits for
// the background goroutine to exit.
func (l *Logger) Close() {
	close(l.done)
	l.wg.Wait()
}

// Emit builds and enqueues a HandoffTicket for a step transition. A full
// buffer drops the ticket non-blocking — HandoffTickets are an
// observability aid, never load-bearing for correctness.
func (l *Logger) Emit(step schema.StepExecution, fromAgent, toAgent string, execution *schema.WorkflowExecution) {
	expected := "consume_previous_step_outputs"
	if step.Status != schema.StepCompleted {
		expected = "handle_step_failure"
	}

	confidence := 0.0
	if step.QualityScore != nil {
		confidence = *step.QualityScore
	}

	slaMs := int64(0)
	if !step.StartTime.IsZero() && !step.EndTime.IsZero() {
		slaMs = step.EndTime.Sub(step.StartTime).Milliseconds()
	}

	keys := make([]string, 0, len(step.Outputs))
	for k := range step.Outputs {
		keys = append(keys, k)
	}

	ticket := schema.HandoffTicket{
		ID:              uuid.NewString(),
		FromAgent:       fromAgent,
		ToAgent:         toAgent,
		Reason:          string(step.Status),
		ExpectedOutcome: expected,
		SLAMs:           slaMs,
		Confidence:      confidence,
		Status:          string(step.Status),
		CreatedAt:       time.Now(),
		Annotations: map[string]interface{}{
			"executionId": execution.ID,
			"workflowId":  execution.WorkflowID,
			"stepId":      step.StepID,
			"durationMs":  slaMs,
			"cost":        step.Cost,
		},
		PayloadKeys: keys,
	}

	select {
	case l.buffer <- ticket:
	default:
	}
}
