package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/internal/clock"
)

func TestBus_SendAndDeliver(t *testing.T) {
	b := New(Config{QueueCapacity: 10, ProcessingRate: 100, MaxDeliveryTries: 1}, clock.New())

	var mu sync.Mutex
	var received []Message
	delivered := make(chan struct{}, 1)
	b.RegisterHandler("agent-1", func(ctx context.Context, m Message) error {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
		delivered <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	ok := b.Send(Message{From: "agent-0", To: "agent-1", Type: TypeRequest, Payload: map[string]interface{}{"hello": "world"}})
	require.True(t, ok)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "agent-0", received[0].From)
	assert.NotEmpty(t, received[0].ID)
}

func TestBus_PriorityOrderingWithinQueue(t *testing.T) {
	q := newAgentQueue(10)
	q.push(Message{ID: "low", Priority: PriorityLow})
	q.push(Message{ID: "urgent", Priority: PriorityUrgent})
	q.push(Message{ID: "normal", Priority: PriorityNormal})

	first, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "urgent", first.ID)

	second, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "normal", second.ID)

	third, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "low", third.ID)
}

func TestBus_DefaultPriorityByMessageType(t *testing.T) {
	assert.Equal(t, PriorityHigh, defaultPriority(TypeCoordination))
	assert.Equal(t, PriorityNormal, defaultPriority(TypeRequest))
	assert.Equal(t, PriorityNormal, defaultPriority(TypeResponse))
	assert.Equal(t, PriorityLow, defaultPriority(TypeNotification))
}

func TestAgentQueue_DropsOldestOnOverflow(t *testing.T) {
	q := newAgentQueue(2)
	q.push(Message{ID: "first", Priority: PriorityNormal})
	q.push(Message{ID: "second", Priority: PriorityNormal})
	dropped := q.push(Message{ID: "third", Priority: PriorityNormal})

	require.NotNil(t, dropped)
	assert.Equal(t, "first", dropped.ID)
	assert.Equal(t, 2, q.size())
}

func TestBus_Broadcast(t *testing.T) {
	b := New(DefaultConfig(), clock.New())
	b.Broadcast(Message{Type: TypeNotification, Payload: map[string]interface{}{"k": "v"}}, []string{"a1", "a2", "a3"})

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Len(t, b.queues, 3)
	for _, id := range []string{"a1", "a2", "a3"} {
		assert.Equal(t, 1, b.queues[id].size())
	}
}

func TestContentFilter_BlocksOnSubstringMatch(t *testing.T) {
	f := ContentFilter{Blocked: []string{"secret"}}
	_, ok := f.Apply(Message{Payload: map[string]interface{}{"body": "this has a secret in it"}})
	assert.False(t, ok)

	_, ok = f.Apply(Message{Payload: map[string]interface{}{"body": "nothing sensitive"}})
	assert.True(t, ok)
}

func TestSizeFilter_RejectsOversized(t *testing.T) {
	f := SizeFilter{MaxBytes: 5}
	_, ok := f.Apply(Message{Payload: map[string]interface{}{"body": "way too long a value"}})
	assert.False(t, ok)
}

func TestFrequencyFilter_RateLimitsPerSender(t *testing.T) {
	f := NewFrequencyFilter(2)
	m := Message{From: "agent-1"}
	_, ok1 := f.Apply(m)
	_, ok2 := f.Apply(m)
	_, ok3 := f.Apply(m)
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3)
}

func TestSecurityFilter_RedactsPatterns(t *testing.T) {
	f := SecurityFilter{}
	out, ok := f.Apply(Message{Payload: map[string]interface{}{
		"cc":    "4111 1111 1111 1111",
		"email": "user@example.com",
		"ssn":   "123-45-6789",
	}})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", out.Payload["cc"])
	assert.Equal(t, "[REDACTED]", out.Payload["email"])
	assert.Equal(t, "[REDACTED]", out.Payload["ssn"])
}
