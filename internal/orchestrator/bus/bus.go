package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcflow/orchestrator/internal/clock"
	"github.com/google/uuid"
)

// Handler receives a delivered message. A non-nil error triggers the
// retry-with-backoff delivery policy in §4.4.
type Handler func(ctx context.Context, m Message) error

// Config controls queue capacity and processing rate.
type Config struct {
	QueueCapacity   int
	ProcessingRate  int // messages drained per second per queue
	MaxDeliveryTries int
}

// DefaultConfig returns the bus's documented defaults (§4.4).
func DefaultConfig() Config {
	return Config{QueueCapacity: 1000, ProcessingRate: 10, MaxDeliveryTries: 3}
}

// Bus routes messages between agents through per-agent priority queues.
type Bus struct {
	cfg      Config
	clock    clock.Clock
	filters  []Filter
	mu       sync.Mutex
	queues   map[string]*agentQueue
	handlers map[string]Handler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New builds a Bus. Call Start to begin draining queues in the
// background and Stop to shut down cleanly.
func New(cfg Config, c clock.Clock, filters ...Filter) *Bus {
	if c == nil {
		c = clock.New()
	}
	return &Bus{
		cfg:      cfg,
		clock:    c,
		filters:  filters,
		queues:   make(map[string]*agentQueue),
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler binds a delivery handler for agentID's queue.
func (b *Bus) RegisterHandler(agentID string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[agentID] = h
	if _, ok := b.queues[agentID]; !ok {
		b.queues[agentID] = newAgentQueue(b.cfg.QueueCapacity)
	}
}

// Send enqueues a message for delivery to m.To, applying filters in
// order. A message rejected by a filter is dropped silently (logged by
// the caller via the returned ok=false).
func (b *Bus) Send(m Message) (ok bool) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = b.clock.Now()
	}
	if m.Priority == 0 && m.Type != "" {
		m.Priority = defaultPriority(m.Type)
	}

	for _, f := range b.filters {
		var passed bool
		m, passed = f.Apply(m)
		if !passed {
			return false
		}
	}

	b.mu.Lock()
	q, ok := b.queues[m.To]
	if !ok {
		q = newAgentQueue(b.cfg.QueueCapacity)
		b.queues[m.To] = q
	}
	b.mu.Unlock()

	q.push(m)
	return true
}

// Broadcast fans m out to every recipient with a fresh id per copy. Order
// of delivery between recipients is not guaranteed.
func (b *Bus) Broadcast(m Message, agents []string) {
	for _, agentID := range agents {
		copy := m
		copy.ID = uuid.NewString()
		copy.To = agentID
		b.Send(copy)
	}
}

// Start launches one background drain loop per registered queue.
func (b *Bus) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.mu.Lock()
	agentIDs := make([]string, 0, len(b.queues))
	for id := range b.queues {
		agentIDs = append(agentIDs, id)
	}
	b.mu.Unlock()

	for _, id := range agentIDs {
		b.wg.Add(1)
		go b.drainLoop(ctx, id)
	}
}

// Stop cancels all drain loops and waits for them to exit.
func (b *Bus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

func (b *Bus) drainLoop(ctx context.Context, agentID string) {
	defer b.wg.Done()

	rate := b.cfg.ProcessingRate
	if rate <= 0 {
		rate = 10
	}
	interval := time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			q := b.queues[agentID]
			h := b.handlers[agentID]
			b.mu.Unlock()
			if q == nil || h == nil {
				continue
			}
			m, ok := q.pop()
			if !ok {
				continue
			}
			b.deliver(ctx, h, m)
		}
	}
}

// deliver invokes h with up to MaxDeliveryTries attempts, waiting
// 5s*retryCount between attempts per §4.4.
func (b *Bus) deliver(ctx context.Context, h Handler, m Message) {
	tries := b.cfg.MaxDeliveryTries
	if tries <= 0 {
		tries = 3
	}
	var err error
	for attempt := 1; attempt <= tries; attempt++ {
		if err = h(ctx, m); err == nil {
			return
		}
		if attempt < tries {
			select {
			case <-ctx.Done():
				return
			case <-b.clock.After(5 * time.Second * time.Duration(attempt)):
			}
		}
	}
	_ = fmt.Errorf("message %s to %s failed after %d attempts: %w", m.ID, m.To, tries, err)
}
