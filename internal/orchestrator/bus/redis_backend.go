package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisQueueBackend is an optional distributed alternative to the
// default in-process agentQueue: each priority lane is a Redis list, so
// multiple orchestrator processes could in principle share one bus.
// Distributed coordination is out of scope for the default engine, so
// this backend is never required, only available.
type RedisQueueBackend struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisQueueBackend builds a backend against an already-configured
// go-redis client. keyPrefix namespaces keys ("orchestrator:bus:" by
// default) so the bus can share a Redis instance with other consumers.
func NewRedisQueueBackend(client *redis.Client, keyPrefix string) *RedisQueueBackend {
	if keyPrefix == "" {
		keyPrefix = "orchestrator:bus:"
	}
	return &RedisQueueBackend{client: client, keyPrefix: keyPrefix}
}

func (b *RedisQueueBackend) laneKey(agentID string, p Priority) string {
	return fmt.Sprintf("%s%s:%d", b.keyPrefix, agentID, p)
}

// Push appends m to the tail of its priority lane for m.To, trimming the
// head of the lowest occupied lane when the combined length exceeds
// capacity (mirrors agentQueue's drop-oldest policy).
func (b *RedisQueueBackend) Push(ctx context.Context, m Message, capacity int) error {
	encoded, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := b.laneKey(m.To, m.Priority)
	if err := b.client.RPush(ctx, key, encoded).Err(); err != nil {
		return err
	}
	if capacity <= 0 {
		return nil
	}
	total := int64(0)
	for p := PriorityLow; p <= PriorityUrgent; p++ {
		n, err := b.client.LLen(ctx, b.laneKey(m.To, p)).Result()
		if err == nil {
			total += n
		}
	}
	if total > int64(capacity) {
		for p := PriorityLow; p <= PriorityUrgent; p++ {
			k := b.laneKey(m.To, p)
			if n, _ := b.client.LLen(ctx, k).Result(); n > 0 {
				b.client.LPop(ctx, k)
				break
			}
		}
	}
	return nil
}

// Pop removes and returns the oldest message from the highest-priority
// non-empty lane for agentID.
func (b *RedisQueueBackend) Pop(ctx context.Context, agentID string) (Message, bool, error) {
	for p := PriorityUrgent; p >= PriorityLow; p-- {
		raw, err := b.client.LPop(ctx, b.laneKey(agentID, p)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return Message{}, false, err
		}
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return Message{}, false, err
		}
		return m, true, nil
	}
	return Message{}, false, nil
}
