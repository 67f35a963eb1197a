package agentmgr

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arcflow/orchestrator/internal/clock"
)

// cachedStepResult is one retained entry: the StepResult the executor
// produced the last time this step ran with this input set, plus enough
// bookkeeping to expire and report on it.
type cachedStepResult struct {
	result      StepResult
	cachedAt    time.Time
	ttl         time.Duration
	accessCount int
}

// CacheStats summarizes StepResultCache activity, in the spirit of the
// hit-rate reporting the rest of the orchestration core surfaces for its
// EMA metrics and decision-pattern analysis.
type CacheStats struct {
	HitCount  int64
	MissCount int64
	Size      int
}

// HitRate returns hits / (hits+misses), or 0 when nothing has been
// looked up yet.
func (s CacheStats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// StepResultCache is a TTL'd, per-(step type, agent, input) advisory
// cache the Agent Manager may consult before re-running an idempotent
// step during a resumed execution. It is purely an optimization:
// ExecuteStep's correctness never depends on a hit, and a cache miss
// always falls through to the real StepExecutor.
type StepResultCache struct {
	mu        sync.RWMutex
	entries   map[string]*cachedStepResult
	maxSize   int
	ttl       time.Duration
	clock     clock.Clock
	hitCount  int64
	missCount int64
}

// NewStepResultCache builds a cache bounded to maxSize entries, each
// valid for ttl after it was written. A non-positive maxSize or ttl
// disables caching: Get always misses and Put is a no-op, so callers
// can wire a StepResultCache unconditionally and control it purely via
// configuration.
func NewStepResultCache(maxSize int, ttl time.Duration, c clock.Clock) *StepResultCache {
	if c == nil {
		c = clock.New()
	}
	return &StepResultCache{
		entries: make(map[string]*cachedStepResult),
		maxSize: maxSize,
		ttl:     ttl,
		clock:   c,
	}
}

// Key derives a stable cache key from the step type, the agent about to
// run it, and its resolved inputs. Two calls with structurally equal
// inputs (same keys, same values once JSON-encoded) collide on the same
// key regardless of map iteration order, mirroring the teacher cache's
// md5-over-canonical-JSON approach.
func (c *StepResultCache) Key(stepType, agentID string, inputs map[string]interface{}) string {
	encoded, err := json.Marshal(inputs)
	if err != nil {
		// Unencodable inputs never hit the cache; each call gets its own key.
		encoded = []byte(fmt.Sprintf("%p", inputs))
	}
	sum := md5.Sum(append([]byte(stepType+"|"+agentID+"|"), encoded...))
	return fmt.Sprintf("%x", sum)
}

// Get reports a live cache hit for key, bumping its access count and the
// cache's hit/miss counters.
func (c *StepResultCache) Get(key string) (StepResult, bool) {
	if c.maxSize <= 0 || c.ttl <= 0 {
		return StepResult{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.missCount++
		return StepResult{}, false
	}
	if c.clock.Now().Sub(entry.cachedAt) > entry.ttl {
		delete(c.entries, key)
		c.missCount++
		return StepResult{}, false
	}
	entry.accessCount++
	c.hitCount++
	return entry.result, true
}

// Put records result under key, evicting the oldest entry first when at
// capacity (a simple FIFO-by-insertion eviction rather than true LRU,
// adequate for an advisory cache with a short TTL).
func (c *StepResultCache) Put(key string, result StepResult) {
	if c.maxSize <= 0 || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = &cachedStepResult{result: result, cachedAt: c.clock.Now(), ttl: c.ttl}
}

func (c *StepResultCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.cachedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.cachedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Invalidate drops every entry, used when an agent's definition changes
// in a way that could make cached results stale.
func (c *StepResultCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cachedStepResult)
}

// Stats returns a snapshot of hit/miss counters and current size.
func (c *StepResultCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{HitCount: c.hitCount, MissCount: c.missCount, Size: len(c.entries)}
}
