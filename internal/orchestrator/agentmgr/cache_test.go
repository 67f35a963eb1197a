package agentmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/internal/clock"
)

func TestStepResultCache_MissThenHit(t *testing.T) {
	c := NewStepResultCache(10, time.Minute, clock.New())
	key := c.Key("analysis", "agent1", map[string]interface{}{"x": 1})

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, StepResult{QualityScore: 0.8})
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, 0.8, got.QualityScore)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.Equal(t, 0.5, stats.HitRate())
}

func TestStepResultCache_KeyIgnoresMapOrdering(t *testing.T) {
	c := NewStepResultCache(10, time.Minute, clock.New())
	k1 := c.Key("analysis", "agent1", map[string]interface{}{"a": 1, "b": 2})
	k2 := c.Key("analysis", "agent1", map[string]interface{}{"b": 2, "a": 1})
	assert.Equal(t, k1, k2)
}

func TestStepResultCache_KeyDiffersByStepOrAgent(t *testing.T) {
	c := NewStepResultCache(10, time.Minute, clock.New())
	base := map[string]interface{}{"a": 1}
	assert.NotEqual(t, c.Key("analysis", "agent1", base), c.Key("generation", "agent1", base))
	assert.NotEqual(t, c.Key("analysis", "agent1", base), c.Key("analysis", "agent2", base))
}

func TestStepResultCache_ExpiresAfterTTL(t *testing.T) {
	fake := clock.NewFake(time.Now())
	c := NewStepResultCache(10, time.Second, fake)
	key := c.Key("analysis", "agent1", nil)
	c.Put(key, StepResult{QualityScore: 0.5})

	fake.Advance(2 * time.Second)
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestStepResultCache_EvictsOldestAtCapacity(t *testing.T) {
	fake := clock.NewFake(time.Now())
	c := NewStepResultCache(2, time.Minute, fake)

	k1 := c.Key("analysis", "a", map[string]interface{}{"n": 1})
	k2 := c.Key("analysis", "a", map[string]interface{}{"n": 2})
	k3 := c.Key("analysis", "a", map[string]interface{}{"n": 3})

	c.Put(k1, StepResult{})
	fake.Advance(time.Millisecond)
	c.Put(k2, StepResult{})
	fake.Advance(time.Millisecond)
	c.Put(k3, StepResult{}) // evicts k1

	_, ok := c.Get(k1)
	assert.False(t, ok)
	_, ok = c.Get(k2)
	assert.True(t, ok)
	_, ok = c.Get(k3)
	assert.True(t, ok)
}

func TestStepResultCache_DisabledWhenZeroSized(t *testing.T) {
	c := NewStepResultCache(0, 0, clock.New())
	key := c.Key("analysis", "a", nil)
	c.Put(key, StepResult{QualityScore: 1})
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestStepResultCache_Invalidate(t *testing.T) {
	c := NewStepResultCache(10, time.Minute, clock.New())
	key := c.Key("analysis", "a", nil)
	c.Put(key, StepResult{})
	c.Invalidate()
	_, ok := c.Get(key)
	assert.False(t, ok)
}
