package gatecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ozmaster/torus-enforcer/internal/gate"
)

func TestKey_StableAcrossMapIterationOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "c": map[string]any{"y": 2, "x": 1}}
	b := map[string]any{"c": map[string]any{"x": 1, "y": 2}, "a": 1, "b": 2}
	assert.Equal(t, Key("gate_01", "Edit", a), Key("gate_01", "Edit", b))
}

func TestKey_DiffersByGateToolOrInput(t *testing.T) {
	in := map[string]any{"file_path": "/tmp/x.py"}
	k1 := Key("gate_01", "Edit", in)
	k2 := Key("gate_02", "Edit", in)
	k3 := Key("gate_01", "Write", in)
	k4 := Key("gate_01", "Edit", map[string]any{"file_path": "/tmp/y.py"})
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
}

func TestCache_PutThenGetWithinTTL(t *testing.T) {
	c := New()
	now := time.Now()
	key := Key("gate_01", "Edit", nil)
	c.Put(key, gate.Allow("gate_01"), now)

	got, ok := c.Get(key, now.Add(30*time.Second))
	assert.True(t, ok)
	assert.Equal(t, "gate_01", got.GateName)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New()
	now := time.Now()
	key := Key("gate_01", "Edit", nil)
	c.Put(key, gate.Allow("gate_01"), now)

	_, ok := c.Get(key, now.Add(61*time.Second))
	assert.False(t, ok)
}

func TestCache_NeverCachesBlockedResult(t *testing.T) {
	c := New()
	now := time.Now()
	key := Key("gate_01", "Edit", nil)
	blocked := gate.NewResult("gate_01", true, "blocked", gate.SeverityWarn)
	c.Put(key, blocked, now)

	_, ok := c.Get(key, now)
	assert.False(t, ok)
}

func TestCache_HitsAndMissesCounted(t *testing.T) {
	c := New()
	now := time.Now()
	key := Key("gate_01", "Edit", nil)

	_, ok := c.Get(key, now)
	assert.False(t, ok)

	c.Put(key, gate.Allow("gate_01"), now)
	_, ok = c.Get(key, now)
	assert.True(t, ok)

	assert.Equal(t, 1, c.Hits())
	assert.Equal(t, 1, c.Misses())
}
