// Package gatecache memoizes gate results in-process for the lifetime of one
// enforcement invocation, per §4.6: a gate's result is reusable for the same
// (gate, tool, stable fingerprint of tool_input) within a 60-second TTL, but
// a blocking result is never cached — the next call must re-evaluate in case
// the condition that caused the block has since changed.
package gatecache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ozmaster/torus-enforcer/internal/gate"
)

const ttl = 60 * time.Second

type entry struct {
	result   gate.Result
	cachedAt time.Time
}

// Cache is a small in-process memo table. The zero value is ready to use.
type Cache struct {
	entries map[string]entry
	hits    int
	misses  int
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: map[string]entry{}}
}

// Key computes the stable cache key for (gateID, tool, input): a
// deterministic fingerprint of the input map, independent of Go's randomized
// map iteration order, so identical inputs always hash identically.
func Key(gateID, tool string, input map[string]any) string {
	h := sha256.New()
	h.Write([]byte(gateID))
	h.Write([]byte{0})
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(stableFingerprint(input))
	return hex.EncodeToString(h.Sum(nil))
}

// stableFingerprint renders input as JSON with keys sorted at every level,
// giving the same bytes for the same logical content regardless of map
// iteration order. Values that fail to marshal (e.g., channels smuggled into
// tool_input, which should never happen) fall back to their %v form so
// fingerprinting never panics or errors out a gate check.
func stableFingerprint(v any) []byte {
	normalized := normalize(v)
	data, err := json.Marshal(normalized)
	if err != nil {
		return []byte(safeFallback(v))
	}
	return data
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, [2]any{k, normalize(t[k])})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return t
	}
}

func safeFallback(v any) string {
	return fmt.Sprintf("%v", v)
}

// Get returns the cached result for key if present and not yet expired at
// now.
func (c *Cache) Get(key string, now time.Time) (gate.Result, bool) {
	if c.entries == nil {
		c.misses++
		return gate.Result{}, false
	}
	e, ok := c.entries[key]
	if !ok || now.Sub(e.cachedAt) >= ttl {
		c.misses++
		return gate.Result{}, false
	}
	c.hits++
	return e.result, true
}

// Put stores result under key at now. Blocking results are never stored
// (§4.6 "a blocking result is never cached").
func (c *Cache) Put(key string, result gate.Result, now time.Time) {
	if result.Blocked {
		return
	}
	if c.entries == nil {
		c.entries = map[string]entry{}
	}
	c.entries[key] = entry{result: result, cachedAt: now}
}

// Hits and Misses report cumulative counters for telemetry export.
func (c *Cache) Hits() int   { return c.hits }
func (c *Cache) Misses() int { return c.misses }
