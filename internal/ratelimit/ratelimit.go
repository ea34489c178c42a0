// Package ratelimit implements the token-bucket rate limiter from §4.5,
// keyed by logical prefix ("tool:", "gate:", "api:"). golang.org/x/time/rate
// models a token bucket natively, but its Limiter is in-memory and tied to a
// wall-clock goroutine — wrong for a process that exits after one gate
// check. Instead this package persists each key's (tokens, last_refill)
// pair to JSON and replays x/time/rate's own refill arithmetic
// (tokens += elapsed * rate, capped at burst) by hand on load, so the
// observable behavior matches rate.Limiter exactly without keeping one
// alive across invocations.
package ratelimit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config is the per-prefix bucket shape: burst capacity and refill rate
// expressed as tokens per minute, matching §4.5's table.
type Config struct {
	Burst     int
	PerMinute int
}

// DefaultConfigs returns the built-in prefix table from §4.5: "tool:" keys
// get burst 10 / 10 per minute, "gate:" keys get burst 30 / 30 per minute,
// "api:" keys get burst 60 / 60 per minute, and anything else falls back to
// a conservative burst 20 / 20 per minute.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		"tool:": {Burst: 10, PerMinute: 10},
		"gate:": {Burst: 30, PerMinute: 30},
		"api:":  {Burst: 60, PerMinute: 60},
	}
}

var fallbackConfig = Config{Burst: 20, PerMinute: 20}

func configFor(configs map[string]Config, key string) Config {
	for prefix, c := range configs {
		if strings.HasPrefix(key, prefix) {
			return c
		}
	}
	return fallbackConfig
}

// bucketState is one key's persisted token count and last-refill instant.
type bucketState struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

// Limiter is the full persisted set of per-key buckets.
type Limiter struct {
	Configs map[string]Config      `json:"-"`
	Buckets map[string]bucketState `json:"buckets"`
}

// New returns a Limiter using configs (DefaultConfigs if nil).
func New(configs map[string]Config) *Limiter {
	if configs == nil {
		configs = DefaultConfigs()
	}
	return &Limiter{Configs: configs, Buckets: map[string]bucketState{}}
}

// Allow reports whether key may proceed at now, consuming one token if so.
// This mirrors rate.Limiter's AllowN(now, 1) semantics: refill by elapsed
// time at the configured per-minute rate, capped at burst, then subtract one
// token if at least one is available.
func (l *Limiter) Allow(key string, now time.Time) bool {
	cfg := configFor(l.Configs, key)
	lim := rate.Limit(float64(cfg.PerMinute) / 60.0)

	b, ok := l.Buckets[key]
	if !ok {
		b = bucketState{Tokens: float64(cfg.Burst), LastRefill: now}
	} else {
		elapsed := now.Sub(b.LastRefill).Seconds()
		if elapsed > 0 {
			b.Tokens += elapsed * float64(lim)
			if b.Tokens > float64(cfg.Burst) {
				b.Tokens = float64(cfg.Burst)
			}
			b.LastRefill = now
		}
	}

	allowed := b.Tokens >= 1.0
	if allowed {
		b.Tokens -= 1.0
	}
	l.Buckets[key] = b
	return allowed
}

// Load reads a persisted Limiter from path, defaulting to fresh buckets (all
// full) on a missing or corrupt file — an unreadable rate-limit file must
// never itself become a denial-of-service vector against the user.
func Load(path string, configs map[string]Config) *Limiter {
	l := New(configs)
	data, err := os.ReadFile(path)
	if err != nil {
		return l
	}
	var onDisk struct {
		Buckets map[string]bucketState `json:"buckets"`
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return l
	}
	if onDisk.Buckets != nil {
		l.Buckets = onDisk.Buckets
	}
	return l
}

// Save atomically persists l to path via temp-file-then-rename.
func Save(path string, l *Limiter) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-ratelimit-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
