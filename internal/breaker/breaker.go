// Package breaker implements the per-gate circuit breaker from §4.4: a gate
// that crashes (or times out — treated identically) crash_threshold times
// within crash_window seconds trips OPEN for cooldown seconds, then allows
// one HALF_OPEN probe before deciding CLOSED or OPEN again. Unlike
// sony/gobreaker's in-memory breaker, this state must survive between
// short-lived enforcement processes, so only gobreaker's State/Counts
// vocabulary is reused here; the breaker itself is a small JSON-backed
// record per gate, loaded and saved by the caller each invocation.
package breaker

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/ozmaster/torus-enforcer/internal/registry"
)

const (
	defaultCrashThreshold = 3
	defaultCrashWindow    = 300 * time.Second
	defaultCooldown       = 60 * time.Second
)

// Config is the tunable trip/cooldown behavior for one Registry. Every gate
// tracked by a Registry shares the same Config; the memory worker client
// uses its own Registry with its own (tighter) Config, per §4.11.
type Config struct {
	CrashThreshold int
	CrashWindow    time.Duration
	Cooldown       time.Duration
}

// DefaultConfig returns the gate circuit breaker's own thresholds: 3 crashes
// within 300s trips OPEN for a 60s cooldown.
func DefaultConfig() Config {
	return Config{CrashThreshold: defaultCrashThreshold, CrashWindow: defaultCrashWindow, Cooldown: defaultCooldown}
}

// Record is one gate's persisted breaker state.
type Record struct {
	State          gobreaker.State `json:"state"`
	CrashTimes     []time.Time     `json:"crash_times"`
	OpenedAt       time.Time       `json:"opened_at,omitempty"`
	HalfOpenProbed bool            `json:"half_open_probed"`
}

// Registry keys Records by gate id. The zero value is ready to use (it
// behaves as DefaultConfig); unknown gates default to CLOSED with no
// history.
type Registry struct {
	Config Config             `json:"config"`
	Gates  map[string]*Record `json:"gates"`
}

// NewRegistry returns an empty breaker Registry using DefaultConfig.
func NewRegistry() *Registry {
	return &Registry{Config: DefaultConfig(), Gates: map[string]*Record{}}
}

// NewRegistryWithConfig returns an empty breaker Registry using cfg.
func NewRegistryWithConfig(cfg Config) *Registry {
	return &Registry{Config: cfg, Gates: map[string]*Record{}}
}

func (r *Registry) config() Config {
	if r.Config.CrashThreshold == 0 {
		return DefaultConfig()
	}
	return r.Config
}

func (r *Registry) recordFor(gateID string) *Record {
	if r.Gates == nil {
		r.Gates = map[string]*Record{}
	}
	rec, ok := r.Gates[gateID]
	if !ok {
		rec = &Record{State: gobreaker.StateClosed}
		r.Gates[gateID] = rec
	}
	return rec
}

// Allow reports whether gateID (of the given tier) may run right now.
// Tier-1 gates always return true: §4.4 "Tier-1 gates never leave CLOSED."
// For everything else, Allow also performs the OPEN -> HALF_OPEN transition
// when cooldown has elapsed.
func (r *Registry) Allow(gateID string, tier registry.Tier, now time.Time) bool {
	if tier == registry.Tier1 {
		return true
	}
	rec := r.recordFor(gateID)
	switch rec.State {
	case gobreaker.StateOpen:
		if now.Sub(rec.OpenedAt) >= r.config().Cooldown {
			rec.State = gobreaker.StateHalfOpen
			rec.HalfOpenProbed = false
			return true
		}
		return false
	case gobreaker.StateHalfOpen:
		// Only the first probe after the transition is allowed through;
		// concurrent callers within the same process would otherwise both
		// count as the probe, but the enforcement pipeline is one gate
		// check at a time so this is purely defensive.
		if rec.HalfOpenProbed {
			return false
		}
		rec.HalfOpenProbed = true
		return true
	default:
		return true
	}
}

// RecordCrash registers a gate crash or timeout at now, pruning crash
// timestamps older than crash_window before counting, and trips the breaker
// OPEN if the count reaches crash_threshold. A crash observed while
// HALF_OPEN immediately re-opens the breaker regardless of threshold (a
// failed probe never gets a second chance in the same window).
func (r *Registry) RecordCrash(gateID string, tier registry.Tier, now time.Time) {
	if tier == registry.Tier1 {
		return
	}
	rec := r.recordFor(gateID)
	if rec.State == gobreaker.StateHalfOpen {
		rec.State = gobreaker.StateOpen
		rec.OpenedAt = now
		rec.CrashTimes = append(rec.CrashTimes, now)
		return
	}
	cfg := r.config()
	rec.CrashTimes = pruneOlderThan(rec.CrashTimes, now, cfg.CrashWindow)
	rec.CrashTimes = append(rec.CrashTimes, now)
	if len(rec.CrashTimes) >= cfg.CrashThreshold {
		rec.State = gobreaker.StateOpen
		rec.OpenedAt = now
	}
}

// RecordSuccess registers a non-crashing gate run. A successful HALF_OPEN
// probe closes the breaker and clears its crash history.
func (r *Registry) RecordSuccess(gateID string, tier registry.Tier, now time.Time) {
	if tier == registry.Tier1 {
		return
	}
	rec := r.recordFor(gateID)
	if rec.State == gobreaker.StateHalfOpen {
		rec.State = gobreaker.StateClosed
		rec.CrashTimes = nil
		rec.HalfOpenProbed = false
	}
}

// Counts reports the gobreaker-style counters for gateID over its retained
// crash history, useful for telemetry export.
func (r *Registry) Counts(gateID string, now time.Time) gobreaker.Counts {
	rec := r.recordFor(gateID)
	live := pruneOlderThan(rec.CrashTimes, now, r.config().CrashWindow)
	return gobreaker.Counts{
		Requests:            uint32(len(live)),
		TotalFailures:       uint32(len(live)),
		ConsecutiveFailures: uint32(len(live)),
	}
}

func pruneOlderThan(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	out := ts[:0:0]
	for _, t := range ts {
		if now.Sub(t) < window {
			out = append(out, t)
		}
	}
	return out
}
