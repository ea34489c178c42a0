// Package runtime implements the Gate Runtime orchestrator from §4.7: the
// single entry point that loads session state, asks the router for a gate
// order, runs each applicable gate under the circuit breaker, cache, and
// profile overrides, and stops at the first blocking or asking result.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ozmaster/torus-enforcer/internal/audit"
	"github.com/ozmaster/torus-enforcer/internal/breaker"
	"github.com/ozmaster/torus-enforcer/internal/clock"
	"github.com/ozmaster/torus-enforcer/internal/config"
	"github.com/ozmaster/torus-enforcer/internal/decision"
	"github.com/ozmaster/torus-enforcer/internal/errs"
	"github.com/ozmaster/torus-enforcer/internal/gate"
	"github.com/ozmaster/torus-enforcer/internal/gatecache"
	"github.com/ozmaster/torus-enforcer/internal/hookio"
	"github.com/ozmaster/torus-enforcer/internal/registry"
	"github.com/ozmaster/torus-enforcer/internal/router"
	"github.com/ozmaster/torus-enforcer/internal/state"
	"github.com/ozmaster/torus-enforcer/internal/telemetry"
)

// gateSoftDeadline is the per-gate soft deadline from §4.7 "Deadline":
// exceeding it counts as a crash for circuit-breaker purposes but the
// pipeline still waits for the gate to return (Go has no safe way to abort
// a goroutine mid-flight, so the deadline is observed after the fact rather
// than used to cancel the call).
const gateSoftDeadline = 80 * time.Millisecond

// Deps bundles every collaborator the runtime needs for one invocation.
// Callers (cmd/enforcer, and tests) construct this once per process.
type Deps struct {
	Registry *registry.Registry
	Router   *router.Router
	Breaker  *breaker.Registry
	Cache    *gatecache.Cache
	Profiles config.Profiles
	Trail    *audit.Trail
	Gates    []gate.Gate
	Logger   telemetry.Logger
	Metrics  telemetry.Metrics
	Tracer   telemetry.Tracer
	// Events is scoped to one process: cmd/enforcer constructs a fresh
	// EventBus per invocation, so Recent() never reflects more than the
	// current call's own gates. A future revision that wants cross-call
	// history would need to persist it the way the breaker and Q-table
	// files already are.
	Events *telemetry.EventBus
	Clock  clock.Clock
}

// Runtime executes the gate pipeline for one tool invocation.
type Runtime struct {
	deps      Deps
	gatesByID map[string]gate.Gate
}

// New builds a Runtime from deps, indexing deps.Gates by id for dispatch.
func New(deps Deps) *Runtime {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	byID := make(map[string]gate.Gate, len(deps.Gates))
	for _, g := range deps.Gates {
		byID[g.ID()] = g
	}
	return &Runtime{deps: deps, gatesByID: byID}
}

// Outcome is everything one invocation produced: the final decision plus
// the sideband patch to persist.
type Outcome struct {
	Decision decision.Decision
	Patch    map[string]any
}

// Run executes the full pipeline of §4.7's pseudocode against payload,
// using before as the session's freshly loaded state (the caller owns
// Load/Cap; Run only mutates the in-memory struct and reports what changed).
func (rt *Runtime) Run(ctx context.Context, payload hookio.Payload, s *state.State) Outcome {
	before := clonePatchSource(s)

	s.RecordToolCall(payload.ToolName)
	order := rt.deps.Router.Order(payload.ToolName, s, rt.deps.Profiles)

	for _, gateID := range order {
		g, ok := rt.gatesByID[gateID]
		if !ok {
			continue // registry names a gate this build does not implement
		}
		tier := rt.deps.Registry.TierOf(gateID)

		if rt.deps.Breaker != nil && !rt.deps.Breaker.Allow(gateID, tier, rt.deps.Clock.Now()) {
			continue
		}
		mode := rt.deps.Profiles.GetGateModeForProfile(gateID, s)
		if mode == config.ModeDisabled && tier != registry.Tier1 {
			continue
		}

		result, cacheHit := rt.evaluate(ctx, g, gateID, payload, s, tier)

		if mode == config.ModeWarn && tier != registry.Tier1 && result.Blocked {
			result = result.WithEscalation(gate.EscalationWarn)
			result.Blocked = false // a warn downgrade is audited, never denied
		}

		rt.record(gateID, payload.ToolName, result, cacheHit)
		s.RecordGateTiming(gateID, result.DurationMs)
		if result.Blocked {
			s.RecordBlock(gateID, payload.ToolName, result.Message, rt.deps.Clock.Now())
			rt.deps.Router.RecordBlock(gateID, payload.ToolName)
		} else {
			rt.deps.Router.RecordPass(gateID, payload.ToolName)
		}

		if rt.deps.Trail != nil {
			rec := audit.NewRecord(rt.deps.Clock.Now(), payload.SessionID, payload.ToolName, result)
			if err := rt.deps.Trail.Append(rec); err != nil {
				rt.warn(ctx, "audit append failed", "gate", gateID, "error", err.Error())
			}
		}

		if result.Blocked || result.IsAsk() {
			return Outcome{
				Decision: decision.FromResult(result),
				Patch:    patchFrom(before, s),
			}
		}
	}

	return Outcome{
		Decision: decision.Decision{Kind: decision.Allow},
		Patch:    patchFrom(before, s),
	}
}

// evaluate runs one gate, consulting the cache on PreToolUse, enforcing the
// soft deadline, and recording the breaker outcome. A crashing gate is
// swallowed into an Allow result (fail-open), per §4.7/§7: a Tier-1 crash
// must never become a block, and a non-Tier-1 crash simply skips ahead.
func (rt *Runtime) evaluate(ctx context.Context, g gate.Gate, gateID string, payload hookio.Payload, s *state.State, tier registry.Tier) (gate.Result, bool) {
	cacheKey := gatecache.Key(gateID, payload.ToolName, payload.ToolInput)
	now := rt.deps.Clock.Now()

	if payload.EventType == gate.PreToolUse && rt.deps.Cache != nil {
		if cached, ok := rt.deps.Cache.Get(cacheKey, now); ok {
			return cached, true
		}
	}

	result, err := rt.runWithTiming(ctx, g, payload, s)
	if err != nil {
		if rt.deps.Breaker != nil {
			rt.deps.Breaker.RecordCrash(gateID, tier, now)
		}
		rt.warn(ctx, "gate crashed, failing open", "gate", gateID, "tool", payload.ToolName, "error", err.Error())
		return gate.Allow(gateID), false
	}

	if rt.deps.Breaker != nil {
		rt.deps.Breaker.RecordSuccess(gateID, tier, now)
	}
	if !result.Blocked && rt.deps.Cache != nil {
		rt.deps.Cache.Put(cacheKey, result, now)
	}
	return result, false
}

// runWithTiming calls g.Check, stamps DurationMs, and upgrades a result that
// exceeded gateSoftDeadline into a GateTimeout error so the caller treats it
// exactly like a crash for circuit-breaker purposes, per §4.7's "Deadline".
func (rt *Runtime) runWithTiming(ctx context.Context, g gate.Gate, payload hookio.Payload, s *state.State) (gate.Result, error) {
	spanCtx := ctx
	var span telemetry.Span
	if rt.deps.Tracer != nil {
		spanCtx, span = rt.deps.Tracer.Start(ctx, "gate.check:"+g.ID())
	}

	start := rt.deps.Clock.Monotonic()
	result, err := g.Check(spanCtx, payload.ToolName, payload.ToolInput, s, payload.EventType)
	elapsed := rt.deps.Clock.Monotonic().Sub(start)
	result.DurationMs = float64(elapsed) / float64(time.Millisecond)

	if span != nil {
		if err != nil {
			span.RecordError(err)
		} else if result.Blocked {
			span.AddEvent("blocked", "gate", g.ID(), "severity", string(result.Severity))
		}
		span.End()
	}

	if err != nil {
		return result, err
	}
	if elapsed > gateSoftDeadline {
		return result, errs.New(errs.KindGateTimeout, fmt.Sprintf("%s exceeded %s soft deadline", g.ID(), gateSoftDeadline))
	}
	return result, nil
}

func (rt *Runtime) record(gateID, tool string, result gate.Result, cacheHit bool) {
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.IncCounter("gate.checks", 1, "gate", gateID, "tool", tool)
		if result.Blocked {
			rt.deps.Metrics.IncCounter("gate.blocks", 1, "gate", gateID, "tool", tool)
		}
		rt.deps.Metrics.RecordTimer("gate.duration", time.Duration(result.DurationMs*float64(time.Millisecond)), "gate", gateID)
	}
	if rt.deps.Events != nil {
		rt.deps.Events.Push(telemetry.GateTelemetry{
			Gate:       gateID,
			Tool:       tool,
			DurationMs: int64(result.DurationMs),
			Blocked:    result.Blocked,
			CacheHit:   cacheHit,
		})
	}
}

func (rt *Runtime) warn(ctx context.Context, msg string, keyvals ...any) {
	if rt.deps.Logger != nil {
		rt.deps.Logger.Warn(ctx, msg, keyvals...)
	}
}
