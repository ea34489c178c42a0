// Package gate defines the Gate contract and the GateResult tagged variant
// gates return, per §3's Gate/GateResult definitions. A Gate is a function
// value over (tool name, tool input, session state, event type) — gates are
// values, not dynamically loaded modules, matching the specification's
// design note "dynamic gate loading -> explicit registry + polymorphic
// dispatch."
package gate

import (
	"context"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

// EventType distinguishes the two hook events the host can send.
type EventType string

const (
	PreToolUse  EventType = "PreToolUse"
	PostToolUse EventType = "PostToolUse"
)

// Severity classifies a GateResult for audit purposes. Severity is never
// transmitted to the host; only written to audit (§4.8).
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Escalation is the tagged-variant discriminator for a GateResult. Invalid
// values collapse to EscalationBlock at construction time so downstream code
// never has to re-validate (§9 design note).
type Escalation string

const (
	EscalationBlock Escalation = "block"
	EscalationAsk   Escalation = "ask"
	EscalationWarn  Escalation = "warn"
	EscalationAllow Escalation = "allow"
)

func (e Escalation) normalize() Escalation {
	switch e {
	case EscalationBlock, EscalationAsk, EscalationWarn, EscalationAllow:
		return e
	default:
		return EscalationBlock
	}
}

// Result is the record a Gate returns. Fields mirror §3's GateResult
// exactly; DurationMs is filled in by the runtime after Check returns, not by
// the gate itself.
type Result struct {
	Blocked    bool
	Message    string
	GateName   string
	Severity   Severity
	Escalation Escalation
	DurationMs float64
	Metadata   map[string]any
}

// NewResult builds a Result whose Escalation is derived from blocked
// ("block" when blocked, else "allow"); WithEscalation sets any other
// variant and normalizes an invalid one to "block".
func NewResult(gateName string, blocked bool, message string, severity Severity) Result {
	esc := EscalationAllow
	if blocked {
		esc = EscalationBlock
	}
	return Result{
		Blocked:    blocked,
		Message:    message,
		GateName:   gateName,
		Severity:   severity,
		Escalation: esc,
	}
}

// WithEscalation returns a copy of r with Escalation set (normalized).
func (r Result) WithEscalation(e Escalation) Result {
	r.Escalation = e.normalize()
	if r.Escalation == EscalationBlock {
		r.Blocked = true
	}
	return r
}

// WithMetadata returns a copy of r with Metadata merged in.
func (r Result) WithMetadata(md map[string]any) Result {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	for k, v := range md {
		r.Metadata[k] = v
	}
	return r
}

// IsAsk reports whether this result's escalation is "ask" (§3's derived
// property is_ask).
func (r Result) IsAsk() bool {
	return r.Escalation.normalize() == EscalationAsk
}

// Allow is the canonical non-blocking, non-asking result for gateName.
func Allow(gateName string) Result {
	return NewResult(gateName, false, "", SeverityInfo)
}

// Gate is the contract every policy plug-in implements: a pure function over
// (tool, input, session state, event). Gates declare no global state beyond
// what they read or write through state.
type Gate interface {
	// ID returns the gate's registry identifier.
	ID() string
	// Check evaluates the gate for one tool invocation. Implementations may
	// mutate state (e.g., recording observations) but must not perform
	// blocking I/O beyond what the soft deadline in the runtime allows.
	Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error)
}

// Func adapts a plain function to the Gate interface, the common case for
// small illustrative gates that need no constructor state.
type Func struct {
	Name    string
	CheckFn func(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error)
}

// ID implements Gate.
func (f Func) ID() string { return f.Name }

// Check implements Gate.
func (f Func) Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error) {
	return f.CheckFn(ctx, toolName, toolInput, s, event)
}
