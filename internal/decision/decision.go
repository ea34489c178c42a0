// Package decision translates a gate.Result into the three-way hook
// decision protocol described in §5: allow (silent, exit 0), ask (JSON
// permissionDecision "ask", exit 0), deny (JSON permissionDecision "deny",
// exit 2). This is the only package that knows about the host's JSON
// contract; everything upstream deals in gate.Result.
package decision

import (
	"encoding/json"

	"github.com/ozmaster/torus-enforcer/internal/gate"
)

// Kind is the three-way outcome.
type Kind string

const (
	Allow Kind = "allow"
	Ask   Kind = "ask"
	Deny  Kind = "deny"
)

// ExitCode returns the process exit code for d: 2 for deny, 0 otherwise.
func (k Kind) ExitCode() int {
	if k == Deny {
		return 2
	}
	return 0
}

// hookOutput is the JSON envelope written to stdout for ask/deny. Its
// permissionDecision is the Kind itself, so it only ever serializes as "ask"
// or "deny"; allow never reaches this struct because allow is silent.
type hookOutput struct {
	HookSpecificOutput hookSpecific `json:"hookSpecificOutput"`
}

type hookSpecific struct {
	PermissionDecision string `json:"permissionDecision"`
	Reason             string `json:"reason"`
}

// Decision is the fully resolved outcome for one tool invocation: a Kind
// plus, for ask/deny, the message shown to the host.
type Decision struct {
	Kind    Kind
	Message string
}

// FromResult maps a gate.Result to a Decision. Escalation is the
// tagged-variant discriminant (§9): a result with escalation "ask" becomes
// Ask regardless of Blocked, since is_ask=True must yield exit 0 with ask
// JSON independent of blocked (§8 scenario S4). Otherwise a blocked result
// becomes Deny; a non-blocked result is Allow (warn results are recorded to
// audit but never surface to the host as a decision — §5 "warn is an
// audit-only severity, not a protocol outcome").
func FromResult(r gate.Result) Decision {
	if r.IsAsk() {
		return Decision{Kind: Ask, Message: r.Message}
	}
	if !r.Blocked {
		return Decision{Kind: Allow}
	}
	return Decision{Kind: Deny, Message: r.Message}
}

// Encode renders d as the bytes to write to stdout: nil for Allow (the host
// contract is silence means proceed), otherwise the hookSpecificOutput JSON
// envelope.
func (d Decision) Encode() ([]byte, error) {
	if d.Kind == Allow {
		return nil, nil
	}
	out := hookOutput{HookSpecificOutput: hookSpecific{
		PermissionDecision: string(d.Kind),
		Reason:             d.Message,
	}}
	return json.Marshal(out)
}
