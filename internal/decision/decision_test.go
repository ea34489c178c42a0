package decision

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozmaster/torus-enforcer/internal/gate"
)

func TestFromResult_AllowWhenNotBlocked(t *testing.T) {
	d := FromResult(gate.Allow("gate_01"))
	assert.Equal(t, Allow, d.Kind)
	assert.Equal(t, 0, d.Kind.ExitCode())
}

func TestFromResult_WarnNeverSurfacesAsBlock(t *testing.T) {
	warn := gate.NewResult("gate_06", false, "advisory", gate.SeverityWarn).WithEscalation(gate.EscalationWarn)
	d := FromResult(warn)
	assert.Equal(t, Allow, d.Kind)
}

func TestFromResult_AskWhenEscalationAsk(t *testing.T) {
	r := gate.NewResult("gate_01", true, "confirm?", gate.SeverityWarn).WithEscalation(gate.EscalationAsk)
	d := FromResult(r)
	assert.Equal(t, Ask, d.Kind)
	assert.Equal(t, 0, d.Kind.ExitCode())
}

// TestFromResult_AskWhenEscalationAskEvenIfNotBlocked mirrors spec.md §8
// scenario S4 verbatim: GateResult{blocked:false, escalation:"ask",
// message:"confirm?"} must yield exit 0 with ask JSON, independent of
// blocked — invariant 5 "is_ask=True ⇒ exit 0 with ask JSON".
func TestFromResult_AskWhenEscalationAskEvenIfNotBlocked(t *testing.T) {
	r := gate.NewResult("gate_01", false, "confirm?", gate.SeverityWarn).WithEscalation(gate.EscalationAsk)
	require.False(t, r.Blocked)
	d := FromResult(r)
	assert.Equal(t, Ask, d.Kind)
	assert.Equal(t, "confirm?", d.Message)
	assert.Equal(t, 0, d.Kind.ExitCode())
}

func TestFromResult_DenyWhenBlocked(t *testing.T) {
	r := gate.NewResult("gate_02", true, "destructive command", gate.SeverityCritical)
	d := FromResult(r)
	assert.Equal(t, Deny, d.Kind)
	assert.Equal(t, 2, d.Kind.ExitCode())
}

func TestDecision_EncodeAllowIsNil(t *testing.T) {
	data, err := Decision{Kind: Allow}.Encode()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestDecision_EncodeDenyProducesPermissionDecisionJSON(t *testing.T) {
	data, err := Decision{Kind: Deny, Message: "nope"}.Encode()
	require.NoError(t, err)

	var out struct {
		HookSpecificOutput struct {
			PermissionDecision string `json:"permissionDecision"`
			Reason             string `json:"reason"`
		} `json:"hookSpecificOutput"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "deny", out.HookSpecificOutput.PermissionDecision)
	assert.Equal(t, "nope", out.HookSpecificOutput.Reason)
}
