package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

// ProofBeforeFixedID is the registry identifier for the verification-debt
// gate.
const ProofBeforeFixedID = "gate_05_proof_before_fixed"

// proofBeforeFixedCueWords mark a Bash command as a fix-claim worth
// tracking: it ran something the agent is implicitly claiming resolves a
// prior failure (a test run, a typecheck, a lint pass).
var proofBeforeFixedCueWords = []string{"test", "pytest", "go test", "vitest", "jest", "typecheck", "tsc", "lint"}

// proofBeforeFixedMaxPending warns once the pending-verification backlog
// grows past this size, since an ever-growing list of unverified claims is
// itself a signal the agent has stopped checking its own work.
const proofBeforeFixedMaxPending = 5

// ProofBeforeFixed tracks an agent's claims of having fixed something
// without having re-run a verifying command since. A Bash call whose
// command looks like a verification step (test/lint/typecheck) marks the
// oldest pending id (the first in PendingVerify) as verified; once the pending backlog grows past
// proofBeforeFixedMaxPending the gate warns, since every unverified fix is
// a latent regression.
type ProofBeforeFixed struct{}

// NewProofBeforeFixed returns a ProofBeforeFixed gate.
func NewProofBeforeFixed() *ProofBeforeFixed { return &ProofBeforeFixed{} }

// ID implements Gate.
func (g *ProofBeforeFixed) ID() string { return ProofBeforeFixedID }

// Check implements Gate.
func (g *ProofBeforeFixed) Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error) {
	if event != PostToolUse || toolName != "Bash" {
		return Allow(g.ID()), nil
	}
	cmd, _ := toolInput["command"].(string)
	if cmd != "" && looksLikeVerification(cmd) && len(s.PendingVerify) > 0 {
		s.MarkVerified(s.PendingVerify[0])
	}
	if len(s.PendingVerify) > proofBeforeFixedMaxPending {
		return NewResult(g.ID(), false, fmt.Sprintf("%d fixes are claimed but not re-verified", len(s.PendingVerify)), SeverityWarn).
			WithEscalation(EscalationWarn), nil
	}
	return Allow(g.ID()), nil
}

func looksLikeVerification(cmd string) bool {
	lower := strings.ToLower(cmd)
	for _, cue := range proofBeforeFixedCueWords {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
