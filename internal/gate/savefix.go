package gate

import (
	"context"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

// SaveFixID is the registry identifier for the plan-mode/memory-sync
// advisory gate.
const SaveFixID = "gate_06_save_fix"

// SaveFix warns, but never blocks, when the session exited plan mode and
// has not since queried memory: a fix made under a plan should be recorded
// before it is considered durable, but this is advisory only, matching the
// original's warn-only severity for this gate.
type SaveFix struct{}

// NewSaveFix returns a SaveFix gate.
func NewSaveFix() *SaveFix { return &SaveFix{} }

// ID implements Gate.
func (g *SaveFix) ID() string { return SaveFixID }

// Check implements Gate.
func (g *SaveFix) Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error) {
	if s.LastExitPlanMode.IsZero() {
		return Allow(g.ID()), nil
	}
	if s.MemLastQueried.After(s.LastExitPlanMode) {
		return Allow(g.ID()), nil
	}
	s.Gate6WarnCount++
	return NewResult(g.ID(), false, "plan mode was exited but memory has not been queried since", SeverityWarn).
		WithEscalation(EscalationWarn), nil
}
