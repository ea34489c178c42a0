package gate

import (
	"context"
	"regexp"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

// NoDestroyID is the registry identifier for the destructive-command gate.
const NoDestroyID = "gate_02_no_destroy"

// noDestroyPatterns are shell command shapes considered unconditionally
// destructive: a wide-scope rm -rf, filesystem-format utilities, raw disk
// writes, and a fork bomb. Patterns are intentionally conservative (prefer a
// false block over a false allow) since this gate's severity is critical.
var noDestroyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/(\s|$)`),
	regexp.MustCompile(`rm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/\*`),
	regexp.MustCompile(`rm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+~(\s|/|$)`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\s+.*of=/dev/(sd|nvme|hd)`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
	regexp.MustCompile(`\bgit\s+push\s+.*--force\b.*\b(main|master)\b`),
}

// NoDestroy blocks Bash commands matching a destructive pattern: wide-scope
// rm -rf, disk formatting, raw device writes, fork bombs, and a forced push
// to a protected branch.
type NoDestroy struct{}

// NewNoDestroy returns a NoDestroy gate.
func NewNoDestroy() *NoDestroy { return &NoDestroy{} }

// ID implements Gate.
func (g *NoDestroy) ID() string { return NoDestroyID }

// Check implements Gate.
func (g *NoDestroy) Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error) {
	if toolName != "Bash" || event != PreToolUse {
		return Allow(g.ID()), nil
	}
	cmd, _ := toolInput["command"].(string)
	if cmd == "" {
		return Allow(g.ID()), nil
	}
	for _, pat := range noDestroyPatterns {
		if pat.MatchString(cmd) {
			return NewResult(g.ID(), true, "command matches a destructive pattern and is blocked", SeverityCritical), nil
		}
	}
	return Allow(g.ID()), nil
}
