package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

// WorkspaceIsolationID is the registry identifier for the file-claim gate.
const WorkspaceIsolationID = "gate_13_workspace_isolation"

// claimStaleAfter is the age at which a file claim is ignored as stale. The
// boundary is exact: a claim aged 1799s still blocks, one aged 1801s does
// not.
const claimStaleAfter = 1800 * time.Second

var workspaceWatchedTools = map[string]string{
	"Edit":         "file_path",
	"Write":        "file_path",
	"NotebookEdit": "notebook_path",
}

type fileClaim struct {
	SessionID string    `json:"session_id"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// WorkspaceIsolation blocks a tool call that would edit a file another
// session has claimed within the last 30 minutes, so two concurrent agent
// sessions never silently clobber each other's in-flight edits. Claims are
// read from a shared JSON file (ClaimsPath); this gate never writes claims
// itself — claiming happens separately when a session starts editing.
type WorkspaceIsolation struct {
	ClaimsPath string
}

// NewWorkspaceIsolation returns a WorkspaceIsolation gate reading claims from
// claimsPath.
func NewWorkspaceIsolation(claimsPath string) *WorkspaceIsolation {
	return &WorkspaceIsolation{ClaimsPath: claimsPath}
}

// ID implements Gate.
func (g *WorkspaceIsolation) ID() string { return WorkspaceIsolationID }

// Check implements Gate. A missing file_path, an unclaimed path, a
// self-claimed path, or a stale (>1800s) claim all allow; a live claim held
// by a different session blocks. Any failure reading the claims file is
// fail-open: Check returns a non-blocking result with a nil error, so the
// caller's breaker records no crash for it.
func (g *WorkspaceIsolation) Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error) {
	inputKey, watched := workspaceWatchedTools[toolName]
	if !watched {
		return Allow(g.ID()), nil
	}
	path, _ := toolInput[inputKey].(string)
	if path == "" {
		return Allow(g.ID()), nil
	}
	path = filepath.Clean(path)

	claims, err := g.readClaims()
	if err != nil {
		// Fail open: a corrupt or unreadable claims file must never block a
		// tool call.
		return Allow(g.ID()), nil
	}

	claim, ok := claims[path]
	if !ok || claim.SessionID == "" {
		return Allow(g.ID()), nil
	}
	if claim.SessionID == s.SessionID {
		return Allow(g.ID()), nil
	}
	if time.Since(claim.ClaimedAt) > claimStaleAfter {
		return Allow(g.ID()), nil
	}
	return NewResult(g.ID(), true, fmt.Sprintf("%s is claimed by session %s", path, claim.SessionID), SeverityWarn), nil
}

// readClaims reads and parses the claims file. A missing file is treated as
// no claims (empty map, nil error); malformed individual entries are skipped
// rather than failing the whole read.
func (g *WorkspaceIsolation) readClaims() (map[string]fileClaim, error) {
	data, err := os.ReadFile(g.ClaimsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]fileClaim{}, nil
		}
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]fileClaim, len(raw))
	for path, v := range raw {
		var c fileClaim
		if err := json.Unmarshal(v, &c); err != nil {
			continue
		}
		if c.SessionID == "" {
			continue
		}
		out[path] = c
	}
	return out, nil
}
