package gate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

func freshState() *state.State {
	return state.Default("sess-1", time.Now())
}

func TestReadBeforeEdit_BlocksUnreadFile(t *testing.T) {
	g := NewReadBeforeEdit()
	s := freshState()
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/x.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
}

func TestReadBeforeEdit_AllowsReadFile(t *testing.T) {
	g := NewReadBeforeEdit()
	s := freshState()
	s.AddFileRead("/tmp/x.py")
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/x.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestReadBeforeEdit_AllowsWithinMemoryGrace(t *testing.T) {
	g := NewReadBeforeEdit()
	s := freshState()
	s.MemLastQueried = time.Now().Add(-1 * time.Minute)
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/unread.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestReadBeforeEdit_BlocksOutsideMemoryGrace(t *testing.T) {
	g := NewReadBeforeEdit()
	s := freshState()
	s.MemLastQueried = time.Now().Add(-10 * time.Minute)
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/unread.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
}

func TestReadBeforeEdit_IgnoresPostToolUse(t *testing.T) {
	g := NewReadBeforeEdit()
	s := freshState()
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/x.py"}, s, PostToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestNoDestroy_BlocksWideRmRf(t *testing.T) {
	g := NewNoDestroy()
	s := freshState()
	res, err := g.Check(context.Background(), "Bash", map[string]any{"command": "rm -rf /"}, s, PreToolUse)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, SeverityCritical, res.Severity)
}

func TestNoDestroy_BlocksForcedPushToMain(t *testing.T) {
	g := NewNoDestroy()
	s := freshState()
	res, err := g.Check(context.Background(), "Bash", map[string]any{"command": "git push origin --force main"}, s, PreToolUse)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
}

func TestNoDestroy_AllowsOrdinaryCommand(t *testing.T) {
	g := NewNoDestroy()
	s := freshState()
	res, err := g.Check(context.Background(), "Bash", map[string]any{"command": "rm -rf ./build"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestNoDestroy_IgnoresNonBashTool(t *testing.T) {
	g := NewNoDestroy()
	s := freshState()
	res, err := g.Check(context.Background(), "Edit", map[string]any{"command": "rm -rf /"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestProofBeforeFixed_MarksVerifiedOnTestRun(t *testing.T) {
	g := NewProofBeforeFixed()
	s := freshState()
	s.AddPendingVerification("fix-1")
	res, err := g.Check(context.Background(), "Bash", map[string]any{"command": "go test ./..."}, s, PostToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.NotContains(t, s.PendingVerify, "fix-1")
	assert.Contains(t, s.VerifiedFixes, "fix-1")
}

func TestProofBeforeFixed_WarnsPastBacklogCap(t *testing.T) {
	g := NewProofBeforeFixed()
	s := freshState()
	for i := 0; i < 6; i++ {
		s.AddPendingVerification(string(rune('a' + i)))
	}
	res, err := g.Check(context.Background(), "Bash", map[string]any{"command": "ls"}, s, PostToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, EscalationWarn, res.Escalation)
}

func TestProofBeforeFixed_IgnoresPreToolUse(t *testing.T) {
	g := NewProofBeforeFixed()
	s := freshState()
	res, err := g.Check(context.Background(), "Bash", map[string]any{"command": "go test ./..."}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Empty(t, s.VerifiedFixes)
}

func TestSaveFix_WarnsWhenMemoryStaleAfterPlanExit(t *testing.T) {
	g := NewSaveFix()
	s := freshState()
	s.LastExitPlanMode = time.Now()
	s.MemLastQueried = time.Now().Add(-time.Minute)
	res, err := g.Check(context.Background(), "Edit", nil, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, EscalationWarn, res.Escalation)
	assert.Equal(t, 1, s.Gate6WarnCount)
}

func TestSaveFix_AllowsWhenMemoryQueriedAfterPlanExit(t *testing.T) {
	g := NewSaveFix()
	s := freshState()
	s.LastExitPlanMode = time.Now().Add(-time.Minute)
	s.MemLastQueried = time.Now()
	res, err := g.Check(context.Background(), "Edit", nil, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, EscalationAllow, res.Escalation)
}

func TestSaveFix_AllowsWhenNeverExitedPlanMode(t *testing.T) {
	g := NewSaveFix()
	s := freshState()
	res, err := g.Check(context.Background(), "Edit", nil, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestRateLimit_BlocksAtSixtyPerMinute(t *testing.T) {
	g := NewRateLimit()
	base := time.Now()
	g.now = func() time.Time { return base }
	s := freshState()
	// Seed 59 calls within the floor window so the 60th pushes the rate over
	// the block threshold once the elapsed floor is applied.
	for i := 0; i < 59; i++ {
		s.RateWindowTs = append(s.RateWindowTs, base)
	}
	res, err := g.Check(context.Background(), "Edit", nil, s, PreToolUse)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
}

func TestRateLimit_AllowsLowRate(t *testing.T) {
	g := NewRateLimit()
	s := freshState()
	res, err := g.Check(context.Background(), "Edit", nil, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestRateLimit_PostToolUseAlwaysAllows(t *testing.T) {
	g := NewRateLimit()
	s := freshState()
	for i := 0; i < 1000; i++ {
		s.RateWindowTs = append(s.RateWindowTs, time.Now())
	}
	res, err := g.Check(context.Background(), "Edit", nil, s, PostToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestWorkspaceIsolation_BlocksLiveForeignClaim(t *testing.T) {
	dir := t.TempDir()
	claimsPath := filepath.Join(dir, "claims.json")
	writeClaims(t, claimsPath, map[string]fileClaim{
		"/tmp/shared.py": {SessionID: "other-session", ClaimedAt: time.Now()},
	})
	g := NewWorkspaceIsolation(claimsPath)
	s := freshState()
	s.SessionID = "sess-1"
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/shared.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
}

func TestWorkspaceIsolation_AllowsSelfClaim(t *testing.T) {
	dir := t.TempDir()
	claimsPath := filepath.Join(dir, "claims.json")
	writeClaims(t, claimsPath, map[string]fileClaim{
		"/tmp/shared.py": {SessionID: "sess-1", ClaimedAt: time.Now()},
	})
	g := NewWorkspaceIsolation(claimsPath)
	s := freshState()
	s.SessionID = "sess-1"
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/shared.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestWorkspaceIsolation_AllowsStaleClaim(t *testing.T) {
	dir := t.TempDir()
	claimsPath := filepath.Join(dir, "claims.json")
	writeClaims(t, claimsPath, map[string]fileClaim{
		"/tmp/shared.py": {SessionID: "other-session", ClaimedAt: time.Now().Add(-1801 * time.Second)},
	})
	g := NewWorkspaceIsolation(claimsPath)
	s := freshState()
	s.SessionID = "sess-1"
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/shared.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestWorkspaceIsolation_FailsOpenOnMissingFile(t *testing.T) {
	g := NewWorkspaceIsolation(filepath.Join(t.TempDir(), "does-not-exist.json"))
	s := freshState()
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/shared.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestWorkspaceIsolation_FailsOpenOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	claimsPath := filepath.Join(dir, "claims.json")
	require.NoError(t, os.WriteFile(claimsPath, []byte("{not json"), 0o644))
	g := NewWorkspaceIsolation(claimsPath)
	s := freshState()
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/shared.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestCanary_WarnsOnFirstNewTool(t *testing.T) {
	g := NewCanary()
	g.TelemetryPath = filepath.Join(t.TempDir(), "canary.jsonl")
	s := freshState()
	s.CanarySeenTools = []string{"Edit"}
	res, err := g.Check(context.Background(), "Bash", map[string]any{"command": "ls"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, EscalationWarn, res.Escalation)
}

func TestCanary_WarnsOnSixConsecutiveRepeats(t *testing.T) {
	g := NewCanary()
	g.TelemetryPath = filepath.Join(t.TempDir(), "canary.jsonl")
	s := freshState()
	var res Result
	var err error
	for i := 0; i < 6; i++ {
		res, err = g.Check(context.Background(), "Bash", map[string]any{"command": "ls"}, s, PreToolUse)
		require.NoError(t, err)
	}
	assert.Equal(t, EscalationWarn, res.Escalation)
}

func TestCanary_NeverBlocks(t *testing.T) {
	g := NewCanary()
	g.TelemetryPath = filepath.Join(t.TempDir(), "canary.jsonl")
	s := freshState()
	for i := 0; i < 20; i++ {
		res, err := g.Check(context.Background(), "Bash", map[string]any{"command": "ls", "n": i}, s, PreToolUse)
		require.NoError(t, err)
		assert.False(t, res.Blocked)
	}
}

func TestMemoryFirst_AllowsWhenRecentlyQueried(t *testing.T) {
	g := NewMemoryFirst(nil)
	s := freshState()
	s.MemLastQueried = time.Now().Add(-time.Minute)
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/x.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestMemoryFirst_BlocksWhenStaleAndNoClient(t *testing.T) {
	g := NewMemoryFirst(nil)
	s := freshState()
	s.MemLastQueried = time.Now().Add(-700 * time.Second)
	res, err := g.Check(context.Background(), "Edit", map[string]any{"file_path": "/tmp/x.py"}, s, PreToolUse)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
}

func TestMemoryFirst_IgnoresUnwatchedTool(t *testing.T) {
	g := NewMemoryFirst(nil)
	s := freshState()
	res, err := g.Check(context.Background(), "Bash", map[string]any{"command": "ls"}, s, PreToolUse)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func writeClaims(t *testing.T, path string, claims map[string]fileClaim) {
	t.Helper()
	data, err := json.Marshal(claims)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
