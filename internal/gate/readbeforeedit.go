package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

// ReadBeforeEditID is the registry identifier for the read-before-edit gate.
const ReadBeforeEditID = "gate_01_read_before_edit"

// readBeforeEditMemoryGrace is how recently memory must have been queried
// for a blind edit to be let through anyway: an agent that just consulted
// memory about a file plausibly already has its contents in context even
// without an explicit Read call.
const readBeforeEditMemoryGrace = 5 * time.Minute

var readBeforeEditTools = map[string]string{
	"Edit":         "file_path",
	"Write":        "file_path",
	"NotebookEdit": "notebook_path",
}

// ReadBeforeEdit blocks editing a file that has not appeared in
// state.FilesRead this session, unless memory was queried recently enough
// that the agent can be assumed to already know the file's contents.
type ReadBeforeEdit struct {
	now func() time.Time
}

// NewReadBeforeEdit returns a ReadBeforeEdit gate.
func NewReadBeforeEdit() *ReadBeforeEdit {
	return &ReadBeforeEdit{now: time.Now}
}

// ID implements Gate.
func (g *ReadBeforeEdit) ID() string { return ReadBeforeEditID }

// Check implements Gate.
func (g *ReadBeforeEdit) Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error) {
	if event != PreToolUse {
		return Allow(g.ID()), nil
	}
	inputKey, watched := readBeforeEditTools[toolName]
	if !watched {
		return Allow(g.ID()), nil
	}
	path, _ := toolInput[inputKey].(string)
	if path == "" {
		return Allow(g.ID()), nil
	}
	if stringsContain(s.FilesRead, path) {
		return Allow(g.ID()), nil
	}

	nowFn := g.now
	if nowFn == nil {
		nowFn = time.Now
	}
	if !s.MemLastQueried.IsZero() && nowFn().Sub(s.MemLastQueried) < readBeforeEditMemoryGrace {
		return Allow(g.ID()), nil
	}
	return NewResult(g.ID(), true, fmt.Sprintf("%s has not been read this session", path), SeverityWarn), nil
}
