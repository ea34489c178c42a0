package gate

import (
	"context"
	"time"

	"github.com/ozmaster/torus-enforcer/internal/memoryrpc"
	"github.com/ozmaster/torus-enforcer/internal/state"
)

// MemoryFirstID is the registry identifier for the memory-first gate.
const MemoryFirstID = "gate_04_memory_first"

// memoryFirstStaleAfter is how long memory_last_queried may go unrefreshed
// before an edit is treated as "didn't check memory first", matching
// original_source's behavioral-anomaly threshold for memory_query_gap (700s
// ago trips it, 60s/30s ago does not — 600s is the documented boundary).
const memoryFirstStaleAfter = 600 * time.Second

var memoryFirstTools = map[string]string{
	"Edit":         "file_path",
	"Write":        "file_path",
	"NotebookEdit": "notebook_path",
}

// memoryFirstQueryParams is sent to the memory worker's "query" method: a
// free-text lookup scoped to the path about to be touched, so a hit that
// returns results also means the agent now has whatever the memory worker
// knew about that path in context.
type memoryFirstQueryParams struct {
	Path string `json:"path"`
}

// MemoryFirst blocks (or, under profiles that downgrade it, warns) an edit
// to a path the agent hasn't consulted memory about recently. Unlike
// ReadBeforeEdit, which checks an in-session fact (FilesRead), MemoryFirst
// actively calls out to the memory worker to refresh the freshness signal
// rather than only reading it, since it is the one gate in the registry
// that exists to make memory-first real rather than assumed.
type MemoryFirst struct {
	Client *memoryrpc.Client
	now    func() time.Time
}

// NewMemoryFirst returns a MemoryFirst gate. client may be nil, in which
// case the gate falls back to consulting state.MemLastQueried alone (the
// worker is simply never dialed), so a stale signal blocks; with a client,
// a failed worker call allows instead.
func NewMemoryFirst(client *memoryrpc.Client) *MemoryFirst {
	return &MemoryFirst{Client: client, now: time.Now}
}

// ID implements Gate.
func (g *MemoryFirst) ID() string { return MemoryFirstID }

// Check implements Gate.
func (g *MemoryFirst) Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error) {
	if event != PreToolUse {
		return Allow(g.ID()), nil
	}
	inputKey, watched := memoryFirstTools[toolName]
	if !watched {
		return Allow(g.ID()), nil
	}
	path, _ := toolInput[inputKey].(string)
	if path == "" {
		return Allow(g.ID()), nil
	}

	nowFn := g.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()
	if !s.MemLastQueried.IsZero() && now.Sub(s.MemLastQueried) < memoryFirstStaleAfter {
		return Allow(g.ID()), nil
	}

	if g.Client != nil {
		err := g.Client.Call(ctx, memoryrpc.MethodQuery, memoryFirstQueryParams{Path: path}, nil)
		if err == nil {
			s.MemLastQueried = now
			return Allow(g.ID()), nil
		}
		// Worker unavailable: fail open rather than block on an infra gap,
		// per §7's WorkerUnavailable handling.
		return Allow(g.ID()), nil
	}

	return NewResult(g.ID(), true, path+": memory has not been queried this session", SeverityWarn), nil
}
