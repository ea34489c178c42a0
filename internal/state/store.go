package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store is the file-backed durable state substrate described in §4.1 of the
// specification. The enforcement pipeline only ever calls Load and
// WriteSideband; MergeSidebandIntoState is the tracker's exclusive operation
// (§3 "Lifecycle": "a single background tracker is the only writer to the
// durable file").
type Store struct {
	Root string
}

// New returns a Store rooted at root (the directory containing state/,
// audit/, and the sideband files — see the specification's File paths
// table).
func New(root string) *Store {
	return &Store{Root: root}
}

func (st *Store) stateDir() string       { return filepath.Join(st.Root, "state") }
func (st *Store) statePath(id string) string {
	return filepath.Join(st.stateDir(), id+".json")
}
func (st *Store) sidebandPath(id string) string {
	return filepath.Join(st.stateDir(), id+".sideband.json")
}

// Load reads and fully migrates the session record for sessionID. A missing
// file or corrupt JSON both fall back to Default() rather than erroring,
// per §4.1's failure semantics; State.Warnings records what happened for the
// caller to log.
func (st *Store) Load(sessionID string, now time.Time) *State {
	path := st.statePath(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		s := Default(sessionID, now)
		if !os.IsNotExist(err) {
			s.Warnings = append(s.Warnings, fmt.Sprintf("state file unreadable: %v (defaulted)", err))
		}
		return s
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s := Default(sessionID, now)
		s.Warnings = append(s.Warnings, fmt.Sprintf("state file corrupt: %v (defaulted)", err))
		return s
	}
	return migrate(raw, sessionID, now)
}

// WriteSideband atomically replaces the sideband file for sessionID with the
// given patch (the set of keys mutated by gates during this invocation),
// plus the `_sideband_refreshed` sentinel. This is the only write the
// enforcement pipeline performs to the durable substrate; it never touches
// the primary state file.
func (st *Store) WriteSideband(sessionID string, patch map[string]any) error {
	if patch == nil {
		patch = map[string]any{}
	}
	patch["_sideband_refreshed"] = true
	return atomicWriteJSON(st.sidebandPath(sessionID), patch)
}

// atomicWriteJSON marshals v and writes it via create-temp-then-rename in
// the target's own directory, so a reader never observes a partial file.
func atomicWriteJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
