package state

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Tracker implements the background process that owns the durable state
// file. It is the sole consumer of sidebands: it reads the matching
// PostToolUse sideband, folds its keys into the durable record, then deletes
// it. The enforcement pipeline never calls these methods directly.
type Tracker struct {
	Store *Store
}

// NewTracker returns a Tracker over store.
func NewTracker(store *Store) *Tracker {
	return &Tracker{Store: store}
}

// MergeSidebandIntoState folds the sideband's mutated keys into the durable
// record for sessionID, enforces every collection cap, writes the result via
// temp-file-then-rename, and deletes the sideband. If no sideband exists this
// is a no-op (not an error) — the matching PostToolUse invocation may not
// have produced any mutations.
func (t *Tracker) MergeSidebandIntoState(sessionID string, now time.Time) error {
	sidebandPath := t.Store.sidebandPath(sessionID)
	raw, err := os.ReadFile(sidebandPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read sideband: %w", err)
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(raw, &patch); err != nil {
		// A corrupt sideband is tolerated (SidebandWriteFailed-adjacent):
		// drop it rather than corrupting the durable record.
		_ = os.Remove(sidebandPath)
		return fmt.Errorf("corrupt sideband (discarded): %w", err)
	}

	durableRaw := t.loadRawDurable(sessionID)
	for k, v := range patch {
		if strings.HasPrefix(k, "_") {
			// Keys beginning with "_" are not merged. That includes the
			// _sideband_refreshed sentinel, which migrate would drop anyway
			// since it is not a State field.
			continue
		}
		durableRaw[k] = v
	}

	merged := migrate(durableRaw, sessionID, now)
	merged.Cap(now)

	if err := atomicWriteJSON(t.Store.statePath(sessionID), merged); err != nil {
		return fmt.Errorf("write durable state: %w", err)
	}
	if err := os.Remove(sidebandPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sideband: %w", err)
	}
	return nil
}

// loadRawDurable reads the current durable file as a raw field map, or an
// empty map if it does not exist or is corrupt (the merge then proceeds from
// schema defaults, same as a fresh Load would).
func (t *Tracker) loadRawDurable(sessionID string) map[string]json.RawMessage {
	data, err := os.ReadFile(t.Store.statePath(sessionID))
	if err != nil {
		return map[string]json.RawMessage{}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return map[string]json.RawMessage{}
	}
	return raw
}
