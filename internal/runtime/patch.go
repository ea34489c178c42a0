package runtime

import (
	"encoding/json"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

// clonePatchSource snapshots s's current on-disk shape as a raw field map,
// the "before" side of the sideband diff Run produces. Marshal failures
// collapse to an empty map rather than panicking — in the worst case every
// field then looks "changed" and the sideband simply carries more keys than
// strictly necessary, which is harmless (the tracker's merge is idempotent).
func clonePatchSource(s *state.State) map[string]json.RawMessage {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]json.RawMessage{}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return map[string]json.RawMessage{}
	}
	return raw
}

// patchFrom diffs before against after's current shape, returning every
// top-level field whose serialized bytes changed, per §4.9 "Sideband:
// collect the set of keys the gates mutated on state". Fields with no
// exported JSON tag (Warnings) never appear in either map and so are never
// part of a patch.
func patchFrom(before map[string]json.RawMessage, after *state.State) map[string]any {
	afterRaw := clonePatchSource(after)
	patch := map[string]any{}
	for key, afterVal := range afterRaw {
		beforeVal, existed := before[key]
		if existed && string(beforeVal) == string(afterVal) {
			continue
		}
		var v any
		if err := json.Unmarshal(afterVal, &v); err != nil {
			continue
		}
		patch[key] = v
	}
	return patch
}
