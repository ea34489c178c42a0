package gate

import (
	"github.com/ozmaster/torus-enforcer/internal/memoryrpc"
	"github.com/ozmaster/torus-enforcer/internal/registry"
)

// toolSet is a small helper for building registry.Entry.Tools maps inline.
func toolSet(tools ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		m[t] = struct{}{}
	}
	return m
}

// BuiltinEntries is the default registry, used whenever no gate registry
// YAML file is present on disk. Order here is the canonical priority order
// absent any learned router preference: Tier 1 gates first, then Tier 2,
// then Tier 3, matching §4.2's registry-order tie-break rule.
func BuiltinEntries() []registry.Entry {
	return []registry.Entry{
		{ID: ReadBeforeEditID, Tier: registry.Tier1, Tools: toolSet("Edit", "Write", "NotebookEdit")},
		{ID: NoDestroyID, Tier: registry.Tier1, Tools: toolSet("Bash")},

		{ID: WorkspaceIsolationID, Tier: registry.Tier2, Tools: toolSet("Edit", "Write", "NotebookEdit")},
		{ID: ProofBeforeFixedID, Tier: registry.Tier2, Tools: toolSet("Bash")},
		{ID: MemoryFirstID, Tier: registry.Tier2, Tools: toolSet("Edit", "Write", "NotebookEdit")},

		{ID: RateLimitID, Tier: registry.Tier3, Tools: nil},
		{ID: CanaryID, Tier: registry.Tier3, Tools: nil},
		{ID: SaveFixID, Tier: registry.Tier3, Tools: nil},
	}
}

// BuiltinGates constructs one instance of every gate in BuiltinEntries,
// wired with the given workspace claims path and memory RPC client (nil is
// accepted — MemoryFirst falls back to a read-only check of
// state.MemLastQueried when no client is available). Callers needing to
// override individual gates (tests, alternate claims paths) should build the
// slice by hand instead of calling this helper.
func BuiltinGates(claimsPath string, memClient *memoryrpc.Client) []Gate {
	return []Gate{
		NewReadBeforeEdit(),
		NewNoDestroy(),
		NewWorkspaceIsolation(claimsPath),
		NewProofBeforeFixed(),
		NewMemoryFirst(memClient),
		NewRateLimit(),
		NewCanary(),
		NewSaveFix(),
	}
}
