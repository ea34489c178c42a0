// Package registry holds the immutable, compile-time ordered list of gate
// identifiers together with their tier classification and tool applicability
// map, as specified in §4.2. It intentionally depends on nothing but gate
// identifiers — the router depends on it, never the reverse (see the
// specification's "no circular dependencies" design note).
package registry

import "fmt"

// Tier classifies a gate's priority and skippability.
type Tier int

const (
	// Tier1 gates must run, are never skipped by the circuit breaker, and
	// are never downgraded by a security profile.
	Tier1 Tier = 1
	// Tier2 gates are policy gates: skippable by the circuit breaker or a
	// profile downgrade, and cacheable.
	Tier2 Tier = 2
	// Tier3 gates are advisory and may be disabled entirely by profile.
	Tier3 Tier = 3
)

// Entry describes one registered gate: its identifier, tier, and the set of
// tools it applies to (nil means universal — applies to every tool).
type Entry struct {
	ID    string
	Tier  Tier
	Tools map[string]struct{} // nil = universal
}

// Registry is the immutable ordered gate list plus derived lookup indexes.
// Registry order is the canonical priority order used by the router.
type Registry struct {
	order   []string
	byID    map[string]Entry
}

// New builds a Registry from entries, validating the consistency invariant
// from §8 property 2: every gate id has exactly one entry, and there are no
// tool-map keys outside the module list (trivially true here since Tools is
// attached to the same Entry — the check matters once registries are loaded
// from an external config file, see internal/config).
func New(entries []Entry) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(entries)),
		byID:  make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("registry: gate entry with empty id")
		}
		if _, dup := r.byID[e.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate gate id %q", e.ID)
		}
		r.byID[e.ID] = e
		r.order = append(r.order, e.ID)
	}
	return r, nil
}

// ErrRegistryMismatch describes a tool-map key that does not appear in the
// module list or vice versa (§4.2). No function in this package returns it:
// New takes each gate's tool set from its own Entry.
type ErrRegistryMismatch struct {
	MissingFromModules []string
	MissingFromToolMap []string
}

func (e *ErrRegistryMismatch) Error() string {
	return fmt.Sprintf("registry mismatch: missing from modules=%v, missing from tool map=%v",
		e.MissingFromModules, e.MissingFromToolMap)
}

// Order returns the gate ids in canonical registry (priority) order.
func (r *Registry) Order() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// TierOf returns the tier of gate id, or 0 if unknown.
func (r *Registry) TierOf(id string) Tier {
	return r.byID[id].Tier
}

// Has reports whether id is a registered gate.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// ApplicableTo returns every registered gate id applicable to tool, in
// registry order: gates whose Tools set contains tool, plus every universal
// gate (Tools == nil).
func (r *Registry) ApplicableTo(tool string) []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		e := r.byID[id]
		if e.Tools == nil {
			out = append(out, id)
			continue
		}
		if _, ok := e.Tools[tool]; ok {
			out = append(out, id)
		}
	}
	return out
}
