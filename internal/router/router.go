// Package router computes gate evaluation order for one tool invocation,
// per §4.3: start from the registry's applicable-to-tool list, drop
// profile-disabled gates, float Tier-1 gates to the front, then sort the
// remainder by descending learned preference (a persisted Q-table),
// stable-breaking ties by registry order. The Q-table itself is a small
// reinforcement signal — gates that end up blocking get nudged forward,
// gates that consistently pass get nudged back — not a machine-learning
// model; the name follows the specification's own vocabulary.
package router

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ozmaster/torus-enforcer/internal/config"
	"github.com/ozmaster/torus-enforcer/internal/registry"
	"github.com/ozmaster/torus-enforcer/internal/state"
)

const (
	rewardBlock = 1.0
	rewardPass  = -0.05
)

// qKey is the (gate, tool) pair the Q-table is keyed by.
type qKey struct {
	Gate string `json:"gate"`
	Tool string `json:"tool"`
}

func (k qKey) string() string { return k.Gate + "\x00" + k.Tool }

// Router orders gates for dispatch and maintains the persisted Q-table.
// A Router is safe for concurrent use; in practice the enforcement process
// is single-threaded per invocation, but the tracker may flush concurrently
// with a read in tests.
type Router struct {
	reg  *registry.Registry
	path string

	mu     sync.Mutex
	q      map[string]float64
	loaded bool
	dirty  bool
}

// New returns a Router over reg, persisting its Q-table at qTablePath (lazy
// loaded on first use, per §4.3's "lazy load, periodic flush").
func New(reg *registry.Registry, qTablePath string) *Router {
	return &Router{reg: reg, path: qTablePath}
}

func (r *Router) ensureLoaded() {
	if r.loaded {
		return
	}
	r.loaded = true
	r.q = map[string]float64{}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	var entries []struct {
		Key   qKey    `json:"key"`
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return
	}
	for _, e := range entries {
		r.q[e.Key.string()] = e.Value
	}
}

// Order computes the dispatch order for tool under profile overrides in
// profiles (active profile resolved from s), per §4.3's four steps.
func (r *Router) Order(tool string, s *state.State, profiles config.Profiles) []string {
	r.mu.Lock()
	r.ensureLoaded()
	r.mu.Unlock()

	applicable := r.reg.ApplicableTo(tool)
	kept := make([]string, 0, len(applicable))
	for _, id := range applicable {
		if profiles.ShouldSkipForProfile(id, s) {
			continue
		}
		kept = append(kept, id)
	}

	var tier1, rest []string
	for _, id := range kept {
		if r.reg.TierOf(id) == registry.Tier1 {
			tier1 = append(tier1, id)
		} else {
			rest = append(rest, id)
		}
	}

	regPos := make(map[string]int, len(kept))
	for i, id := range r.reg.Order() {
		regPos[id] = i
	}

	r.mu.Lock()
	qOf := func(id string) float64 { return r.q[qKey{Gate: id, Tool: tool}.string()] }
	r.mu.Unlock()

	sort.SliceStable(rest, func(i, j int) bool {
		qi, qj := qOf(rest[i]), qOf(rest[j])
		if qi != qj {
			return qi > qj
		}
		return regPos[rest[i]] < regPos[rest[j]]
	})

	return append(tier1, rest...)
}

// RecordBlock nudges (gate, tool) upward after a blocking result, so future
// invocations of the same tool check this gate earlier.
func (r *Router) RecordBlock(gate, tool string) {
	r.update(gate, tool, rewardBlock)
}

// RecordPass nudges (gate, tool) downward after a non-blocking result.
func (r *Router) RecordPass(gate, tool string) {
	r.update(gate, tool, rewardPass)
}

func (r *Router) update(gate, tool string, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLoaded()
	k := qKey{Gate: gate, Tool: tool}.string()
	r.q[k] += delta
	r.dirty = true
}

// Flush persists the Q-table if it has changed since the last Flush, via
// temp-file-then-rename in the table's own directory.
func (r *Router) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return nil
	}
	entries := make([]struct {
		Key   qKey    `json:"key"`
		Value float64 `json:"value"`
	}, 0, len(r.q))
	for k, v := range r.q {
		var gate, tool string
		for i := 0; i < len(k); i++ {
			if k[i] == 0 {
				gate, tool = k[:i], k[i+1:]
				break
			}
		}
		entries = append(entries, struct {
			Key   qKey    `json:"key"`
			Value float64 `json:"value"`
		}{Key: qKey{Gate: gate, Tool: tool}, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key.Gate != entries[j].Key.Gate {
			return entries[i].Key.Gate < entries[j].Key.Gate
		}
		return entries[i].Key.Tool < entries[j].Key.Tool
	})

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-qtable-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	r.dirty = false
	return nil
}
