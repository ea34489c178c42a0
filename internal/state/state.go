// Package state implements the per-session mutable record described in the
// specification's Data Model: a durable JSON document on disk, a per-session
// enforcer sideband used for single-writer semantics, and the migration and
// capping rules applied on every load/save. The shape mirrors the teacher's
// session.Session / session.RunMeta records (runtime/agent/session), but is
// backed by a JSON file instead of a Mongo collection, since the pipeline has
// no persistent process to hold a database connection.
package state

import "time"

// CurrentVersion is the schema version written by this build. Migration
// rewrites _version to this value on every load, per the spec's "_version is
// monotone non-decreasing across migrations" invariant.
const CurrentVersion = 3

// SecurityProfile is one of the four recognized enforcement postures.
type SecurityProfile string

const (
	ProfileStrict     SecurityProfile = "strict"
	ProfileBalanced   SecurityProfile = "balanced"
	ProfilePermissive SecurityProfile = "permissive"
	ProfileRefactor   SecurityProfile = "refactor"

	// DefaultProfile is used whenever SecurityProfile is empty or invalid.
	DefaultProfile = ProfileBalanced
)

// Valid reports whether p is one of the four recognized profiles.
func (p SecurityProfile) Valid() bool {
	switch p {
	case ProfileStrict, ProfileBalanced, ProfilePermissive, ProfileRefactor:
		return true
	default:
		return false
	}
}

// GateTimingStat aggregates observed durations for one gate across a
// session. Invariant: Count >= 1, TotalMs >= 0, MinMs <= MaxMs.
type GateTimingStat struct {
	Count   int     `json:"count"`
	TotalMs float64 `json:"total_ms"`
	MinMs   float64 `json:"min_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// Observe folds one duration sample into the stat in place.
func (s *GateTimingStat) Observe(ms float64) {
	if s.Count == 0 {
		s.MinMs = ms
		s.MaxMs = ms
	} else {
		if ms < s.MinMs {
			s.MinMs = ms
		}
		if ms > s.MaxMs {
			s.MaxMs = ms
		}
	}
	s.Count++
	s.TotalMs += ms
}

// BlockOutcome records one gate block in the rolling "gate_block_outcomes"
// window.
type BlockOutcome struct {
	Gate   string    `json:"gate"`
	Tool   string    `json:"tool"`
	Reason string    `json:"reason"`
	Ts     time.Time `json:"ts"`
}

// State is the fully migrated, in-memory representation of one session's
// durable record. JSON field names match the specification's Data Model
// exactly so the on-disk format is stable across the Go and original Python
// implementations (see original_source/hooks/tests/test_gates_operational.py
// for the field names this mirrors).
type State struct {
	Version int `json:"_version"`

	SessionStart time.Time `json:"session_start"`

	TotalToolCalls  int                        `json:"total_tool_calls"`
	ToolCallCounts  map[string]int             `json:"tool_call_counts"`
	FilesRead       []string                   `json:"files_read"`
	FilesEdited     []string                   `json:"files_edited"`
	PendingVerify   []string                   `json:"pending_verification"`
	VerifiedFixes   []string                   `json:"verified_fixes"`
	MemLastQueried  time.Time                  `json:"memory_last_queried"`
	RateWindowTs    []time.Time                `json:"rate_window_timestamps"`
	GateTimingStats map[string]GateTimingStat  `json:"gate_timing_stats"`
	GateBlockOutcom []BlockOutcome             `json:"gate_block_outcomes"`

	CanaryTotalCalls int            `json:"canary_total_calls"`
	CanaryToolCounts map[string]int `json:"canary_tool_counts"`
	CanarySeenTools  []string       `json:"canary_seen_tools"`
	CanaryShortTs    []time.Time    `json:"canary_short_timestamps"`
	CanaryLongTs     []time.Time    `json:"canary_long_timestamps"`
	CanaryRecentSeq  []string       `json:"canary_recent_seq"`
	CanarySizeMean   float64        `json:"canary_size_mean"`

	SecurityProfile  SecurityProfile `json:"security_profile"`
	Gate6WarnCount   int             `json:"gate6_warn_count"`
	LastExitPlanMode time.Time       `json:"last_exit_plan_mode"`

	ErrorPatternCounts map[string]int `json:"error_pattern_counts"`
	ModelAgentUsage    map[string]int `json:"model_agent_usage"`

	// SessionID is stamped on load for gate convenience. Its JSON key begins
	// with an underscore, so the tracker skips it when merging a sideband;
	// the tracker's write of the merged record does include it in the
	// durable file.
	SessionID string `json:"_session_id,omitempty"`

	// Warnings accumulates non-fatal migration notices for this load. Not
	// persisted; consumed by the caller for logging only.
	Warnings []string `json:"-"`
}

// Default returns a fresh State with every field at its typed zero/default,
// as created lazily on first load for a session id.
func Default(sessionID string, now time.Time) *State {
	return &State{
		Version:            CurrentVersion,
		SessionStart:       now,
		ToolCallCounts:     map[string]int{},
		FilesRead:          []string{},
		FilesEdited:        []string{},
		PendingVerify:      []string{},
		VerifiedFixes:      []string{},
		RateWindowTs:       []time.Time{},
		GateTimingStats:    map[string]GateTimingStat{},
		GateBlockOutcom:    []BlockOutcome{},
		CanaryToolCounts:   map[string]int{},
		CanarySeenTools:    []string{},
		CanaryShortTs:      []time.Time{},
		CanaryLongTs:       []time.Time{},
		CanaryRecentSeq:    []string{},
		SecurityProfile:    DefaultProfile,
		ErrorPatternCounts: map[string]int{},
		ModelAgentUsage:    map[string]int{},
		SessionID:          sessionID,
	}
}

// AddFileRead appends path to FilesRead if not already present (deduped on
// insert, per the Data Model).
func (s *State) AddFileRead(path string) {
	if !containsString(s.FilesRead, path) {
		s.FilesRead = append(s.FilesRead, path)
	}
}

// AddFileEdited appends path to FilesEdited if not already present.
func (s *State) AddFileEdited(path string) {
	if !containsString(s.FilesEdited, path) {
		s.FilesEdited = append(s.FilesEdited, path)
	}
}

// MarkVerified moves an id from PendingVerify into VerifiedFixes, preserving
// the invariant VerifiedFixes ∩ PendingVerification = ∅.
func (s *State) MarkVerified(id string) {
	s.PendingVerify = removeString(s.PendingVerify, id)
	if !containsString(s.VerifiedFixes, id) {
		s.VerifiedFixes = append(s.VerifiedFixes, id)
	}
}

// AddPendingVerification appends id to PendingVerify unless it is already
// verified or already pending.
func (s *State) AddPendingVerification(id string) {
	if containsString(s.VerifiedFixes, id) {
		return
	}
	if !containsString(s.PendingVerify, id) {
		s.PendingVerify = append(s.PendingVerify, id)
	}
}

// RecordToolCall increments the total and per-tool counters.
func (s *State) RecordToolCall(tool string) {
	s.TotalToolCalls++
	if s.ToolCallCounts == nil {
		s.ToolCallCounts = map[string]int{}
	}
	s.ToolCallCounts[tool]++
}

// RecordGateTiming folds one duration sample (ms) into the named gate's
// running stat.
func (s *State) RecordGateTiming(gate string, ms float64) {
	if s.GateTimingStats == nil {
		s.GateTimingStats = map[string]GateTimingStat{}
	}
	stat := s.GateTimingStats[gate]
	stat.Observe(ms)
	s.GateTimingStats[gate] = stat
}

// RecordBlock appends a block outcome to the gate_block_outcomes history.
func (s *State) RecordBlock(gate, tool, reason string, ts time.Time) {
	s.GateBlockOutcom = append(s.GateBlockOutcom, BlockOutcome{
		Gate: gate, Tool: tool, Reason: reason, Ts: ts,
	})
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
