package state

import (
	"encoding/json"
	"fmt"
	"time"
)

// migrate decodes raw into a fresh State, field by field. Missing fields keep
// their typed default; fields whose JSON shape does not match the declared
// type are replaced with their default and recorded in Warnings instead of
// aborting the load, satisfying "missing state file on load -> defaults,
// corrupt JSON -> defaults plus warning" without ever crashing the caller.
// Migration is idempotent: running it twice over its own output is a no-op
// beyond rewriting _version.
func migrate(raw map[string]json.RawMessage, sessionID string, now time.Time) *State {
	s := Default(sessionID, now)

	field(raw, "session_start", &s.SessionStart, s.Warnings2())
	field(raw, "total_tool_calls", &s.TotalToolCalls, s.Warnings2())
	fieldMap(raw, "tool_call_counts", &s.ToolCallCounts, s.Warnings2())
	fieldSlice(raw, "files_read", &s.FilesRead, s.Warnings2())
	fieldSlice(raw, "files_edited", &s.FilesEdited, s.Warnings2())
	fieldSlice(raw, "pending_verification", &s.PendingVerify, s.Warnings2())
	fieldSlice(raw, "verified_fixes", &s.VerifiedFixes, s.Warnings2())
	field(raw, "memory_last_queried", &s.MemLastQueried, s.Warnings2())
	fieldSlice(raw, "rate_window_timestamps", &s.RateWindowTs, s.Warnings2())
	fieldGateTimingStats(raw, "gate_timing_stats", &s.GateTimingStats, s.Warnings2())
	fieldBlockOutcomes(raw, "gate_block_outcomes", &s.GateBlockOutcom, s.Warnings2())

	field(raw, "canary_total_calls", &s.CanaryTotalCalls, s.Warnings2())
	fieldMap(raw, "canary_tool_counts", &s.CanaryToolCounts, s.Warnings2())
	fieldSlice(raw, "canary_seen_tools", &s.CanarySeenTools, s.Warnings2())
	fieldSlice(raw, "canary_short_timestamps", &s.CanaryShortTs, s.Warnings2())
	fieldSlice(raw, "canary_long_timestamps", &s.CanaryLongTs, s.Warnings2())
	fieldSlice(raw, "canary_recent_seq", &s.CanaryRecentSeq, s.Warnings2())
	field(raw, "canary_size_mean", &s.CanarySizeMean, s.Warnings2())

	var profile string
	field(raw, "security_profile", &profile, s.Warnings2())
	if SecurityProfile(profile).Valid() {
		s.SecurityProfile = SecurityProfile(profile)
	} else {
		s.SecurityProfile = DefaultProfile
	}
	field(raw, "gate6_warn_count", &s.Gate6WarnCount, s.Warnings2())
	field(raw, "last_exit_plan_mode", &s.LastExitPlanMode, s.Warnings2())
	fieldMap(raw, "error_pattern_counts", &s.ErrorPatternCounts, s.Warnings2())
	fieldMap(raw, "model_agent_usage", &s.ModelAgentUsage, s.Warnings2())

	s.Version = CurrentVersion // always rewritten to current on load, per spec

	return s
}

// Warnings2 returns a pointer-stable handle to s.Warnings for the helper
// functions above to append to. It exists because field/fieldSlice take
// *[]string rather than *State to stay generic over value types.
func (s *State) Warnings2() *[]string { return &s.Warnings }

func field[T any](raw map[string]json.RawMessage, key string, dst *T, warnings *[]string) {
	r, ok := raw[key]
	if !ok {
		return
	}
	prev := *dst
	if err := json.Unmarshal(r, dst); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("field %q: %v (defaulted)", key, err))
		*dst = prev
	}
}

func fieldMap[V any](raw map[string]json.RawMessage, key string, dst *map[string]V, warnings *[]string) {
	r, ok := raw[key]
	if !ok {
		return
	}
	var m map[string]V
	if err := json.Unmarshal(r, &m); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("field %q: %v (defaulted)", key, err))
		return
	}
	if m == nil {
		m = map[string]V{}
	}
	*dst = m
}

func fieldSlice[T any](raw map[string]json.RawMessage, key string, dst *[]T, warnings *[]string) {
	r, ok := raw[key]
	if !ok {
		return
	}
	var sl []T
	if err := json.Unmarshal(r, &sl); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("field %q: %v (defaulted)", key, err))
		return
	}
	if sl == nil {
		sl = []T{}
	}
	*dst = sl
}

func fieldGateTimingStats(raw map[string]json.RawMessage, key string, dst *map[string]GateTimingStat, warnings *[]string) {
	fieldMap(raw, key, dst, warnings)
	// Enforce the stated invariant on every loaded entry: count >= 1 and
	// min <= max. Entries that violate it are dropped rather than trusted.
	for k, v := range *dst {
		if v.Count < 1 || v.MinMs > v.MaxMs || v.TotalMs < 0 {
			delete(*dst, k)
			*warnings = append(*warnings, fmt.Sprintf("gate_timing_stats[%q] violates invariants (dropped)", k))
		}
	}
}

func fieldBlockOutcomes(raw map[string]json.RawMessage, key string, dst *[]BlockOutcome, warnings *[]string) {
	fieldSlice(raw, key, dst, warnings)
}
