package state

import (
	"sort"
	"time"
)

// Cap bounds every unbounded collection in s according to the specification:
// rate window timestamps older than 120s are dropped; gate_timing_stats keeps
// the top 20 entries by count; the two canary timestamp sequences keep their
// newest 600 entries; canary_recent_seq keeps its newest 10; and
// gate_block_outcomes keeps its newest 100. Cap is idempotent and must be
// called on every path that would persist durable state.
func (s *State) Cap(now time.Time) {
	s.RateWindowTs = pruneOlderThan(s.RateWindowTs, now, 120*time.Second)
	s.GateTimingStats = capTimingStatsByCount(s.GateTimingStats, 20)
	s.CanaryShortTs = keepNewestTimes(s.CanaryShortTs, 600)
	s.CanaryLongTs = keepNewestTimes(s.CanaryLongTs, 600)
	s.CanaryRecentSeq = keepNewestStrings(s.CanaryRecentSeq, 10)
	s.GateBlockOutcom = keepNewestBlocks(s.GateBlockOutcom, 100)
}

func pruneOlderThan(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	boundary := now.Add(-window)
	out := ts[:0:0]
	for _, t := range ts {
		if t.After(boundary) {
			out = append(out, t)
		}
	}
	return out
}

func keepNewestTimes(ts []time.Time, cap int) []time.Time {
	if len(ts) <= cap {
		return ts
	}
	sorted := append([]time.Time(nil), ts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return sorted[len(sorted)-cap:]
}

func keepNewestStrings(seq []string, cap int) []string {
	if len(seq) <= cap {
		return seq
	}
	return append([]string(nil), seq[len(seq)-cap:]...)
}

func keepNewestBlocks(blocks []BlockOutcome, cap int) []BlockOutcome {
	if len(blocks) <= cap {
		return blocks
	}
	sorted := append([]BlockOutcome(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ts.Before(sorted[j].Ts) })
	return sorted[len(sorted)-cap:]
}

// capTimingStatsByCount keeps the `cap` entries with the highest Count,
// breaking ties by gate name for determinism.
func capTimingStatsByCount(stats map[string]GateTimingStat, cap int) map[string]GateTimingStat {
	if len(stats) <= cap {
		return stats
	}
	type entry struct {
		name string
		stat GateTimingStat
	}
	entries := make([]entry, 0, len(stats))
	for name, stat := range stats {
		entries = append(entries, entry{name, stat})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].stat.Count != entries[j].stat.Count {
			return entries[i].stat.Count > entries[j].stat.Count
		}
		return entries[i].name < entries[j].name
	})
	out := make(map[string]GateTimingStat, cap)
	for _, e := range entries[:cap] {
		out[e.name] = e.stat
	}
	return out
}
