package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

// RateLimitID is the registry identifier for the session-wide call-rate
// gate. Distinct from internal/ratelimit, which is the general-purpose
// token-bucket used by the runtime for per-tool/per-gate/per-api throttling;
// this gate implements the original's specific session-rate heuristic.
const RateLimitID = "gate_11_rate_limit"

const (
	rateLimitWindowSeconds = 120
	rateLimitWarnPerMin    = 40.0
	rateLimitBlockPerMin   = 60.0
	// rateLimitElapsedFloor prevents a false block in the first seconds of a
	// session, where a handful of calls divided by a near-zero elapsed time
	// would otherwise compute an enormous rate. Not specified by name in the
	// kept original source; chosen as a value comfortably larger than the
	// time a few back-to-back tool calls take, so genuine rapid-fire abuse
	// still trips the threshold well before the window closes.
	rateLimitElapsedFloor = 10 * time.Second
)

// RateLimit blocks PreToolUse calls once the recent call rate (calls per
// elapsed minute, over a rolling rateLimitWindowSeconds window) exceeds
// rateLimitBlockPerMin, and warns above rateLimitWarnPerMin without
// blocking. PostToolUse always passes, since the rate is a property of
// requests being issued, not of their results.
type RateLimit struct {
	now func() time.Time
}

// NewRateLimit returns a RateLimit gate.
func NewRateLimit() *RateLimit {
	return &RateLimit{now: time.Now}
}

// ID implements Gate.
func (g *RateLimit) ID() string { return RateLimitID }

// Check implements Gate.
func (g *RateLimit) Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error) {
	if event == PostToolUse {
		return Allow(g.ID()), nil
	}
	nowFn := g.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()

	s.RateWindowTs = append(s.RateWindowTs, now)
	cutoff := now.Add(-rateLimitWindowSeconds * time.Second)
	kept := s.RateWindowTs[:0:0]
	for _, ts := range s.RateWindowTs {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.RateWindowTs = kept

	elapsed := now.Sub(s.RateWindowTs[0])
	if elapsed < rateLimitElapsedFloor {
		elapsed = rateLimitElapsedFloor
	}
	rate := float64(len(s.RateWindowTs)) / elapsed.Minutes()

	switch {
	case rate >= rateLimitBlockPerMin:
		return NewResult(g.ID(), true, fmt.Sprintf("tool call rate %.1f calls/min exceeds limit", rate), SeverityError), nil
	case rate >= rateLimitWarnPerMin:
		return NewResult(g.ID(), false, fmt.Sprintf("tool call rate %.1f calls/min is elevated", rate), SeverityWarn).WithEscalation(EscalationWarn), nil
	default:
		return Allow(g.ID()), nil
	}
}
