package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ozmaster/torus-enforcer/internal/state"
)

// CanaryID is the registry identifier for the canary telemetry gate.
const CanaryID = "gate_18_canary"

// canaryRepeatThreshold is the number of consecutive identical (tool, input)
// calls that triggers a repeat warning.
const canaryRepeatThreshold = 6

// canaryTelemetryPath is where one JSONL line is appended per call, for
// out-of-band observability independent of the audit trail.
const canaryTelemetryPath = "/tmp/gate_canary.jsonl"

type canaryTelemetryLine struct {
	Tool         string   `json:"tool"`
	Ts           int64    `json:"ts"`
	TotalCalls   int      `json:"total_calls"`
	UniqueTools  int      `json:"unique_tools"`
	AvgInputSize float64  `json:"avg_input_size"`
	Anomalies    []string `json:"anomalies"`
}

// Canary never blocks or asks. It is a pure observability gate: it tracks
// every tool call's size and sequence, warns (message only) when a tool not
// seen earlier in the session appears (the session's very first tool does
// not warn), and warns when the same
// (tool, input) pair repeats canaryRepeatThreshold times in a row — both
// purely informational, matching the original's canary gate which runs on
// every PreToolUse and PostToolUse call and is never permitted to affect the
// decision.
type Canary struct {
	// TelemetryPath overrides canaryTelemetryPath; empty uses the default.
	TelemetryPath string
	// now is overridable for deterministic tests.
	now func() time.Time
}

// NewCanary returns a Canary gate writing telemetry to the default path.
func NewCanary() *Canary {
	return &Canary{now: time.Now}
}

// ID implements Gate.
func (g *Canary) ID() string { return CanaryID }

// Check implements Gate.
func (g *Canary) Check(ctx context.Context, toolName string, toolInput map[string]any, s *state.State, event EventType) (Result, error) {
	nowFn := g.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()

	seenBefore := len(s.CanarySeenTools) > 0
	isNewTool := !stringsContain(s.CanarySeenTools, toolName)

	size := float64(inputSize(toolInput))
	s.CanaryTotalCalls++
	if s.CanaryToolCounts == nil {
		s.CanaryToolCounts = map[string]int{}
	}
	s.CanaryToolCounts[toolName]++
	if isNewTool {
		s.CanarySeenTools = append(s.CanarySeenTools, toolName)
	}
	if s.CanaryTotalCalls == 1 {
		s.CanarySizeMean = size
	} else {
		s.CanarySizeMean += (size - s.CanarySizeMean) / float64(s.CanaryTotalCalls)
	}

	seq := fmt.Sprintf("%s:%s", toolName, fingerprintInput(toolInput))
	s.CanaryRecentSeq = append(s.CanaryRecentSeq, seq)
	if len(s.CanaryRecentSeq) > canaryRepeatThreshold {
		s.CanaryRecentSeq = s.CanaryRecentSeq[len(s.CanaryRecentSeq)-canaryRepeatThreshold:]
	}
	repeated := len(s.CanaryRecentSeq) == canaryRepeatThreshold && allEqual(s.CanaryRecentSeq)

	var anomalies []string
	var msg string
	switch {
	case seenBefore && isNewTool:
		anomalies = append(anomalies, "new_tool")
		msg = fmt.Sprintf("canary: first time seeing tool %q this session", toolName)
	case repeated:
		anomalies = append(anomalies, "repeated")
		msg = fmt.Sprintf("canary: %d repeated identical calls to %q", canaryRepeatThreshold, toolName)
	}

	g.writeTelemetry(canaryTelemetryLine{
		Tool:         toolName,
		Ts:           now.Unix(),
		TotalCalls:   s.CanaryTotalCalls,
		UniqueTools:  len(s.CanarySeenTools),
		AvgInputSize: s.CanarySizeMean,
		Anomalies:    anomalies,
	})

	if msg == "" {
		return Allow(g.ID()), nil
	}
	return NewResult(g.ID(), false, msg, SeverityWarn).WithEscalation(EscalationWarn), nil
}

func (g *Canary) writeTelemetry(line canaryTelemetryLine) {
	path := g.TelemetryPath
	if path == "" {
		path = canaryTelemetryPath
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = f.Write(data)
}

func inputSize(input map[string]any) int {
	data, err := json.Marshal(input)
	if err != nil {
		return 0
	}
	return len(data)
}

func fingerprintInput(input map[string]any) string {
	data, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	return string(data)
}

func stringsContain(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func allEqual(ss []string) bool {
	if len(ss) == 0 {
		return false
	}
	for _, s := range ss[1:] {
		if s != ss[0] {
			return false
		}
	}
	return true
}
