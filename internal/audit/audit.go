package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ozmaster/torus-enforcer/internal/gate"
)

// Record is one audit entry: one gate evaluation's outcome, appended to the
// daily trail regardless of whether it blocked (§4.8 "every gate
// evaluation is audited, not just the blocking ones").
type Record struct {
	ID         string          `json:"id"`
	Ts         time.Time       `json:"ts"`
	SessionID  string          `json:"session_id"`
	Tool       string          `json:"tool"`
	Gate       string          `json:"gate"`
	Blocked    bool            `json:"blocked"`
	Escalation gate.Escalation `json:"escalation"`
	Severity   gate.Severity   `json:"severity"`
	Message    string          `json:"message,omitempty"`
	DurationMs float64         `json:"duration_ms"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// NewRecord builds a Record for a completed gate check at now.
func NewRecord(now time.Time, sessionID, tool string, r gate.Result) Record {
	return Record{
		ID:         NewID(now),
		Ts:         now,
		SessionID:  sessionID,
		Tool:       tool,
		Gate:       r.GateName,
		Blocked:    r.Blocked,
		Escalation: r.Escalation,
		Severity:   r.Severity,
		Message:    r.Message,
		DurationMs: r.DurationMs,
		Metadata:   r.Metadata,
	}
}

// Trail appends Records to the daily JSONL file under root/audit/.
type Trail struct {
	Root string
}

// NewTrail returns a Trail rooted at root.
func NewTrail(root string) *Trail {
	return &Trail{Root: root}
}

func (t *Trail) pathFor(now time.Time) string {
	return filepath.Join(t.Root, "audit", now.UTC().Format("2006-01-02")+".jsonl")
}

// Append writes rec as one line to the day's trail file (creating it and
// its directory if needed), opened in append mode so concurrent
// short-lived processes never truncate each other's output.
func (t *Trail) Append(rec Record) error {
	path := t.pathFor(rec.Ts)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}
