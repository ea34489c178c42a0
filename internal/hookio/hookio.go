// Package hookio decodes the host's PreToolUse/PostToolUse payload from
// stdin and encodes the enforcement pipeline's decision to stdout, per §5.
// A malformed payload fails open: the pipeline allows the call and records a
// warning, rather than ever blocking on input it cannot parse.
package hookio

import (
	"encoding/json"
	"io"

	"github.com/ozmaster/torus-enforcer/internal/gate"
)

// Payload is the decoded stdin document.
type Payload struct {
	EventType gate.EventType
	ToolName  string
	ToolInput map[string]any
	SessionID string
}

type rawPayload struct {
	HookEventName string         `json:"hook_event_name"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	SessionID     string         `json:"session_id"`
}

// Decode reads and parses one payload from r. A parse error or missing
// session_id/tool_name returns ok=false with a human-readable warning; the
// caller is expected to allow and log rather than propagate the error as a
// blocking condition (§5 "invalid payload never blocks").
func Decode(r io.Reader) (Payload, bool, string) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Payload{}, false, "failed to read hook payload: " + err.Error()
	}
	var raw rawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, false, "malformed hook payload JSON: " + err.Error()
	}
	if raw.SessionID == "" {
		return Payload{}, false, "hook payload missing session_id"
	}
	if raw.ToolName == "" {
		return Payload{}, false, "hook payload missing tool_name"
	}
	event := gate.EventType(raw.HookEventName)
	if event != gate.PreToolUse && event != gate.PostToolUse {
		return Payload{}, false, "hook payload has unrecognized hook_event_name: " + raw.HookEventName
	}
	input := raw.ToolInput
	if input == nil {
		input = map[string]any{}
	}
	return Payload{
		EventType: event,
		ToolName:  raw.ToolName,
		ToolInput: input,
		SessionID: raw.SessionID,
	}, true, ""
}

// Write writes data (the result of decision.Decision.Encode) to w, a no-op
// for nil data (the allow case).
func Write(w io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return err
}
