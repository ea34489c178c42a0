package hookio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozmaster/torus-enforcer/internal/gate"
)

func TestDecode_ValidPreToolUsePayload(t *testing.T) {
	body := `{"hook_event_name":"PreToolUse","tool_name":"Edit","tool_input":{"file_path":"/tmp/x.py"},"session_id":"sess-1"}`
	p, ok, warn := Decode(strings.NewReader(body))
	require.True(t, ok)
	assert.Empty(t, warn)
	assert.Equal(t, gate.PreToolUse, p.EventType)
	assert.Equal(t, "Edit", p.ToolName)
	assert.Equal(t, "sess-1", p.SessionID)
	assert.Equal(t, "/tmp/x.py", p.ToolInput["file_path"])
}

func TestDecode_MalformedJSONFailsOpen(t *testing.T) {
	_, ok, warn := Decode(strings.NewReader("{not json"))
	assert.False(t, ok)
	assert.NotEmpty(t, warn)
}

func TestDecode_MissingSessionIDFailsOpen(t *testing.T) {
	body := `{"hook_event_name":"PreToolUse","tool_name":"Edit"}`
	_, ok, warn := Decode(strings.NewReader(body))
	assert.False(t, ok)
	assert.Contains(t, warn, "session_id")
}

func TestDecode_MissingToolNameFailsOpen(t *testing.T) {
	body := `{"hook_event_name":"PreToolUse","session_id":"sess-1"}`
	_, ok, warn := Decode(strings.NewReader(body))
	assert.False(t, ok)
	assert.Contains(t, warn, "tool_name")
}

func TestDecode_UnrecognizedEventNameFailsOpen(t *testing.T) {
	body := `{"hook_event_name":"WeirdEvent","tool_name":"Edit","session_id":"sess-1"}`
	_, ok, warn := Decode(strings.NewReader(body))
	assert.False(t, ok)
	assert.Contains(t, warn, "hook_event_name")
}

func TestDecode_MissingToolInputDefaultsToEmptyMap(t *testing.T) {
	body := `{"hook_event_name":"PostToolUse","tool_name":"Bash","session_id":"sess-1"}`
	p, ok, _ := Decode(strings.NewReader(body))
	require.True(t, ok)
	assert.NotNil(t, p.ToolInput)
	assert.Empty(t, p.ToolInput)
}

func TestWrite_NilDataIsNoop(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	assert.Empty(t, buf.Bytes())
}

func TestWrite_WritesGivenBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []byte(`{"ok":true}`)))
	assert.Equal(t, `{"ok":true}`, buf.String())
}
