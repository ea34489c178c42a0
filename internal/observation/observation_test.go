package observation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompress_BashOkOutcome(t *testing.T) {
	o := Compress("Bash", map[string]any{"command": "go test ./..."}, map[string]any{"stdout": "PASS", "exit_code": float64(0)}, "sess-1")
	assert.Contains(t, o.Document, "go test ./...")
	assert.Contains(t, o.Document, "-> ok")
	assert.Equal(t, "false", o.Metadata["has_error"])
	assert.Equal(t, "normal", o.Metadata["priority"])
}

func TestCompress_BashFailedHighPriority(t *testing.T) {
	o := Compress("Bash", map[string]any{"command": "go test ./..."}, map[string]any{"stderr": "FAIL", "exit_code": float64(1)}, "sess-1")
	assert.Contains(t, o.Document, "-> failed")
	assert.Equal(t, "true", o.Metadata["has_error"])
	assert.Equal(t, "high", o.Metadata["priority"])
}

func TestCompress_BashTracebackClassifiesErrorPattern(t *testing.T) {
	o := Compress("Bash", map[string]any{"command": "python3 x.py"}, map[string]any{"stdout": "Traceback (most recent call last)"}, "sess-1")
	assert.Equal(t, "true", o.Metadata["has_error"])
	assert.Equal(t, "Traceback", o.Metadata["error_pattern"])
}

func TestCompress_EditRecordsPath(t *testing.T) {
	o := Compress("Edit", map[string]any{"file_path": "/tmp/x.py"}, nil, "sess-1")
	assert.Contains(t, o.Document, "/tmp/x.py")
	assert.Contains(t, o.Metadata["context"], "py")
}

func TestCompress_WriteRecordsByteCount(t *testing.T) {
	o := Compress("Write", map[string]any{"file_path": "/tmp/y.py", "content": "hello"}, nil, "sess-1")
	assert.Contains(t, o.Document, "/tmp/y.py")
	assert.Contains(t, o.Document, "5 chars")
}

func TestCompress_WebFetchConvertsHTMLAndStripsScript(t *testing.T) {
	html := `<html><body><script>alert(1)</script><h1>Title</h1><p>Body text</p></body></html>`
	o := Compress("WebFetch", map[string]any{"content": html}, nil, "sess-1")
	assert.NotContains(t, o.Document, "alert(1)")
	assert.Contains(t, o.Document, "Title")
	assert.Contains(t, o.Document, "Body text")
}

func TestCompress_UnknownToolFallsBackToSummarizedInput(t *testing.T) {
	o := Compress("SomeNewTool", map[string]any{"x": 1}, nil, "sess-1")
	assert.Contains(t, o.Document, "uncategorized")
}

func TestCompress_UserPromptTruncatesLongText(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	o := Compress("UserPrompt", map[string]any{"prompt": string(long)}, nil, "sess-1")
	assert.True(t, len(o.Document) < len(long))
	assert.Contains(t, o.Document, "…")
}

func TestExtractCommandName_SkipsSudoAndAssignments(t *testing.T) {
	assert.Equal(t, "apt-get", extractCommandName("sudo apt-get update"))
	assert.Equal(t, "python3", extractCommandName("VAR=val OTHER=1 python3 x.py"))
}
