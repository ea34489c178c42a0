// Package observation implements the per-tool-call compression described in
// §4.9: turn a (tool, tool_input, tool_response) triple into a short,
// greppable document plus structured metadata suitable for the audit trail
// and for the memory worker's ingestion queue. Formatting rules are
// per-tool, grounded on shared/observation.py's compress_observation
// behavior: Bash records command + success/failure and classifies stack
// traces, Edit/Write record the target path (Write also records byte
// count), WebFetch/WebSearch content (the tool_input "content" field) is
// flattened from HTML to Markdown before compression so the stored document
// stays readable and bounded.
package observation

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
)

// Observation is the compressed record for one tool call.
type Observation struct {
	Document  string            `json:"document"`
	Metadata  map[string]string `json:"metadata"`
	SessionID string            `json:"session_id"`
	Tool      string            `json:"tool"`
}

var errorPatterns = []string{"Traceback", "panic:", "SyntaxError", "fatal:", "Exception"}

// Compress builds an Observation for one completed tool call.
func Compress(tool string, input map[string]any, response any, sessionID string) Observation {
	meta := map[string]string{}
	var doc string

	hasError, errPattern := classifyResponse(response)
	meta["has_error"] = strconv.FormatBool(hasError)
	if errPattern != "" {
		meta["error_pattern"] = errPattern
	}

	switch tool {
	case "Bash":
		cmd, _ := input["command"].(string)
		name := extractCommandName(cmd)
		outcome := "ok"
		if hasError {
			outcome = "failed"
		}
		doc = fmt.Sprintf("Bash: %s -> %s", truncate(cmd, 200), outcome)
		ctx := map[string]string{"cmd": name}
		meta["context"] = marshalContext(ctx)
		meta["priority"] = computePriority(tool, hasError, response)

	case "Edit":
		path, _ := input["file_path"].(string)
		doc = fmt.Sprintf("Edit: %s", path)
		ctx := map[string]string{"file_extension": strings.TrimPrefix(filepath.Ext(path), ".")}
		meta["context"] = marshalContext(ctx)
		meta["priority"] = computePriority(tool, hasError, response)

	case "Write":
		path, _ := input["file_path"].(string)
		content, _ := input["content"].(string)
		doc = fmt.Sprintf("Write: %s (%d chars)", path, len(content))
		meta["priority"] = computePriority(tool, hasError, response)

	case "UserPrompt":
		prompt, _ := input["prompt"].(string)
		doc = fmt.Sprintf("UserPrompt: %s", truncate(prompt, 300))
		meta["priority"] = "normal"

	case "WebFetch", "WebSearch":
		content, _ := input["content"].(string)
		converted := htmlToMarkdown(content)
		doc = fmt.Sprintf("%s: %s", tool, truncate(converted, 500))
		meta["priority"] = computePriority(tool, hasError, response)

	default:
		doc = fmt.Sprintf("%s (uncategorized): %s", tool, truncate(summarizeInput(input), 200))
		meta["priority"] = computePriority(tool, hasError, response)
	}

	return Observation{
		Document:  doc,
		Metadata:  meta,
		SessionID: sessionID,
		Tool:      tool,
	}
}

// classifyResponse reports whether response indicates an error (a non-zero
// exit_code field, or text matching a known error pattern), and which
// pattern matched, if any.
func classifyResponse(response any) (bool, string) {
	text := responseText(response)
	for _, p := range errorPatterns {
		if strings.Contains(text, p) {
			return true, p
		}
	}
	if m, ok := response.(map[string]any); ok {
		if code, ok := m["exit_code"]; ok {
			if nz, present := nonZeroExitCode(code); present && nz {
				return true, ""
			}
		}
	}
	return false, ""
}

func responseText(response any) string {
	switch v := response.(type) {
	case string:
		return v
	case map[string]any:
		var sb strings.Builder
		for _, k := range []string{"stdout", "stderr"} {
			if s, ok := v[k].(string); ok {
				sb.WriteString(s)
				sb.WriteString("\n")
			}
		}
		return sb.String()
	default:
		return ""
	}
}

// nonZeroExitCode reports (value != 0, value was present and numeric). An
// empty string or absent field is "not present" rather than zero, matching
// the original implementation's edge case that exit_code="" is never high
// priority.
func nonZeroExitCode(v any) (nonZero bool, present bool) {
	switch t := v.(type) {
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case string:
		if t == "" {
			return false, false
		}
		n, err := strconv.Atoi(t)
		if err != nil {
			return false, false
		}
		return n != 0, true
	default:
		return false, false
	}
}

// computePriority returns "high" for a Bash call with a nonzero exit code,
// "medium" for any other error, else "normal".
func computePriority(tool string, hasError bool, response any) string {
	if tool == "Bash" {
		if m, ok := response.(map[string]any); ok {
			if nz, present := nonZeroExitCode(m["exit_code"]); present && nz {
				return "high"
			}
		}
	}
	if hasError {
		return "medium"
	}
	return "normal"
}

// extractCommandName returns the first non-assignment, non-sudo token of
// cmd: "sudo apt-get update" -> "apt-get", "VAR=val OTHER=1 python3 x.py" ->
// "python3".
func extractCommandName(cmd string) string {
	fields := strings.Fields(cmd)
	for _, f := range fields {
		if f == "sudo" {
			continue
		}
		if strings.Contains(f, "=") && !strings.HasPrefix(f, "-") {
			continue
		}
		return f
	}
	return ""
}

func marshalContext(ctx map[string]string) string {
	data, err := json.Marshal(ctx)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func summarizeInput(input map[string]any) string {
	data, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	return string(data)
}

// htmlToMarkdown converts raw HTML content to Markdown for WebFetch/
// WebSearch observations, so the stored document is readable text rather
// than markup. Conversion failures fall back to the raw content untouched
// (a bad conversion must never drop the observation).
func htmlToMarkdown(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	sanitized := stripActiveElements(content)
	conv := converter.NewConverter(converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin()))
	out, err := conv.ConvertString(sanitized)
	if err != nil {
		return sanitized
	}
	return out
}

// stripActiveElements removes script/style/iframe nodes before Markdown
// conversion, so a fetched page can never smuggle executable content (or an
// off-screen iframe) into a stored observation. A parse failure returns the
// content unchanged; the conversion step downstream still runs on it.
func stripActiveElements(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	doc.Find("script,style,iframe").Remove()
	html, err := doc.Html()
	if err != nil {
		return content
	}
	return html
}
