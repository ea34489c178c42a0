// Package schema optionally validates a tool's tool_input against a
// per-tool JSON Schema before it reaches any gate, per the specification's
// fail-open principle: a violation is never a block, only an audited
// warning, since InvalidPayload handling must never deny a call.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator compiles and caches one JSON Schema per tool name, loaded
// lazily from <dir>/<tool>.json. A tool with no schema file is always
// considered valid (schema validation is optional per tool, per the
// specification).
type Validator struct {
	dir     string
	schemas map[string]*jsonschema.Schema
	missing map[string]bool
}

// New returns a Validator that looks for per-tool schema files under dir
// (typically <root>/schemas).
func New(dir string) *Validator {
	return &Validator{
		dir:     dir,
		schemas: map[string]*jsonschema.Schema{},
		missing: map[string]bool{},
	}
}

// Validate checks input against tool's schema, if one exists. ok is true
// when there is no schema for tool, or the schema exists and input
// satisfies it. When ok is false, warning describes the violation in a
// form suitable for an audit record's Message field; the caller is
// expected to pass the tool call through unvalidated regardless.
func (v *Validator) Validate(tool string, input map[string]any) (ok bool, warning string) {
	sch, err := v.load(tool)
	if err != nil {
		return false, fmt.Sprintf("schema for %q could not be compiled: %s", tool, err.Error())
	}
	if sch == nil {
		return true, ""
	}
	if err := sch.Validate(toAny(input)); err != nil {
		return false, fmt.Sprintf("tool_input for %q violates schema: %s", tool, err.Error())
	}
	return true, ""
}

func (v *Validator) load(tool string) (*jsonschema.Schema, error) {
	if sch, ok := v.schemas[tool]; ok {
		return sch, nil
	}
	if v.missing[tool] {
		return nil, nil
	}

	path := filepath.Join(v.dir, tool+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		v.missing[tool] = true
		return nil, nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}

	c := jsonschema.NewCompiler()
	resourceURL := "tool:" + tool
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", tool, err)
	}
	sch, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", tool, err)
	}
	v.schemas[tool] = sch
	return sch, nil
}

// toAny round-trips input through JSON so the jsonschema validator sees
// plain map[string]any/[]any/number values exactly the way it would if it
// had parsed the document itself, rather than Go-specific typed values a
// caller's map might otherwise contain.
func toAny(input map[string]any) any {
	data, err := json.Marshal(input)
	if err != nil {
		return input
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return input
	}
	return out
}
