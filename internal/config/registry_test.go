package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozmaster/torus-enforcer/internal/registry"
)

func builtinForTest() []registry.Entry {
	return []registry.Entry{
		{ID: "gate_01_read_before_edit", Tier: registry.Tier1, Tools: map[string]struct{}{"Edit": {}}},
		{ID: "gate_11_rate_limit", Tier: registry.Tier3},
	}
}

func TestLoadRegistry_MissingFileFallsBackToBuiltin(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"), builtinForTest())
	require.NoError(t, err)
	assert.True(t, r.Has("gate_01_read_before_edit"))
	assert.True(t, r.Has("gate_11_rate_limit"))
}

func TestLoadRegistry_ParsesYAMLDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	doc := `
gates:
  - id: gate_02_no_destroy
    tier: 1
    tools: [Bash]
  - id: gate_18_canary
    tier: 3
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r, err := LoadRegistry(path, builtinForTest())
	require.NoError(t, err)
	assert.True(t, r.Has("gate_02_no_destroy"))
	assert.Equal(t, registry.Tier1, r.TierOf("gate_02_no_destroy"))
	assert.False(t, r.Has("gate_01_read_before_edit"), "YAML document replaces, not merges with, builtin")

	applicable := r.ApplicableTo("Bash")
	assert.Contains(t, applicable, "gate_02_no_destroy")
	assert.Contains(t, applicable, "gate_18_canary", "a gate with no tools list is universal")
}

func TestLoadRegistry_EmptyDocumentFallsBackToBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gates: []"), 0o644))

	r, err := LoadRegistry(path, builtinForTest())
	require.NoError(t, err)
	assert.True(t, r.Has("gate_01_read_before_edit"))
}

func TestLoadRegistry_MalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gates: [not valid"), 0o644))

	_, err := LoadRegistry(path, builtinForTest())
	assert.Error(t, err)
}

func TestLoadRegistry_DuplicateIDErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	doc := `
gates:
  - id: gate_dup
    tier: 2
  - id: gate_dup
    tier: 2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := LoadRegistry(path, builtinForTest())
	assert.Error(t, err)
}
