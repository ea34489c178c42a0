package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ozmaster/torus-enforcer/internal/registry"
)

// registryEntryYAML is the on-disk shape of one gate registry entry.
// Universal gates omit "tools" entirely.
type registryEntryYAML struct {
	ID    string   `yaml:"id"`
	Tier  int      `yaml:"tier"`
	Tools []string `yaml:"tools,omitempty"`
}

type registryFileYAML struct {
	Gates []registryEntryYAML `yaml:"gates"`
}

// LoadRegistry reads a YAML gate registry document from path. A missing
// file, or a document listing no gates, falls back to builtin (in practice
// gate.BuiltinEntries, passed in to avoid an import cycle between config and
// gate).
func LoadRegistry(path string, builtin []registry.Entry) (*registry.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return registry.New(builtin)
		}
		return nil, fmt.Errorf("read registry config: %w", err)
	}
	var doc registryFileYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry config %s: %w", path, err)
	}
	if len(doc.Gates) == 0 {
		return registry.New(builtin)
	}
	entries := make([]registry.Entry, 0, len(doc.Gates))
	for _, g := range doc.Gates {
		var tools map[string]struct{}
		if len(g.Tools) > 0 {
			tools = make(map[string]struct{}, len(g.Tools))
			for _, t := range g.Tools {
				tools[t] = struct{}{}
			}
		}
		entries = append(entries, registry.Entry{
			ID:    g.ID,
			Tier:  registry.Tier(g.Tier),
			Tools: tools,
		})
	}
	return registry.New(entries)
}
