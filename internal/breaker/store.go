package breaker

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Load reads the breaker Registry from path (the pipeline root's
// .gate_circuits.json, per the specification's File paths table), returning
// an empty Registry if the file is missing or corrupt — a corrupt breaker
// file must never block tool use, so it fails open to CLOSED for every gate.
func Load(path string) *Registry {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewRegistry()
	}
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return NewRegistry()
	}
	if r.Gates == nil {
		r.Gates = map[string]*Record{}
	}
	return &r
}

// Save atomically persists r to path via temp-file-then-rename.
func Save(path string, r *Registry) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-circuits-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
