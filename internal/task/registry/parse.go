package registry

import (
	"fmt"
	"os"

	"eventcat/internal/config"
)

// Parse decodes a registry resource. The format follows the name's
// extension (.json, .yaml/.yml, .toml); unknown fields are rejected.
func Parse(name string, data []byte) (map[string]Entry, error) {
	var out map[string]Entry
	if err := config.DecodeStrict(name, data, &out); err != nil {
		return nil, fmt.Errorf("registry %s: %w", name, err)
	}
	if len(out) == 0 {
		return nil, &ConfigurationError{Value: name, Reason: "registry has no tasks"}
	}
	return out, nil
}

func ParseFile(path string) (map[string]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, b)
}
