package registry

import "fmt"

// ConfigurationError reports invalid or contradictory task selection input,
// or a malformed registry entry. It is always fatal before any task runs.
type ConfigurationError struct {
	List       string // "--tasks", "--yes", "--no"; empty for registry errors
	Value      string
	Suggestion string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.List == "" {
		if e.Value == "" {
			return "configuration: " + e.Reason
		}
		return fmt.Sprintf("configuration: %s: %s", e.Value, e.Reason)
	}
	msg := fmt.Sprintf("configuration: %s: unknown task %q", e.List, e.Value)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}
