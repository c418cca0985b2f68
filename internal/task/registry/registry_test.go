package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"eventcat/internal/task"
)

func boolp(b bool) *bool { return &b }

func names(ds []task.Descriptor) string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Name)
	}
	return strings.Join(out, ",")
}

func TestLoadOrdering(t *testing.T) {
	t.Parallel()
	entries := map[string]Entry{
		"A":    {Module: "m", Function: "a", Priority: 0},
		"B":    {Module: "m", Function: "b", Priority: 5},
		"C":    {Module: "m", Function: "c", Priority: -1},
		"D":    {Module: "m", Function: "d", Priority: -10},
		"A2":   {Module: "m", Function: "a2", Priority: 0},
		"late": {Module: "m", Function: "late", Priority: 100},
	}
	ds, err := Load(entries, Selection{})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := names(ds), "A,A2,B,late,D,C"; got != want {
		t.Fatalf("order = %s, want %s", got, want)
	}
}

func TestLoadSelections(t *testing.T) {
	t.Parallel()
	entries := map[string]Entry{
		"A": {Module: "m", Function: "a", Priority: 0, Active: boolp(false)},
		"B": {Module: "m", Function: "b", Priority: 5, Active: boolp(false)},
		"C": {Module: "m", Function: "c", Priority: -1, Active: boolp(false)},
	}
	allOn := map[string]Entry{
		"A": {Module: "m", Function: "a", Priority: 0},
		"B": {Module: "m", Function: "b", Priority: 5},
		"C": {Module: "m", Function: "c", Priority: -1},
	}
	tests := []struct {
		name    string
		entries map[string]Entry
		sel     Selection
		want    string
	}{
		{name: "defaults", entries: allOn, want: "A,B,C"},
		{name: "yes only C", entries: entries, sel: Selection{Yes: []string{"C"}}, want: "C"},
		{name: "explicit", entries: allOn, sel: Selection{Tasks: []string{"B"}}, want: "B"},
		{name: "explicit empty", entries: allOn, sel: Selection{Tasks: []string{}}, want: ""},
		{name: "no", entries: allOn, sel: Selection{No: []string{"A"}}, want: "B,C"},
		{name: "yes and no", entries: entries, sel: Selection{Yes: []string{"A", "B"}, No: []string{"B"}}, want: "A"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ds, err := Load(tt.entries, tt.sel)
			if err != nil {
				t.Fatal(err)
			}
			if got := names(Active(ds)); got != tt.want {
				t.Fatalf("active = %q, want %q", got, tt.want)
			}
			if len(ds) != len(tt.entries) {
				t.Fatalf("descriptors = %d, want every entry kept", len(ds))
			}
		})
	}
}

func TestLoadConfigurationErrors(t *testing.T) {
	t.Parallel()
	entries := map[string]Entry{
		"ucb_photometry": {Module: "ucb", Function: "photometry"},
		"internal":       {Module: "general", Function: "internal"},
	}
	tests := []struct {
		name       string
		sel        Selection
		list       string
		suggestion string
	}{
		{name: "tasks with yes", sel: Selection{Tasks: []string{"internal"}, Yes: []string{"internal"}}},
		{name: "tasks with no", sel: Selection{Tasks: []string{"internal"}, No: []string{}}},
		{name: "unknown in tasks", sel: Selection{Tasks: []string{"nope"}}, list: "--tasks"},
		{name: "unknown in yes", sel: Selection{Yes: []string{"ucb_photometri"}}, list: "--yes", suggestion: "ucb_photometry"},
		{name: "unknown in no", sel: Selection{No: []string{"internl"}}, list: "--no", suggestion: "internal"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(entries, tt.sel)
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigurationError", err)
			}
			if ce.List != tt.list {
				t.Fatalf("List = %q, want %q", ce.List, tt.list)
			}
			if ce.Suggestion != tt.suggestion {
				t.Fatalf("Suggestion = %q, want %q", ce.Suggestion, tt.suggestion)
			}
			if tt.list != "" && !strings.Contains(err.Error(), tt.list) {
				t.Fatalf("message %q does not name the list", err)
			}
		})
	}
}

func TestLoadRejectsIncompleteEntry(t *testing.T) {
	t.Parallel()
	_, err := Load(map[string]Entry{"broken": {Module: "m"}}, Selection{})
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Value != "broken" {
		t.Fatalf("err = %v", err)
	}
}

func TestParseFormats(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	files := map[string]string{
		"tasks.json": `{"internal": {"nice_name": "Internal", "module": "general", "function": "internal", "priority": 0}}`,
		"tasks.yaml": "internal:\n  nice_name: Internal\n  module: general\n  function: internal\n  priority: 0\n",
		"tasks.toml": "[internal]\nnice_name = \"Internal\"\nmodule = \"general\"\nfunction = \"internal\"\npriority = 0\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		entries, err := ParseFile(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		e, ok := entries["internal"]
		if !ok || e.Module != "general" || e.Function != "internal" || e.Active != nil {
			t.Fatalf("%s: entries = %+v", name, entries)
		}
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()
	_, err := Parse("tasks.json", []byte(`{"x": {"module": "m", "function": "f", "prio": 1}}`))
	if err == nil {
		t.Fatal("unknown field should be rejected")
	}
}
