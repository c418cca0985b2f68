// Package importers is the static list of built-in import routines and the
// default task registry that schedules them.
package importers

import (
	_ "embed"
	"path/filepath"

	"eventcat/internal/importers/general"
	"eventcat/internal/importers/ucb"
	"eventcat/internal/task"
	"eventcat/internal/task/registry"
)

//go:embed tasks.json
var defaultRegistry []byte

// Deps are the collaborators the built-in importers need.
type Deps struct {
	Source   ucb.Source
	InputDir string
	// Journaled lists every persisted event name.
	Journaled general.NameLister
}

// Table returns the dispatch table of every built-in importer.
func Table(d Deps) task.Table {
	t := task.Table{}
	t.Register("general", "internal", general.Internal(filepath.Join(d.InputDir, "internal")))
	t.Register("general", "merge_duplicates", general.MergeDuplicates(d.Journaled))
	t.Register("ucb", "photometry", ucb.Photometry(d.Source))
	t.Register("ucb", "spectra", ucb.Spectra(d.Source))
	return t
}

// DefaultRegistry returns the embedded task registry.
func DefaultRegistry() (map[string]registry.Entry, error) {
	return registry.Parse("tasks.json", defaultRegistry)
}
