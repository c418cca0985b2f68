package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"eventcat/internal/catalog"
	logx "eventcat/pkg/logx"
)

// Descriptor is one registry entry after loading. Only Active changes after
// load, and only while a selection is being resolved.
type Descriptor struct {
	Name     string
	NiceName string
	Module   string
	Function string
	Priority int
	Active   bool
}

// Ref returns the dispatch reference "module.function".
func (d Descriptor) Ref() string { return Ref(d.Module, d.Function) }

// Label returns the nice name, falling back to the registry name.
func (d Descriptor) Label() string {
	if strings.TrimSpace(d.NiceName) != "" {
		return d.NiceName
	}
	return d.Name
}

// OrderKey is the position of a task in the run order, ignoring its name.
// Non-negative priorities run first in ascending order, then negative ones,
// also ascending.
type OrderKey struct {
	Negative bool
	Priority int
}

func (d Descriptor) Key() OrderKey {
	return OrderKey{Negative: d.Priority < 0, Priority: d.Priority}
}

// Compare returns -1, 0 or +1.
func (k OrderKey) Compare(o OrderKey) int {
	if k.Negative != o.Negative {
		if !k.Negative {
			return -1
		}
		return 1
	}
	switch {
	case k.Priority < o.Priority:
		return -1
	case k.Priority > o.Priority:
		return 1
	}
	return 0
}

// Less orders descriptors by key, then name.
func Less(a, b Descriptor) bool {
	if c := a.Key().Compare(b.Key()); c != 0 {
		return c < 0
	}
	return a.Name < b.Name
}

// Func is an import routine. It mutates cat and may call h.Checkpoint to
// persist progress mid-task. cat must not be retained after the call returns.
type Func func(ctx context.Context, cat *catalog.Catalog, h *Handle) error

// Handle is the run-scoped configuration handed to one task invocation.
type Handle struct {
	RunID string
	Task  Descriptor

	// LoadArchive asks the task to reuse locally cached copies instead of
	// fetching again.
	LoadArchive bool
	// QueryLimit bounds iteration for CI runs; 0 is unbounded.
	QueryLimit int
	CacheDir   string
	InputDir   string

	Log logx.Logger

	checkpoint func(ctx context.Context) error
}

// CheckpointFunc installs the journal flush used by Checkpoint.
func (h *Handle) CheckpointFunc(fn func(ctx context.Context) error) { h.checkpoint = fn }

// Checkpoint persists everything the task has added so far.
func (h *Handle) Checkpoint(ctx context.Context) error {
	if h == nil || h.checkpoint == nil {
		return nil
	}
	return h.checkpoint(ctx)
}

// Exhausted reports whether n processed items reach the query limit.
func (h *Handle) Exhausted(n int) bool {
	return h != nil && h.QueryLimit > 0 && n >= h.QueryLimit
}

// Ref joins a module and function into a dispatch reference.
func Ref(module, function string) string {
	return strings.TrimSpace(module) + "." + strings.TrimSpace(function)
}

// Table maps dispatch references to callables. It is built once at startup.
type Table map[string]Func

var ErrUnknownRef = errors.New("task: unknown callable")

// Register adds fn under module.function. A duplicate reference panics:
// tables are static and a clash is a programming error.
func (t Table) Register(module, function string, fn Func) {
	ref := Ref(module, function)
	if _, dup := t[ref]; dup {
		panic(fmt.Sprintf("task: duplicate callable %s", ref))
	}
	t[ref] = fn
}

// Resolve returns the callable for d.
func (t Table) Resolve(d Descriptor) (Func, error) {
	fn, ok := t[d.Ref()]
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w %s", ErrUnknownRef, d.Ref())
	}
	return fn, nil
}

// Refs returns every registered reference, sorted.
func (t Table) Refs() []string {
	out := make([]string, 0, len(t))
	for ref := range t {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}
