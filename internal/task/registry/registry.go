package registry

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"eventcat/internal/task"
	logx "eventcat/pkg/logx"
)

// Entry is one task as declared in the registry resource.
type Entry struct {
	NiceName string `json:"nice_name"`
	Module   string `json:"module"`
	Function string `json:"function"`
	Priority int    `json:"priority"`
	// Active defaults to true when omitted.
	Active *bool `json:"active,omitempty"`
}

// Selection is the operator's task selection. A nil list was not supplied.
//
// Tasks is exclusive: only the named tasks are active. Yes and No adjust the
// registry defaults and may be combined; No wins for a name in both.
type Selection struct {
	Tasks []string
	Yes   []string
	No    []string
}

// Load builds descriptors from entries, applies sel and returns them in run
// order. Inactive descriptors are kept so callers can report them.
func Load(entries map[string]Entry, sel Selection) ([]task.Descriptor, error) {
	if sel.Tasks != nil && (sel.Yes != nil || sel.No != nil) {
		return nil, &ConfigurationError{Reason: "--tasks cannot be combined with --yes or --no"}
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, list := range []struct {
		flag  string
		names []string
	}{{"--tasks", sel.Tasks}, {"--yes", sel.Yes}, {"--no", sel.No}} {
		for _, n := range list.names {
			if _, ok := entries[n]; !ok {
				return nil, &ConfigurationError{List: list.flag, Value: n, Suggestion: suggest(n, names)}
			}
		}
	}

	out := make([]task.Descriptor, 0, len(entries))
	for _, name := range names {
		e := entries[name]
		if strings.TrimSpace(e.Module) == "" || strings.TrimSpace(e.Function) == "" {
			return nil, &ConfigurationError{Value: name, Reason: "module and function are required"}
		}
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		out = append(out, task.Descriptor{
			Name:     name,
			NiceName: e.NiceName,
			Module:   strings.TrimSpace(e.Module),
			Function: strings.TrimSpace(e.Function),
			Priority: e.Priority,
			Active:   active,
		})
	}

	switch {
	case sel.Tasks != nil:
		only := toSet(sel.Tasks)
		for i := range out {
			_, out[i].Active = only[out[i].Name]
		}
	default:
		yes, no := toSet(sel.Yes), toSet(sel.No)
		for i := range out {
			if _, ok := yes[out[i].Name]; ok {
				out[i].Active = true
			}
			if _, ok := no[out[i].Name]; ok {
				out[i].Active = false
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return task.Less(out[i], out[j]) })
	return out, nil
}

// Active returns the active descriptors of ds, order preserved.
func Active(ds []task.Descriptor) []task.Descriptor {
	out := make([]task.Descriptor, 0, len(ds))
	for _, d := range ds {
		if d.Active {
			out = append(out, d)
		}
	}
	return out
}

// LogSelection reports the active tasks at info and the inactive ones at
// debug, each as one line in run order.
func LogSelection(log logx.Logger, ds []task.Descriptor) {
	var on, off []string
	for _, d := range ds {
		if d.Active {
			on = append(on, d.Name)
		} else {
			off = append(off, d.Name)
		}
	}
	log.Info("active tasks", logx.Strings("tasks", on))
	log.Debug("inactive tasks", logx.Strings("tasks", off))
}

func toSet(in []string) map[string]struct{} {
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		m[s] = struct{}{}
	}
	return m
}

// suggest returns the closest known name when it is plausibly a typo.
func suggest(name string, known []string) string {
	best, bestDist := "", -1
	for _, k := range known {
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(k))
		if bestDist < 0 || d < bestDist {
			best, bestDist = k, d
		}
	}
	limit := len(name) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return best
}
