package general

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"eventcat/internal/catalog"
	"eventcat/internal/task"
	logx "eventcat/pkg/logx"
)

// NameLister lists every journaled event name.
type NameLister func(ctx context.Context) ([]string, error)

// checkpointEvery bounds how many events a merge holds in memory.
const checkpointEvery = 200

// MergeDuplicates returns the general.merge_duplicates task. Events whose
// names differ only in case, spacing or a leading "SN"/"AT" designation are
// unified; the first-seen event stays canonical.
func MergeDuplicates(journaled NameLister) task.Func {
	return func(ctx context.Context, cat *catalog.Catalog, h *task.Handle) error {
		names := cat.Names()
		if journaled != nil {
			more, err := journaled(ctx)
			if err != nil {
				return err
			}
			names = append(names, more...)
		}

		groups := map[string][]string{}
		var keys []string
		seen := map[string]struct{}{}
		for _, n := range names {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			k := DuplicateKey(n)
			if k == "" {
				continue
			}
			if _, ok := groups[k]; !ok {
				keys = append(keys, k)
			}
			groups[k] = append(groups[k], n)
		}
		sort.Strings(keys)

		merged, touched := 0, 0
		for _, k := range keys {
			group := groups[k]
			if len(group) < 2 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			canon, err := cat.AddEvent(group[0])
			if err != nil {
				return err
			}
			for _, n := range group[1:] {
				other, err := cat.AddEvent(n)
				if err != nil {
					return err
				}
				if other == canon {
					continue
				}
				if canon, err = cat.Merge(canon, other); err != nil {
					return err
				}
				merged++
				h.Log.Debug("duplicates merged", logx.String("event", canon), logx.String("alias", n))
			}
			touched += len(group)
			if touched >= checkpointEvery {
				if err := h.Checkpoint(ctx); err != nil {
					return err
				}
				touched = 0
			}
		}
		h.Log.Info("duplicate merge finished", logx.Int("merged", merged))
		return nil
	}
}

// DuplicateKey normalizes an event name for duplicate detection.
func DuplicateKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	k := b.String()
	for _, p := range []string{"sn", "at"} {
		if len(k) > len(p) && strings.HasPrefix(k, p) && unicode.IsDigit(rune(k[len(p)])) {
			return k[len(p):]
		}
	}
	return k
}
