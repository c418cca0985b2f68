package catalog

import "strings"

// UniqCDL returns ids with blanks and repeats removed, keeping first-seen order.
func UniqCDL(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// JoinCDL renders ids as a unique comma-delimited list.
func JoinCDL(ids []string) string { return strings.Join(UniqCDL(ids), ",") }

// SplitCDL parses a comma-delimited id list.
func SplitCDL(s string) []string { return UniqCDL(strings.Split(s, ",")) }
