package broadcast

import "strings"

// Merge joins the static list and the stored subscribers into one ordered
// recipient list: static entries first, blanks dropped, first occurrence wins.
func Merge(static, stored []string) []string {
	out := make([]string, 0, len(static)+len(stored))
	seen := make(map[string]struct{}, len(static)+len(stored))
	for _, list := range [][]string{static, stored} {
		for _, id := range list {
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
	}
	return out
}
