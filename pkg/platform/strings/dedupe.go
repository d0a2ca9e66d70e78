// Package strings provides string slice helpers.
package strings

import (
	"strings"
)

// TrimUnique trims each value, drops empties and values keep rejects, and
// removes duplicates keeping first-seen order. A nil keep keeps everything.
//
//	TrimUnique([]string{" ward_12 ", "system.users", "ward_12", ""}, notReserved)
//	// []string{"ward_12"}
func TrimUnique(values []string, keep func(string) bool) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || (keep != nil && !keep(v)) {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
