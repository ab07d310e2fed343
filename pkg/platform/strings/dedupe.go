// Package strings holds slice helpers shared by request decoding and config.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value, drops blanks, and keeps only the first
// occurrence of each remaining value. Order and case are preserved. A nil or
// empty input is returned unchanged.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
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

// SplitList parses a comma-separated list such as a broker list. Blank input
// yields nil.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := DedupeAndTrim(strings.Split(s, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}
