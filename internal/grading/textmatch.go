package grading

import "strings"

// normalize trims and collapses whitespace, and casefolds unless the
// comparison is case-sensitive. Matching is exact beyond that: no fuzzy or
// edit-distance comparison.
func normalize(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}
