package merge

import (
	"strings"
	"unicode"
)

// NormalizeName builds the grouping key for a record name: lowercase,
// anything outside [a-z0-9] and whitespace dropped, whitespace collapsed.
// Two records are candidate duplicates only when their keys are equal.
func NormalizeName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, name)
	return strings.Join(strings.Fields(mapped), " ")
}
