package util

import (
	"strings"
	"unicode/utf8"
)

// Truncate cuts s to at most max runes. A non-positive max leaves s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

// WordCount counts whitespace-separated fields
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// CollapseSpace joins the fields of s with single spaces
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
