package classify

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// defaultIndigenousKeywords is matched case-insensitively against URL and title
var defaultIndigenousKeywords = []string{
	"aboriginal", "torres strait", "indigenous", "first nations", "first peoples",
	"atsi", "koori", "koorie", "murri", "noongar", "nyoongar", "nunga", "yolngu",
	"palawa", "anangu", "naccho", "qatsicpp", "community justice group",
	"aboriginal community controlled",
}

// KeywordMatcher finds vocabulary terms in text with a single automaton pass
type KeywordMatcher struct {
	mu       sync.Mutex // Matcher.Match is not safe for concurrent use
	matcher  *ahocorasick.Matcher
	keywords []string
}

// NewKeywordMatcher builds a matcher over the built-in vocabulary plus extra
func NewKeywordMatcher(extra []string) *KeywordMatcher {
	seen := make(map[string]bool)
	var keywords []string
	for _, k := range append(append([]string{}, defaultIndigenousKeywords...), extra...) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keywords = append(keywords, k)
	}
	return &KeywordMatcher{
		matcher:  ahocorasick.NewStringMatcher(keywords),
		keywords: keywords,
	}
}

// Match returns the vocabulary terms found in text
func (m *KeywordMatcher) Match(text string) []string {
	normalized := normalizeForMatch(text)

	m.mu.Lock()
	hits := m.matcher.Match([]byte(normalized))
	m.mu.Unlock()

	out := make([]string, 0, len(hits))
	for _, idx := range hits {
		out = append(out, m.keywords[idx])
	}
	return out
}

// Contains reports whether any vocabulary term occurs in text
func (m *KeywordMatcher) Contains(text string) bool {
	return len(m.Match(text)) > 0
}

// normalizeForMatch lowercases and turns URL separators into spaces so
// "torres-strait" and "first_nations" match their spaced forms
func normalizeForMatch(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '+', '/', '.', '%':
			return ' '
		}
		return r
	}, strings.ToLower(s))
}
