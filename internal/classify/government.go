package classify

import (
	"net/url"
	"strings"
)

// defaultGovernmentSuffixes are public-sector registrable domains
var defaultGovernmentSuffixes = []string{
	"gov.au", "gov", "gov.uk", "govt.nz", "gc.ca", "gov.nz",
}

// GovernmentMatcher recognises government hosts by domain suffix
type GovernmentMatcher struct {
	suffixes map[string]bool
}

// NewGovernmentMatcher creates a matcher over the built-in suffixes plus extra
func NewGovernmentMatcher(extra []string) *GovernmentMatcher {
	m := &GovernmentMatcher{suffixes: make(map[string]bool)}
	for _, s := range defaultGovernmentSuffixes {
		m.suffixes[s] = true
	}
	for _, s := range extra {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		if s != "" {
			m.suffixes[s] = true
		}
	}
	return m
}

// IsGovernment reports whether rawURL is served from a government domain
func (m *GovernmentMatcher) IsGovernment(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return false
	}

	// Walk each parent domain: a.b.vic.gov.au -> b.vic.gov.au -> vic.gov.au -> gov.au -> au
	for candidate := host; candidate != ""; {
		if m.suffixes[candidate] {
			return true
		}
		idx := strings.Index(candidate, ".")
		if idx < 0 {
			break
		}
		candidate = candidate[idx+1:]
	}

	// Second-level government zones such as nsw.gov.xx
	return strings.Contains(host, ".gov.")
}
