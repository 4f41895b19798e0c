package classify

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/ppiankov/alma/internal/model"
)

type region struct {
	code  string
	names []string
}

// regions in display order
var regions = []region{
	{"NSW", []string{"new south wales"}},
	{"VIC", []string{"victoria"}},
	{"QLD", []string{"queensland"}},
	{"WA", []string{"western australia"}},
	{"SA", []string{"south australia"}},
	{"TAS", []string{"tasmania"}},
	{"NT", []string{"northern territory"}},
	{"ACT", []string{"australian capital territory"}},
}

// DeriveGeography returns region codes from the predicted type hint, then
// from the URL, defaulting to National
func DeriveGeography(predictedType, rawURL string) []string {
	if found := regionsInHint(predictedType); len(found) > 0 {
		return found
	}
	if found := regionsInURL(rawURL); len(found) > 0 {
		return found
	}
	return []string{model.GeographyNational}
}

func regionsInHint(hint string) []string {
	if strings.TrimSpace(hint) == "" {
		return nil
	}
	lower := strings.ToLower(hint)
	tokens := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
	spaced := " " + strings.Join(tokens, " ") + " "

	var out []string
	for _, r := range regions {
		if containsToken(tokens, strings.ToLower(r.code)) || containsName(spaced, r.names) {
			out = append(out, r.code)
		}
	}
	return out
}

func regionsInURL(rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(parsed.Hostname())
	labels := strings.Split(host, ".")
	isGovAU := strings.HasSuffix(host, ".gov.au")

	text := normalizeForMatch(host + " " + parsed.Path)
	spaced := " " + strings.Join(strings.Fields(text), " ") + " "
	compact := strings.ReplaceAll(strings.ToLower(host+parsed.Path), "-", "")

	var out []string
	for _, r := range regions {
		code := strings.ToLower(r.code)
		// state.gov.au zones such as justice.vic.gov.au
		if isGovAU && containsToken(labels, code) {
			out = append(out, r.code)
			continue
		}
		if containsName(spaced, r.names) || containsCompact(compact, r.names) {
			out = append(out, r.code)
		}
	}
	return out
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

func containsName(spaced string, names []string) bool {
	for _, n := range names {
		if strings.Contains(spaced, " "+n) {
			return true
		}
	}
	return false
}

func containsCompact(compact string, names []string) bool {
	for _, n := range names {
		if strings.Contains(n, " ") && strings.Contains(compact, strings.ReplaceAll(n, " ", "")) {
			return true
		}
	}
	return false
}
