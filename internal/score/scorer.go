// Package score rates how complete an intervention record is.
package score

import (
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/alma/internal/model"
)

// Term is one rubric line that contributed points
type Term struct {
	Field  string `json:"field"`
	Points int    `json:"points"`
}

// Score is a record's completeness with the terms that built it
type Score struct {
	Total int    `json:"total"`
	Terms []Term `json:"terms,omitempty"`
}

// MaxScore is the score of a record with every rubric field populated
const MaxScore = 17

// Scorer applies the completeness rubric. Every term is additive and only
// looks at whether a field is populated, so filling a field never lowers
// the total.
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate scores iv
func (s *Scorer) Calculate(iv *model.Intervention) Score {
	var sc Score
	if iv == nil {
		return sc
	}
	add := func(field string, points int, ok bool) {
		if ok {
			sc.Total += points
			sc.Terms = append(sc.Terms, Term{Field: field, Points: points})
		}
	}

	descLen := utf8.RuneCountInString(iv.Description)
	add("description", 3, descLen > 50)
	add("description_long", 2, descLen > 200)
	add("type", 2, HasType(iv.Type))
	add("geography", 1, len(iv.Geography) > 0)
	add("target_cohort", 1, len(iv.TargetCohort) > 0)
	add("latitude", 2, iv.Latitude != nil)
	add("source_url", 2, present(iv.SourceURL))
	add("website", 1, present(iv.Website))
	add("operating_organization", 1, present(iv.OperatingOrganization))
	add("contact", 1, present(iv.ContactPhone) || present(iv.ContactEmail))
	add("evidence_level", 1, present(iv.EvidenceLevel))
	return sc
}

// HasType reports whether t is a real type rather than empty or Unknown
func HasType(t string) bool {
	t = strings.TrimSpace(t)
	return t != "" && !strings.EqualFold(t, model.TypeUnknown)
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}
