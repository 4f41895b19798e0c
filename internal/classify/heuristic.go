// Package classify assigns a provisional type, consent level, cultural
// authority and geography to fetched content.
package classify

import (
	"context"
	"strings"

	"github.com/ppiankov/alma/internal/model"
)

// MethodHeuristic marks classifications produced by the rule set
const MethodHeuristic = "heuristic"

// Input is the page summary a classifier sees
type Input struct {
	URL           string
	Title         string
	Content       string
	PredictedType string
	Name          string // Derived display name, used when Title is empty
}

// Classifier assigns provisional attributes to fetched content
type Classifier interface {
	Classify(ctx context.Context, in Input) (*model.Classification, error)
}

// Heuristic is the deterministic rule set. Rules apply in order and the
// first match wins: government domain, Indigenous vocabulary, program hint.
type Heuristic struct {
	government *GovernmentMatcher
	keywords   *KeywordMatcher
}

// NewHeuristic builds the rule set, extending the built-in vocabularies from cfg
func NewHeuristic(cfg model.ClassifierConfig) *Heuristic {
	return &Heuristic{
		government: NewGovernmentMatcher(cfg.GovernmentDomains),
		keywords:   NewKeywordMatcher(cfg.IndigenousKeywords),
	}
}

// Classify never fails; the error return satisfies Classifier
func (h *Heuristic) Classify(_ context.Context, in Input) (*model.Classification, error) {
	return h.classify(in), nil
}

func (h *Heuristic) classify(in Input) *model.Classification {
	cls := &model.Classification{
		Type:         model.TypeSupport,
		ConsentLevel: model.ConsentPublic,
		Geography:    DeriveGeography(in.PredictedType, in.URL),
		Method:       MethodHeuristic,
	}

	switch {
	case h.government.IsGovernment(in.URL):
		cls.Type = model.TypePrevention
	case h.keywords.Contains(in.URL + " " + in.Title):
		cls.Type = model.TypeCulturalConnection
		cls.ConsentLevel = model.ConsentCommunityControlled
		cls.CulturalAuthority = firstNonEmpty(in.Title, in.Name)
	case strings.Contains(strings.ToLower(in.PredictedType), "program"):
		cls.Type = model.TypeDiversion
	}
	return cls
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
