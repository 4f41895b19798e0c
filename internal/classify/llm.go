package classify

import (
	"context"
	"strings"

	"github.com/ppiankov/alma/internal/llm"
	"github.com/ppiankov/alma/internal/logger"
	"github.com/ppiankov/alma/internal/model"
)

// LLMClassifier asks an extraction service for a full record and falls back
// to the heuristic whenever the service fails or returns nothing usable
type LLMClassifier struct {
	provider  llm.Provider
	heuristic *Heuristic
	log       logger.Logger
	model     string
	maxTokens int
}

// NewLLMClassifier wraps provider with heuristic fallback
func NewLLMClassifier(provider llm.Provider, heuristic *Heuristic, cfg llm.Config, log logger.Logger) *LLMClassifier {
	return &LLMClassifier{
		provider:  provider,
		heuristic: heuristic,
		log:       logger.OrNop(log),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Classify prefers verified model output and fills the gaps from the heuristic
func (c *LLMClassifier) Classify(ctx context.Context, in Input) (*model.Classification, error) {
	base := c.heuristic.classify(in)

	resp, err := c.provider.Extract(ctx, llm.ExtractRequest{
		URL:          in.URL,
		Title:        in.Title,
		Content:      in.Content,
		AllowedTypes: model.InterventionTypes,
		Model:        c.model,
		MaxTokens:    c.maxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("extraction failed, using heuristic",
			logger.URL(in.URL), logger.String("provider", c.provider.Name()), logger.Error(err))
		return base, nil
	}

	ex, err := llm.ParseExtraction(resp.Raw)
	if err != nil {
		c.log.Warn("unparseable extraction, using heuristic",
			logger.URL(in.URL), logger.String("provider", c.provider.Name()), logger.Error(err))
		return base, nil
	}
	if dropped := ex.Verify(in.Content, model.InterventionTypes); len(dropped) > 0 {
		c.log.Debug("dropped unverifiable fields",
			logger.URL(in.URL), logger.Strings("fields", dropped))
	}

	return c.merge(base, ex, in), nil
}

func (c *LLMClassifier) merge(base *model.Classification, ex *llm.Extraction, in Input) *model.Classification {
	cls := *base
	cls.Method = "llm:" + c.provider.Name()

	if ex.Type != "" {
		cls.Type = ex.Type
	}

	// The model may raise the consent level but never lower one the vocabulary set
	if consent := canonical(ex.ConsentLevel, model.ConsentLevels); consent != "" {
		if consent != model.ConsentPublic || base.ConsentLevel == model.ConsentPublic {
			cls.ConsentLevel = consent
		}
	}
	if ex.CulturalAuthority != "" {
		cls.CulturalAuthority = strings.TrimSpace(ex.CulturalAuthority)
	}
	if cls.ConsentLevel != model.ConsentPublic && cls.CulturalAuthority == "" {
		cls.CulturalAuthority = firstNonEmpty(ex.OperatingOrganization, in.Title, in.Name)
	}

	if geo := normalizeGeography(ex.Geography); len(geo) > 0 {
		cls.Geography = geo
	}

	cls.Name = ex.Name
	cls.Description = strings.TrimSpace(ex.Description)
	cls.TargetCohort = ex.TargetCohort
	cls.OperatingOrganization = strings.TrimSpace(ex.OperatingOrganization)
	cls.Website = ex.Website
	cls.ContactPhone = ex.ContactPhone
	cls.ContactEmail = ex.ContactEmail
	cls.EvidenceLevel = canonical(ex.EvidenceLevel, model.EvidenceLevels)
	return &cls
}

// canonical returns the accepted spelling of value, or "" when it is not accepted
func canonical(value string, accepted []string) string {
	value = strings.TrimSpace(value)
	for _, a := range accepted {
		if strings.EqualFold(a, value) {
			return a
		}
	}
	return ""
}

// normalizeGeography keeps region codes and National, deduplicated
func normalizeGeography(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		code := regionCode(v)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

func regionCode(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, model.GeographyNational) {
		return model.GeographyNational
	}
	for _, r := range regions {
		if strings.EqualFold(v, r.code) {
			return r.code
		}
		for _, name := range r.names {
			if strings.EqualFold(v, name) {
				return r.code
			}
		}
	}
	return ""
}
