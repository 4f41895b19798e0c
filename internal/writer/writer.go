// Package writer turns a classified page into a knowledge-base record and
// closes out the link that produced it.
package writer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/alma/internal/logger"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/store"
	"github.com/ppiankov/alma/internal/util"
)

// ErrMissingCulturalAuthority is returned for a non-public record with no cultural authority
var ErrMissingCulturalAuthority = errors.New("consent level requires a cultural authority")

// LinkTransitioner applies automatic lifecycle changes to links
type LinkTransitioner interface {
	Transition(ctx context.Context, id string, to model.LinkStatus, upd store.LinkUpdate) error
}

// WriteResult is either a new record or an idempotent conflict
type WriteResult struct {
	Intervention *model.Intervention
	Conflict     bool
}

// Writer inserts interventions and marks their links scraped
type Writer struct {
	store store.InterventionStore
	links LinkTransitioner
	cfg   model.PipelineConfig
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

// New creates a writer
func New(s store.InterventionStore, links LinkTransitioner, cfg model.PipelineConfig, log logger.Logger) *Writer {
	return &Writer{
		store: s,
		links: links,
		cfg:   cfg,
		log:   logger.OrNop(log),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Write inserts a record for link. A record already ingested from the same
// URL is a conflict, not an error: the link is still marked scraped.
func (w *Writer) Write(ctx context.Context, link *model.DiscoveredLink, page *model.Page, cls *model.Classification) (*WriteResult, error) {
	now := w.now().UTC()
	iv := w.build(link, page, cls, now)

	if err := CheckGovernance(iv); err != nil {
		return nil, err
	}

	meta := link.Metadata.Clone()
	meta.ScrapedAt = &now
	meta.ExtractedTitle = page.Title
	meta.SetWordCount(util.WordCount(page.Content))

	err := w.store.InsertIntervention(ctx, iv)
	if errors.Is(err, model.ErrConflict) {
		meta.DuplicateOf = link.URL
		if tErr := w.links.Transition(ctx, link.ID, model.LinkScraped, store.LinkUpdate{Metadata: &meta}); tErr != nil {
			return nil, fmt.Errorf("mark duplicate link scraped: %w", tErr)
		}
		w.log.Info("Already ingested, skipping insert", logger.LinkID(link.ID), logger.URL(link.URL))
		return &WriteResult{Conflict: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert intervention: %w", err)
	}

	meta.InterventionID = iv.ID
	if err := w.links.Transition(ctx, link.ID, model.LinkScraped, store.LinkUpdate{Metadata: &meta}); err != nil {
		return nil, fmt.Errorf("mark link scraped: %w", err)
	}

	w.log.Info("Intervention created",
		logger.LinkID(link.ID),
		logger.InterventionID(iv.ID),
		logger.String("type", iv.Type),
		logger.String("consent_level", iv.ConsentLevel),
	)
	return &WriteResult{Intervention: iv}, nil
}

func (w *Writer) build(link *model.DiscoveredLink, page *model.Page, cls *model.Classification, now time.Time) *model.Intervention {
	name := firstNonEmpty(cls.Name, page.Title, link.Metadata.Title, hostOf(link.URL))
	description := cls.Description
	if description == "" {
		description = page.Content
	}

	content := util.Truncate(page.Content, w.cfg.MaxContentChars)
	wordCount := util.WordCount(page.Content)
	scrapedAt := now

	geography := cls.Geography
	if len(geography) == 0 {
		geography = []string{model.GeographyNational}
	}

	return &model.Intervention{
		ID:                    w.newID(),
		Name:                  util.Truncate(util.CollapseSpace(name), w.cfg.MaxNameChars),
		Description:           util.Truncate(description, w.cfg.MaxDescriptionChars),
		Type:                  cls.Type,
		Geography:             geography,
		TargetCohort:          cls.TargetCohort,
		ConsentLevel:          cls.ConsentLevel,
		CulturalAuthority:     cls.CulturalAuthority,
		SourceURL:             link.URL,
		Website:               cls.Website,
		OperatingOrganization: cls.OperatingOrganization,
		ContactPhone:          cls.ContactPhone,
		ContactEmail:          cls.ContactEmail,
		EvidenceLevel:         cls.EvidenceLevel,
		IngestURL:             link.URL,
		SourceDocuments: model.SourceDocuments{
			{URL: link.URL, Title: page.Title, ScrapedAt: now},
		},
		Metadata: model.InterventionMetadata{
			ScrapedAt:        &scrapedAt,
			WordCount:        &wordCount,
			FullContent:      content,
			SourceLinkID:     link.ID,
			ExtractionMethod: cls.Method,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CheckGovernance enforces that shared-with-conditions content names who holds authority over it
func CheckGovernance(iv *model.Intervention) error {
	if iv.ConsentLevel != "" && iv.ConsentLevel != model.ConsentPublic && strings.TrimSpace(iv.CulturalAuthority) == "" {
		return fmt.Errorf("%q: %w", iv.ConsentLevel, ErrMissingCulturalAuthority)
	}
	return nil
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}
	return rawURL
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
