// Package store defines persistence contracts for links and interventions
// and provides an in-memory implementation.
package store

import (
	"context"

	"github.com/ppiankov/alma/internal/model"
)

// LinkFilter selects links for listing
type LinkFilter struct {
	Status        model.LinkStatus
	PredictedType string
	Limit         int
	Offset        int
}

// LinkUpdate describes a status change and the fields written with it
type LinkUpdate struct {
	Status       model.LinkStatus
	ErrorMessage *string             // nil leaves the column unchanged
	Metadata     *model.LinkMetadata // nil leaves the column unchanged
}

// LinkStore persists discovered links
type LinkStore interface {
	// InsertLinks adds links, ignoring any whose URL already exists, and
	// returns the number inserted.
	InsertLinks(ctx context.Context, links []*model.DiscoveredLink) (int, error)
	GetLink(ctx context.Context, id string) (*model.DiscoveredLink, error)
	ListLinks(ctx context.Context, filter LinkFilter) ([]*model.DiscoveredLink, error)
	CountLinks(ctx context.Context, filter LinkFilter) (int, error)

	// NextBatch returns up to n links in one of statuses, ordered by
	// predicted_relevance desc then created_at asc. It does not claim them.
	NextBatch(ctx context.Context, n int, statuses []model.LinkStatus) ([]*model.DiscoveredLink, error)

	// ClaimBatch atomically moves up to n pending links to queued and returns them.
	ClaimBatch(ctx context.Context, n int) ([]*model.DiscoveredLink, error)

	// UpdateLink applies upd only when the link's current status is in from.
	// An empty from accepts any current status.
	UpdateLink(ctx context.Context, id string, from []model.LinkStatus, upd LinkUpdate) error

	StatusCounts(ctx context.Context) (map[model.LinkStatus]int, error)
	TypeCounts(ctx context.Context) (map[string]int, error)
}

// InterventionStore persists canonical records
type InterventionStore interface {
	// InsertIntervention returns model.ErrConflict when the ingest URL is
	// already present as an ingest URL or in any record's provenance.
	InsertIntervention(ctx context.Context, iv *model.Intervention) error
	GetIntervention(ctx context.Context, id string) (*model.Intervention, error)
	ListInterventions(ctx context.Context, limit, offset int) ([]*model.Intervention, error)
	AllInterventions(ctx context.Context) ([]*model.Intervention, error)
	UpdateIntervention(ctx context.Context, iv *model.Intervention) error
	DeleteIntervention(ctx context.Context, id string) error
	ArchiveIntervention(ctx context.Context, archived *model.ArchivedIntervention) error
	// ListArchived returns one page of merged-away records in archive order.
	ListArchived(ctx context.Context, limit, offset int) ([]*model.ArchivedIntervention, error)
	CountInterventions(ctx context.Context) (int, error)
}

// HistoryStore records processing attempts
type HistoryStore interface {
	AddHistory(ctx context.Context, h *model.ScrapeHistory) error
	RecentHistory(ctx context.Context, limit int) ([]*model.ScrapeHistory, error)
}

// Store is the full persistence surface
type Store interface {
	LinkStore
	InterventionStore
	HistoryStore
	Close() error
}

// DefaultListLimit applies when a filter has no limit
const DefaultListLimit = 50

// MaxListLimit caps any single page
const MaxListLimit = 500

// ClampLimit normalizes a page size
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
