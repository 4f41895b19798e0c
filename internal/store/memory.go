package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/alma/internal/model"
)

// MemoryStore keeps everything in process memory. It is safe for
// concurrent use and returns copies, never internal pointers.
type MemoryStore struct {
	mu            sync.RWMutex
	links         map[string]*model.DiscoveredLink
	linkByURL     map[string]string
	interventions map[string]*model.Intervention
	ingestURLs    map[string]string
	archive       []*model.ArchivedIntervention
	history       []*model.ScrapeHistory
	now           func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:         make(map[string]*model.DiscoveredLink),
		linkByURL:     make(map[string]string),
		interventions: make(map[string]*model.Intervention),
		ingestURLs:    make(map[string]string),
		now:           time.Now,
	}
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// InsertLinks implements LinkStore
func (s *MemoryStore) InsertLinks(ctx context.Context, links []*model.DiscoveredLink) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, l := range links {
		if _, exists := s.linkByURL[l.URL]; exists {
			continue
		}
		if _, exists := s.links[l.ID]; exists {
			return inserted, fmt.Errorf("insert link %s: duplicate id", l.ID)
		}
		s.links[l.ID] = l.Clone()
		s.linkByURL[l.URL] = l.ID
		inserted++
	}
	return inserted, nil
}

// GetLink implements LinkStore
func (s *MemoryStore) GetLink(ctx context.Context, id string) (*model.DiscoveredLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[id]
	if !ok {
		return nil, fmt.Errorf("link %s: %w", id, model.ErrNotFound)
	}
	return l.Clone(), nil
}

func (s *MemoryStore) filterLinks(filter LinkFilter) []*model.DiscoveredLink {
	var out []*model.DiscoveredLink
	for _, l := range s.links {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.PredictedType != "" && l.PredictedType != filter.PredictedType {
			continue
		}
		out = append(out, l)
	}
	sortByPriority(out)
	return out
}

// ListLinks implements LinkStore
func (s *MemoryStore) ListLinks(ctx context.Context, filter LinkFilter) ([]*model.DiscoveredLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.filterLinks(filter)
	limit := ClampLimit(filter.Limit)
	offset := max(filter.Offset, 0)
	if offset >= len(all) {
		return []*model.DiscoveredLink{}, nil
	}
	end := min(offset+limit, len(all))

	out := make([]*model.DiscoveredLink, 0, end-offset)
	for _, l := range all[offset:end] {
		out = append(out, l.Clone())
	}
	return out, nil
}

// CountLinks implements LinkStore
func (s *MemoryStore) CountLinks(ctx context.Context, filter LinkFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterLinks(filter)), nil
}

// NextBatch implements LinkStore
func (s *MemoryStore) NextBatch(ctx context.Context, n int, statuses []model.LinkStatus) ([]*model.DiscoveredLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := s.byStatus(statuses)
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]*model.DiscoveredLink, len(candidates))
	for i, l := range candidates {
		out[i] = l.Clone()
	}
	return out, nil
}

// ClaimBatch implements LinkStore
func (s *MemoryStore) ClaimBatch(ctx context.Context, n int) ([]*model.DiscoveredLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.byStatus([]model.LinkStatus{model.LinkPending})
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	now := s.now()
	out := make([]*model.DiscoveredLink, len(candidates))
	for i, l := range candidates {
		l.Status = model.LinkQueued
		l.UpdatedAt = now
		out[i] = l.Clone()
	}
	return out, nil
}

func (s *MemoryStore) byStatus(statuses []model.LinkStatus) []*model.DiscoveredLink {
	var out []*model.DiscoveredLink
	for _, l := range s.links {
		if statusIn(l.Status, statuses) {
			out = append(out, l)
		}
	}
	sortByPriority(out)
	return out
}

// UpdateLink implements LinkStore
func (s *MemoryStore) UpdateLink(ctx context.Context, id string, from []model.LinkStatus, upd LinkUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok {
		return fmt.Errorf("link %s: %w", id, model.ErrNotFound)
	}
	if len(from) > 0 && !statusIn(l.Status, from) {
		return fmt.Errorf("link %s is %s: %w", id, l.Status, model.ErrInvalidTransition)
	}

	if upd.Status != "" {
		l.Status = upd.Status
	}
	if upd.ErrorMessage != nil {
		l.ErrorMessage = *upd.ErrorMessage
	}
	if upd.Metadata != nil {
		l.Metadata = upd.Metadata.Clone()
	}
	l.UpdatedAt = s.now()
	return nil
}

// StatusCounts implements LinkStore
func (s *MemoryStore) StatusCounts(ctx context.Context) (map[model.LinkStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.LinkStatus]int)
	for _, l := range s.links {
		counts[l.Status]++
	}
	return counts, nil
}

// TypeCounts implements LinkStore
func (s *MemoryStore) TypeCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, l := range s.links {
		key := l.PredictedType
		if key == "" {
			key = "unknown"
		}
		counts[key]++
	}
	return counts, nil
}

// InsertIntervention implements InterventionStore
func (s *MemoryStore) InsertIntervention(ctx context.Context, iv *model.Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.interventions[iv.ID]; exists {
		return fmt.Errorf("intervention %s: %w", iv.ID, model.ErrConflict)
	}
	if iv.IngestURL != "" {
		if _, exists := s.ingestURLs[iv.IngestURL]; exists {
			return fmt.Errorf("ingest url %s: %w", iv.IngestURL, model.ErrConflict)
		}
		for _, other := range s.interventions {
			if other.HasProvenance(iv.IngestURL) {
				return fmt.Errorf("ingest url %s in provenance of %s: %w", iv.IngestURL, other.ID, model.ErrConflict)
			}
		}
		s.ingestURLs[iv.IngestURL] = iv.ID
	}
	s.interventions[iv.ID] = iv.Clone()
	return nil
}

// GetIntervention implements InterventionStore
func (s *MemoryStore) GetIntervention(ctx context.Context, id string) (*model.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iv, ok := s.interventions[id]
	if !ok {
		return nil, fmt.Errorf("intervention %s: %w", id, model.ErrNotFound)
	}
	return iv.Clone(), nil
}

func (s *MemoryStore) sortedInterventions() []*model.Intervention {
	out := make([]*model.Intervention, 0, len(s.interventions))
	for _, iv := range s.interventions {
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListInterventions implements InterventionStore
func (s *MemoryStore) ListInterventions(ctx context.Context, limit, offset int) ([]*model.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedInterventions()
	limit = ClampLimit(limit)
	offset = max(offset, 0)
	if offset >= len(all) {
		return []*model.Intervention{}, nil
	}
	end := min(offset+limit, len(all))
	out := make([]*model.Intervention, 0, end-offset)
	for _, iv := range all[offset:end] {
		out = append(out, iv.Clone())
	}
	return out, nil
}

// AllInterventions implements InterventionStore
func (s *MemoryStore) AllInterventions(ctx context.Context) ([]*model.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedInterventions()
	out := make([]*model.Intervention, len(all))
	for i, iv := range all {
		out[i] = iv.Clone()
	}
	return out, nil
}

// UpdateIntervention implements InterventionStore
func (s *MemoryStore) UpdateIntervention(ctx context.Context, iv *model.Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.interventions[iv.ID]
	if !ok {
		return fmt.Errorf("intervention %s: %w", iv.ID, model.ErrNotFound)
	}
	updated := iv.Clone()
	// Ingest URL is fixed at creation
	updated.IngestURL = existing.IngestURL
	updated.CreatedAt = existing.CreatedAt
	s.interventions[iv.ID] = updated
	return nil
}

// DeleteIntervention implements InterventionStore
func (s *MemoryStore) DeleteIntervention(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interventions[id]
	if !ok {
		return fmt.Errorf("intervention %s: %w", id, model.ErrNotFound)
	}
	if iv.IngestURL != "" {
		delete(s.ingestURLs, iv.IngestURL)
	}
	delete(s.interventions, id)
	return nil
}

// ArchiveIntervention implements InterventionStore
func (s *MemoryStore) ArchiveIntervention(ctx context.Context, archived *model.ArchivedIntervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *archived
	c.Record = archived.Record.Clone()
	s.archive = append(s.archive, &c)
	return nil
}

// ListArchived implements InterventionStore
func (s *MemoryStore) ListArchived(ctx context.Context, limit, offset int) ([]*model.ArchivedIntervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset = max(offset, 0)
	if offset >= len(s.archive) {
		return []*model.ArchivedIntervention{}, nil
	}
	end := min(offset+ClampLimit(limit), len(s.archive))

	out := make([]*model.ArchivedIntervention, 0, end-offset)
	for _, a := range s.archive[offset:end] {
		c := *a
		c.Record = a.Record.Clone()
		out = append(out, &c)
	}
	return out, nil
}

// CountInterventions implements InterventionStore
func (s *MemoryStore) CountInterventions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.interventions), nil
}

// AddHistory implements HistoryStore
func (s *MemoryStore) AddHistory(ctx context.Context, h *model.ScrapeHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *h
	s.history = append(s.history, &c)
	return nil
}

// RecentHistory implements HistoryStore, newest first
func (s *MemoryStore) RecentHistory(ctx context.Context, limit int) ([]*model.ScrapeHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = ClampLimit(limit)
	out := make([]*model.ScrapeHistory, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		c := *s.history[i]
		out = append(out, &c)
	}
	return out, nil
}

func sortByPriority(links []*model.DiscoveredLink) {
	sort.SliceStable(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.PredictedRelevance != b.PredictedRelevance {
			return a.PredictedRelevance > b.PredictedRelevance
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func statusIn(s model.LinkStatus, set []model.LinkStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
