// Package queue manages discovered links through their status lifecycle.
package queue

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
)

// DefaultRelevance is used when a link is enqueued without a relevance hint
const DefaultRelevance = 0.5

// Store is the persistence the queue needs
type Store interface {
	store.LinkStore
	store.HistoryStore
}

// NewLink describes one link to enqueue
type NewLink struct {
	URL       string         `json:"url" binding:"required"`
	SourceURL string         `json:"source_url,omitempty"`
	Type      string         `json:"type,omitempty"`
	Relevance *float64       `json:"relevance,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EnqueueResult reports an enqueue call
type EnqueueResult struct {
	Requested int             `json:"requested"`
	Inserted  int             `json:"inserted"`
	Invalid   []model.Failure `json:"invalid,omitempty"`
}

// automatic lists the statuses the pipeline may move a link from
var automatic = map[model.LinkStatus][]model.LinkStatus{
	model.LinkQueued:   {model.LinkPending},
	model.LinkScraped:  {model.LinkQueued},
	model.LinkRejected: {model.LinkQueued},
	model.LinkError:    {model.LinkQueued},
}

// bulkFrom lists the statuses an admin action may move a link from.
// A nil entry accepts any status.
var bulkFrom = map[model.BulkAction][]model.LinkStatus{
	model.ActionApprove: {model.LinkScraped},
	model.ActionReject:  {model.LinkPending, model.LinkQueued, model.LinkScraped, model.LinkApproved, model.LinkError},
	model.ActionReset:   nil,
	model.ActionPending: nil,
}

// Queue is the link lifecycle service
type Queue struct {
	store Store
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

// New creates a queue over s
func New(s Store, log logger.Logger) *Queue {
	return &Queue{
		store: s,
		log:   logger.OrNop(log),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Enqueue inserts new links as pending. URLs already in the queue are ignored.
func (q *Queue) Enqueue(ctx context.Context, links []NewLink) (*EnqueueResult, error) {
	result := &EnqueueResult{Requested: len(links)}
	now := q.now().UTC()

	batch := make([]*model.DiscoveredLink, 0, len(links))
	for _, nl := range links {
		normalized, err := NormalizeURL(nl.URL)
		if err != nil {
			result.Invalid = append(result.Invalid, model.Failure{ID: nl.URL, Kind: "invalid_url", Reason: err.Error()})
			continue
		}

		relevance := DefaultRelevance
		if nl.Relevance != nil {
			relevance = clampRelevance(*nl.Relevance)
		}

		var meta model.LinkMetadata
		if len(nl.Metadata) > 0 {
			meta.Extra = make(map[string]any, len(nl.Metadata))
			for k, v := range nl.Metadata {
				meta.Extra[k] = v
			}
			if title, ok := nl.Metadata["title"].(string); ok {
				meta.Title = title
				delete(meta.Extra, "title")
			}
		}

		batch = append(batch, &model.DiscoveredLink{
			ID:                 q.newID(),
			URL:                normalized,
			SourceURL:          strings.TrimSpace(nl.SourceURL),
			Status:             model.LinkPending,
			PredictedType:      strings.TrimSpace(nl.Type),
			PredictedRelevance: relevance,
			Metadata:           meta,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}

	inserted, err := q.store.InsertLinks(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	result.Inserted = inserted

	q.log.Info("Links enqueued",
		logger.Int("requested", result.Requested),
		logger.Int("inserted", inserted),
		logger.Int("invalid", len(result.Invalid)),
	)
	return result, nil
}

// EnqueueURLs is Enqueue for bare URLs
func (q *Queue) EnqueueURLs(ctx context.Context, urls []string) (*EnqueueResult, error) {
	links := make([]NewLink, len(urls))
	for i, u := range urls {
		links[i] = NewLink{URL: u}
	}
	return q.Enqueue(ctx, links)
}

// NextBatch returns the next links in priority order without claiming them.
// With no statuses it looks at pending links.
func (q *Queue) NextBatch(ctx context.Context, n int, statuses ...model.LinkStatus) ([]*model.DiscoveredLink, error) {
	if len(statuses) == 0 {
		statuses = []model.LinkStatus{model.LinkPending}
	}
	return q.store.NextBatch(ctx, n, statuses)
}

// ClaimBatch atomically moves up to n pending links to queued
func (q *Queue) ClaimBatch(ctx context.Context, n int) ([]*model.DiscoveredLink, error) {
	links, err := q.store.ClaimBatch(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	return links, nil
}

// Claim moves a single pending link to queued
func (q *Queue) Claim(ctx context.Context, id string) (*model.DiscoveredLink, error) {
	err := q.store.UpdateLink(ctx, id, []model.LinkStatus{model.LinkPending}, store.LinkUpdate{Status: model.LinkQueued})
	if errors.Is(err, model.ErrInvalidTransition) {
		return nil, fmt.Errorf("link %s: %w", id, model.ErrNoLinkAvailable)
	}
	if err != nil {
		return nil, err
	}
	return q.store.GetLink(ctx, id)
}

// Transition applies an automatic lifecycle change
func (q *Queue) Transition(ctx context.Context, id string, to model.LinkStatus, upd store.LinkUpdate) error {
	from, ok := automatic[to]
	if !ok {
		return fmt.Errorf("%w: pipeline cannot move a link to %s", model.ErrInvalidTransition, to)
	}
	upd.Status = to
	return q.store.UpdateLink(ctx, id, from, upd)
}

// BulkTransition applies an admin action to each id and reports partial success
func (q *Queue) BulkTransition(ctx context.Context, ids []string, action model.BulkAction) (*model.BulkResult, error) {
	from, ok := bulkFrom[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAction, action)
	}

	ids = dedupe(ids)
	result := &model.BulkResult{Action: action, Requested: len(ids)}

	upd := store.LinkUpdate{Status: action.Target()}
	if action == model.ActionReset || action == model.ActionPending {
		cleared := ""
		upd.ErrorMessage = &cleared
	}

	for _, id := range ids {
		err := q.store.UpdateLink(ctx, id, from, upd)
		switch {
		case err == nil:
			result.Updated++
		case errors.Is(err, model.ErrNotFound):
			result.Failures = append(result.Failures, model.Failure{ID: id, Kind: "not_found", Reason: "not found"})
		case errors.Is(err, model.ErrInvalidTransition):
			result.Failures = append(result.Failures, model.Failure{ID: id, Kind: "invalid_transition", Reason: err.Error()})
		default:
			result.Failures = append(result.Failures, model.Failure{ID: id, Kind: "error", Reason: err.Error()})
		}
	}

	for _, f := range result.Failures {
		q.log.Warn("Bulk transition skipped link",
			logger.LinkID(f.ID),
			logger.String("action", string(action)),
			logger.String("reason", f.Reason),
		)
	}
	q.log.Info("Bulk transition", logger.String("summary", result.Summary()))

	return result, nil
}

// ListResult is one page of links plus distribution summaries
type ListResult struct {
	Links        []*model.DiscoveredLink  `json:"links"`
	Total        int                      `json:"total"`
	Limit        int                      `json:"limit"`
	Offset       int                      `json:"offset"`
	StatusCounts map[model.LinkStatus]int `json:"status_counts"`
	TypeCounts   map[string]int           `json:"type_counts"`
}

// List returns a page of links
func (q *Queue) List(ctx context.Context, filter store.LinkFilter) (*ListResult, error) {
	filter.Limit = store.ClampLimit(filter.Limit)

	links, err := q.store.ListLinks(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := q.store.CountLinks(ctx, filter)
	if err != nil {
		return nil, err
	}
	statusCounts, err := q.store.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	typeCounts, err := q.store.TypeCounts(ctx)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Links:        links,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
		StatusCounts: statusCounts,
		TypeCounts:   typeCounts,
	}, nil
}

// StatusReport summarizes queue health
type StatusReport struct {
	StatusCounts map[model.LinkStatus]int `json:"status_counts"`
	TypeCounts   map[string]int           `json:"type_counts"`
	Total        int                      `json:"total"`
	Recent       []*model.ScrapeHistory   `json:"recent"`
	SuccessRate  float64                  `json:"success_rate"` // Share of recent attempts that ended scraped
}

// Status returns distributions and the most recent processing attempts
func (q *Queue) Status(ctx context.Context, recent int) (*StatusReport, error) {
	statusCounts, err := q.store.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	typeCounts, err := q.store.TypeCounts(ctx)
	if err != nil {
		return nil, err
	}
	history, err := q.store.RecentHistory(ctx, recent)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		StatusCounts: statusCounts,
		TypeCounts:   typeCounts,
		Recent:       history,
	}
	for _, n := range statusCounts {
		report.Total += n
	}
	if len(history) > 0 {
		ok := 0
		for _, h := range history {
			if h.Status == model.LinkScraped {
				ok++
			}
		}
		report.SuccessRate = float64(ok) / float64(len(history))
	}
	return report, nil
}

// RecordAttempt appends a scrape history row
func (q *Queue) RecordAttempt(ctx context.Context, link *model.DiscoveredLink, status model.LinkStatus, itemsFound int, errMsg string) {
	h := &model.ScrapeHistory{
		ID:             q.newID(),
		LinkID:         link.ID,
		URL:            link.URL,
		Status:         status,
		ItemsFound:     itemsFound,
		RelevanceScore: link.PredictedRelevance,
		Error:          errMsg,
		CreatedAt:      q.now().UTC(),
	}
	if err := q.store.AddHistory(ctx, h); err != nil {
		q.log.Warn("Failed to record scrape history", logger.LinkID(link.ID), logger.Error(err))
	}
}

// NormalizeURL trims a URL and checks it is absolute http(s)
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

func clampRelevance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
