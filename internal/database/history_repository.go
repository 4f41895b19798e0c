package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/store"
)

// HistoryRepository handles scrape_history
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AddHistory records one processing attempt
func (r *HistoryRepository) AddHistory(ctx context.Context, h *model.ScrapeHistory) error {
	query := `
		INSERT INTO scrape_history (id, link_id, url, status, items_found, relevance_score, error, created_at)
		VALUES (:id, :link_id, :url, :status, :items_found, :relevance_score, :error, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, h); err != nil {
		return fmt.Errorf("failed to add history: %w", err)
	}
	return nil
}

// RecentHistory returns the newest attempts first
func (r *HistoryRepository) RecentHistory(ctx context.Context, limit int) ([]*model.ScrapeHistory, error) {
	query := `
		SELECT id, link_id, url, status, items_found, relevance_score, error, created_at
		FROM scrape_history
		ORDER BY created_at DESC
		LIMIT $1
	`
	out := []*model.ScrapeHistory{}
	if err := r.db.SelectContext(ctx, &out, query, store.ClampLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return out, nil
}
