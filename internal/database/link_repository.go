package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/store"
)

// linkSelectColumns lists columns for SELECT queries on discovered_links
const linkSelectColumns = `id, url, COALESCE(source_url, '') AS source_url, status,
	COALESCE(predicted_type, '') AS predicted_type, predicted_relevance, metadata,
	COALESCE(error_message, '') AS error_message, created_at, updated_at`

// LinkRepository handles discovered_links
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// InsertLinks inserts links in one transaction, skipping URLs that already exist
func (r *LinkRepository) InsertLinks(ctx context.Context, links []*model.DiscoveredLink) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO discovered_links
			(id, url, source_url, status, predicted_type, predicted_relevance, metadata, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8, $9)
		ON CONFLICT (url) DO NOTHING
	`

	inserted := 0
	for _, l := range links {
		result, execErr := tx.ExecContext(ctx, query,
			l.ID, l.URL, l.SourceURL, string(l.Status), l.PredictedType,
			l.PredictedRelevance, l.Metadata, l.CreatedAt, l.UpdatedAt,
		)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert link %s: %w", l.URL, execErr)
		}
		n, affectedErr := result.RowsAffected()
		if affectedErr != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", affectedErr)
		}
		inserted += int(n)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return 0, fmt.Errorf("failed to commit insert transaction: %w", commitErr)
	}
	return inserted, nil
}

// GetLink retrieves a link by id
func (r *LinkRepository) GetLink(ctx context.Context, id string) (*model.DiscoveredLink, error) {
	var link model.DiscoveredLink
	query := `SELECT ` + linkSelectColumns + ` FROM discovered_links WHERE id = $1`

	err := r.db.GetContext(ctx, &link, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("link %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return &link, nil
}

func buildLinkWhere(filter store.LinkFilter) (string, []any) {
	var (
		clauses  []string
		args     []any
		argIndex = 1
	)

	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(filter.Status))
		argIndex++
	}
	if filter.PredictedType != "" {
		clauses = append(clauses, fmt.Sprintf("predicted_type = $%d", argIndex))
		args = append(args, filter.PredictedType)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// ListLinks lists links in queue priority order
func (r *LinkRepository) ListLinks(ctx context.Context, filter store.LinkFilter) ([]*model.DiscoveredLink, error) {
	where, args := buildLinkWhere(filter)
	limit := store.ClampLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s FROM discovered_links
		%s
		ORDER BY predicted_relevance DESC, created_at ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, linkSelectColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	links := []*model.DiscoveredLink{}
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

// CountLinks counts links matching the filter
func (r *LinkRepository) CountLinks(ctx context.Context, filter store.LinkFilter) (int, error) {
	where, args := buildLinkWhere(filter)
	query := `SELECT COUNT(*) FROM discovered_links ` + where

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}

// NextBatch returns the highest-priority links in the given statuses without claiming them
func (r *LinkRepository) NextBatch(ctx context.Context, n int, statuses []model.LinkStatus) ([]*model.DiscoveredLink, error) {
	query := `
		SELECT ` + linkSelectColumns + `
		FROM discovered_links
		WHERE status = ANY($1)
		ORDER BY predicted_relevance DESC, created_at ASC
		LIMIT $2
	`

	links := []*model.DiscoveredLink{}
	if err := r.db.SelectContext(ctx, &links, query, pq.Array(statusStrings(statuses)), n); err != nil {
		return nil, fmt.Errorf("failed to select next batch: %w", err)
	}
	return links, nil
}

// ClaimBatch moves up to n pending links to queued in a single statement.
// Rows locked by a concurrent claim are skipped, so no link is claimed twice.
func (r *LinkRepository) ClaimBatch(ctx context.Context, n int) ([]*model.DiscoveredLink, error) {
	query := `
		UPDATE discovered_links
		SET status = 'queued', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM discovered_links
			WHERE status = 'pending'
			ORDER BY predicted_relevance DESC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + linkSelectColumns

	links := []*model.DiscoveredLink{}
	if err := r.db.SelectContext(ctx, &links, query, n); err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}

	// RETURNING order is unspecified
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].PredictedRelevance != links[j].PredictedRelevance {
			return links[i].PredictedRelevance > links[j].PredictedRelevance
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	return links, nil
}

// UpdateLink applies a conditional status change
func (r *LinkRepository) UpdateLink(ctx context.Context, id string, from []model.LinkStatus, upd store.LinkUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	argIndex := 1

	if upd.Status != "" {
		sets = append(sets, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(upd.Status))
		argIndex++
	}
	if upd.ErrorMessage != nil {
		sets = append(sets, fmt.Sprintf("error_message = NULLIF($%d, '')", argIndex))
		args = append(args, *upd.ErrorMessage)
		argIndex++
	}
	if upd.Metadata != nil {
		sets = append(sets, fmt.Sprintf("metadata = $%d", argIndex))
		args = append(args, *upd.Metadata)
		argIndex++
	}

	query := fmt.Sprintf(`UPDATE discovered_links SET %s WHERE id = $%d`, strings.Join(sets, ", "), argIndex)
	args = append(args, id)
	if len(from) > 0 {
		query += fmt.Sprintf(" AND status = ANY($%d)", argIndex+1)
		args = append(args, pq.Array(statusStrings(from)))
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing changed: either the link is gone or it is in another status
	var current string
	err = r.db.GetContext(ctx, &current, `SELECT status FROM discovered_links WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("link %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read link status: %w", err)
	}
	return fmt.Errorf("link %s is %s: %w", id, current, model.ErrInvalidTransition)
}

// StatusCounts returns the number of links per status
func (r *LinkRepository) StatusCounts(ctx context.Context) (map[model.LinkStatus]int, error) {
	rows := []countRow{}
	query := `SELECT status AS key, COUNT(*) AS count FROM discovered_links GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}

	counts := make(map[model.LinkStatus]int, len(rows))
	for _, row := range rows {
		counts[model.LinkStatus(row.Key)] = row.Count
	}
	return counts, nil
}

// TypeCounts returns the number of links per predicted type
func (r *LinkRepository) TypeCounts(ctx context.Context) (map[string]int, error) {
	rows := []countRow{}
	query := `SELECT COALESCE(NULLIF(predicted_type, ''), 'unknown') AS key, COUNT(*) AS count
		FROM discovered_links GROUP BY 1`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count types: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}
