package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/store"
)

const interventionSelectColumns = `id, name, description, type, geography, target_cohort,
	consent_level, cultural_authority, latitude, longitude, source_url, website,
	operating_organization, contact_phone, contact_email, evidence_level,
	COALESCE(ingest_url, '') AS ingest_url, source_documents, metadata, created_at, updated_at`

// InterventionRepository handles interventions and their archive
type InterventionRepository struct {
	db *sqlx.DB
}

// NewInterventionRepository creates a new intervention repository
func NewInterventionRepository(db *sqlx.DB) *InterventionRepository {
	return &InterventionRepository{db: db}
}

// InsertIntervention inserts a record unless its ingest URL is already known.
// The guard checks both the ingest_url column and every record's provenance.
func (r *InterventionRepository) InsertIntervention(ctx context.Context, iv *model.Intervention) error {
	query := `
		INSERT INTO interventions (
			id, name, description, type, geography, target_cohort, consent_level,
			cultural_authority, latitude, longitude, source_url, website,
			operating_organization, contact_phone, contact_email, evidence_level,
			ingest_url, source_documents, metadata, created_at, updated_at
		)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::jsonb, $6::jsonb, $7::text,
			$8::text, $9::double precision, $10::double precision, $11::text, $12::text,
			$13::text, $14::text, $15::text, $16::text,
			NULLIF($17::text, ''), $18::jsonb, $19::jsonb, $20::timestamptz, $21::timestamptz
		WHERE $17::text = '' OR NOT EXISTS (
			SELECT 1 FROM interventions
			WHERE ingest_url = $17::text
			   OR source_documents @> jsonb_build_array(jsonb_build_object('url', $17::text))
		)
	`

	result, err := r.db.ExecContext(ctx, query,
		iv.ID, iv.Name, iv.Description, iv.Type, iv.Geography, iv.TargetCohort, iv.ConsentLevel,
		iv.CulturalAuthority, iv.Latitude, iv.Longitude, iv.SourceURL, iv.Website,
		iv.OperatingOrganization, iv.ContactPhone, iv.ContactEmail, iv.EvidenceLevel,
		iv.IngestURL, iv.SourceDocuments, iv.Metadata, iv.CreatedAt, iv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("intervention for %s: %w", iv.IngestURL, model.ErrConflict)
		}
		return fmt.Errorf("failed to insert intervention: %w", err)
	}
	return execRequireRows(result, nil, fmt.Errorf("intervention for %s: %w", iv.IngestURL, model.ErrConflict))
}

// GetIntervention retrieves a record by id
func (r *InterventionRepository) GetIntervention(ctx context.Context, id string) (*model.Intervention, error) {
	var iv model.Intervention
	query := `SELECT ` + interventionSelectColumns + ` FROM interventions WHERE id = $1`

	if err := r.db.GetContext(ctx, &iv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("intervention %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get intervention: %w", err)
	}
	return &iv, nil
}

// ListInterventions returns one page ordered by creation time
func (r *InterventionRepository) ListInterventions(ctx context.Context, limit, offset int) ([]*model.Intervention, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + interventionSelectColumns + `
		FROM interventions ORDER BY created_at ASC, id ASC LIMIT $1 OFFSET $2`

	out := []*model.Intervention{}
	if err := r.db.SelectContext(ctx, &out, query, store.ClampLimit(limit), offset); err != nil {
		return nil, fmt.Errorf("failed to list interventions: %w", err)
	}
	return out, nil
}

// AllInterventions loads every record for a merge run
func (r *InterventionRepository) AllInterventions(ctx context.Context) ([]*model.Intervention, error) {
	query := `SELECT ` + interventionSelectColumns + ` FROM interventions ORDER BY created_at ASC, id ASC`

	out := []*model.Intervention{}
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to load interventions: %w", err)
	}
	return out, nil
}

// UpdateIntervention rewrites the mutable columns. ingest_url and created_at never change.
func (r *InterventionRepository) UpdateIntervention(ctx context.Context, iv *model.Intervention) error {
	query := `
		UPDATE interventions SET
			name = $2, description = $3, type = $4, geography = $5, target_cohort = $6,
			consent_level = $7, cultural_authority = $8, latitude = $9, longitude = $10,
			source_url = $11, website = $12, operating_organization = $13,
			contact_phone = $14, contact_email = $15, evidence_level = $16,
			source_documents = $17, metadata = $18, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		iv.ID, iv.Name, iv.Description, iv.Type, iv.Geography, iv.TargetCohort,
		iv.ConsentLevel, iv.CulturalAuthority, iv.Latitude, iv.Longitude,
		iv.SourceURL, iv.Website, iv.OperatingOrganization,
		iv.ContactPhone, iv.ContactEmail, iv.EvidenceLevel,
		iv.SourceDocuments, iv.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to update intervention: %w", err)
	}
	return execRequireRows(result, nil, fmt.Errorf("intervention %s: %w", iv.ID, model.ErrNotFound))
}

// DeleteIntervention removes a record
func (r *InterventionRepository) DeleteIntervention(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM interventions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete intervention: %w", err)
	}
	return execRequireRows(result, nil, fmt.Errorf("intervention %s: %w", id, model.ErrNotFound))
}

// ArchiveIntervention stores a snapshot of a merged-away record
func (r *InterventionRepository) ArchiveIntervention(ctx context.Context, archived *model.ArchivedIntervention) error {
	record, err := json.Marshal(archived.Record)
	if err != nil {
		return fmt.Errorf("failed to encode archived record: %w", err)
	}

	query := `INSERT INTO intervention_archive (id, merged_into, record, archived_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, archived.ID, archived.MergedInto, record, archived.ArchivedAt); err != nil {
		return fmt.Errorf("failed to archive intervention: %w", err)
	}
	return nil
}

type archiveRow struct {
	ID         string    `db:"id"`
	MergedInto string    `db:"merged_into"`
	Record     []byte    `db:"record"`
	ArchivedAt time.Time `db:"archived_at"`
}

// ListArchived returns one page of the archive, oldest first
func (r *InterventionRepository) ListArchived(ctx context.Context, limit, offset int) ([]*model.ArchivedIntervention, error) {
	query := `SELECT id, merged_into, record, archived_at
		FROM intervention_archive ORDER BY archived_at ASC, id ASC LIMIT $1 OFFSET $2`

	var rows []archiveRow
	if err := r.db.SelectContext(ctx, &rows, query, store.ClampLimit(limit), max(offset, 0)); err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	out := make([]*model.ArchivedIntervention, 0, len(rows))
	for _, row := range rows {
		var iv model.Intervention
		if err := json.Unmarshal(row.Record, &iv); err != nil {
			return nil, fmt.Errorf("failed to decode archived record %s: %w", row.ID, err)
		}
		out = append(out, &model.ArchivedIntervention{
			ID: row.ID, MergedInto: row.MergedInto, Record: &iv, ArchivedAt: row.ArchivedAt,
		})
	}
	return out, nil
}

// CountInterventions returns the number of records
func (r *InterventionRepository) CountInterventions(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM interventions`); err != nil {
		return 0, fmt.Errorf("failed to count interventions: %w", err)
	}
	return count, nil
}
