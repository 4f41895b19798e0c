package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS discovered_links (
		id                  TEXT PRIMARY KEY,
		url                 TEXT NOT NULL UNIQUE,
		source_url          TEXT,
		status              TEXT NOT NULL DEFAULT 'pending',
		predicted_type      TEXT,
		predicted_relevance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
		metadata            JSONB NOT NULL DEFAULT '{}'::jsonb,
		error_message       TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_discovered_links_queue
		ON discovered_links (status, predicted_relevance DESC, created_at ASC)`,
	`CREATE TABLE IF NOT EXISTS interventions (
		id                     TEXT PRIMARY KEY,
		name                   TEXT NOT NULL CHECK (name <> ''),
		description            TEXT NOT NULL DEFAULT '',
		type                   TEXT NOT NULL DEFAULT '',
		geography              JSONB NOT NULL DEFAULT '[]'::jsonb,
		target_cohort          JSONB NOT NULL DEFAULT '[]'::jsonb,
		consent_level          TEXT NOT NULL DEFAULT '',
		cultural_authority     TEXT NOT NULL DEFAULT '',
		latitude               DOUBLE PRECISION,
		longitude              DOUBLE PRECISION,
		source_url             TEXT NOT NULL DEFAULT '',
		website                TEXT NOT NULL DEFAULT '',
		operating_organization TEXT NOT NULL DEFAULT '',
		contact_phone          TEXT NOT NULL DEFAULT '',
		contact_email          TEXT NOT NULL DEFAULT '',
		evidence_level         TEXT NOT NULL DEFAULT '',
		ingest_url             TEXT UNIQUE,
		source_documents       JSONB NOT NULL DEFAULT '[]'::jsonb,
		metadata               JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interventions_source_documents
		ON interventions USING GIN (source_documents jsonb_path_ops)`,
	`CREATE TABLE IF NOT EXISTS intervention_archive (
		id          TEXT NOT NULL,
		merged_into TEXT NOT NULL,
		record      JSONB NOT NULL,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS scrape_history (
		id              TEXT PRIMARY KEY,
		link_id         TEXT NOT NULL,
		url             TEXT NOT NULL,
		status          TEXT NOT NULL,
		items_found     INTEGER NOT NULL DEFAULT 0,
		relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		error           TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_history_created ON scrape_history (created_at DESC)`,
}

// Migrate creates tables and indexes that do not exist yet
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
