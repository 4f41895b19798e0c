// Package database provides the Postgres-backed store.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ppiankov/alma/internal/model"
)

// DefaultPingTimeout bounds the connection check at startup
const DefaultPingTimeout = 5 * time.Second

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

// Connect opens and verifies a Postgres connection pool
func Connect(ctx context.Context, cfg model.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// Store implements store.Store on Postgres
type Store struct {
	*LinkRepository
	*InterventionRepository
	*HistoryRepository
	db *sqlx.DB
}

// NewStore wraps a connection pool
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		LinkRepository:         NewLinkRepository(db),
		InterventionRepository: NewInterventionRepository(db),
		HistoryRepository:      NewHistoryRepository(db),
		db:                     db,
	}
}

// Close closes the pool
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
