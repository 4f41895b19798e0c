package cli

import (
	"context"
	"fmt"

	"github.com/ppiankov/alma/internal/database"
	"github.com/ppiankov/alma/internal/logger"
	"github.com/ppiankov/alma/internal/merge"
	"github.com/ppiankov/alma/internal/metrics"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/pipeline"
	"github.com/ppiankov/alma/internal/queue"
	"github.com/ppiankov/alma/internal/store"
)

// app holds the components one command invocation needs. Its lifetime is
// the command run.
type app struct {
	cfg       model.Config
	log       logger.Logger
	store     store.Store
	metrics   *metrics.Metrics
	processor *pipeline.Processor
	merger    *merge.Engine
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg)
}

func buildApp(ctx context.Context, cfg model.Config) (*app, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	s, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	processor, err := pipeline.New(cfg, s, m, log)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		log:       log,
		store:     s,
		metrics:   m,
		processor: processor,
		merger:    merge.NewEngine(s, merge.NewLocker(cfg), m, log),
	}, nil
}

func (a *app) queue() *queue.Queue {
	return a.processor.Queue()
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close store", logger.Error(err))
	}
	_ = a.log.Sync()
}

func openStore(ctx context.Context, cfg model.DatabaseConfig, log logger.Logger) (store.Store, error) {
	if cfg.Driver != "postgres" {
		log.Warn("Using in-memory store; data is lost on exit")
		return store.NewMemoryStore(), nil
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	log.Info("Connected to database", logger.String("host", cfg.Host), logger.String("dbname", cfg.DBName))
	return database.NewStore(db), nil
}
