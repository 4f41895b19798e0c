// Package scheduler triggers discovery batches and merge runs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/alma/internal/logger"
	"github.com/ppiankov/alma/internal/merge"
	"github.com/ppiankov/alma/internal/model"
	"github.com/robfig/cron/v3"
)

// BatchRunner processes one batch of pending links
type BatchRunner interface {
	RunBatch(ctx context.Context, size int) (*model.BatchSummary, error)
}

// MergeRunner runs one merge pass
type MergeRunner interface {
	Run(ctx context.Context, live bool) (*merge.Report, error)
}

// Scheduler owns the cron instance and its two jobs
type Scheduler struct {
	cron      *cron.Cron
	processor BatchRunner
	merger    MergeRunner
	cfg       model.SchedulerConfig
	batchSize int
	log       logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the configured jobs. An empty schedule disables that job.
// Runs that would overlap a still-running one are skipped.
func New(cfg model.SchedulerConfig, batchSize int, processor BatchRunner, merger MergeRunner, log logger.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		processor: processor,
		merger:    merger,
		cfg:       cfg,
		batchSize: batchSize,
		log:       logger.OrNop(log),
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.ProcessSchedule != "" && processor != nil {
		if _, err := s.cron.AddFunc(cfg.ProcessSchedule, s.runProcess); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid process schedule %q: %w", cfg.ProcessSchedule, err)
		}
	}
	if cfg.MergeSchedule != "" && merger != nil {
		if _, err := s.cron.AddFunc(cfg.MergeSchedule, s.runMerge); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid merge schedule %q: %w", cfg.MergeSchedule, err)
		}
	}
	return s, nil
}

// Jobs returns the number of registered jobs
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the cron loop in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", logger.Int("jobs", s.Jobs()))
	for _, e := range s.cron.Entries() {
		s.log.Info("Scheduled job", logger.Any("next_run", e.Next))
	}
}

// Stop cancels running jobs and waits for them to return or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runProcess() {
	summary, err := s.processor.RunBatch(s.ctx, s.batchSize)
	if err != nil {
		s.log.Error("Scheduled batch failed", logger.Error(err))
		return
	}
	s.log.Info("Scheduled batch finished",
		logger.Int("processed", summary.Processed),
		logger.Int("scraped", summary.Scraped),
		logger.Int("errors", summary.Errors),
	)
}

func (s *Scheduler) runMerge() {
	report, err := s.merger.Run(s.ctx, s.cfg.MergeLive)
	switch {
	case errors.Is(err, model.ErrMergeInProgress):
		s.log.Info("Scheduled merge skipped, another run holds the lock")
	case err != nil:
		s.log.Error("Scheduled merge failed", logger.Error(err))
	default:
		s.log.Info("Scheduled merge finished",
			logger.Bool("live", report.Live),
			logger.Int("groups_processed", report.GroupsProcessed),
			logger.Int("records_deleted", report.RecordsDeleted),
		)
	}
}
