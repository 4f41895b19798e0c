// Package merge collapses intervention records that describe the same
// entity into one keeper per normalized name.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/alma/internal/logger"
	"github.com/ppiankov/alma/internal/metrics"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/score"
	"github.com/ppiankov/alma/internal/store"
)

// Failure kinds reported by a run
const (
	FailureCommit = "commit"
	FailureDelete = "delete"
)

// Report summarizes one merge run
type Report struct {
	Live            bool            `json:"live_mode"`
	GroupsProcessed int             `json:"groups_processed"`
	RecordsDeleted  int             `json:"records_deleted"`
	FinalCount      int             `json:"final_count"`
	Decisions       []*Decision     `json:"decisions"`
	Failures        []model.Failure `json:"failures,omitempty"`
	Duration        time.Duration   `json:"duration"`
}

// Engine runs merge passes over the intervention store
type Engine struct {
	store   store.InterventionStore
	locker  Locker
	scorer  *score.Scorer
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

// NewEngine creates an engine. A nil locker uses an in-process lock.
func NewEngine(s store.InterventionStore, locker Locker, m *metrics.Metrics, log logger.Logger) *Engine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Engine{
		store:   s,
		locker:  locker,
		scorer:  score.NewScorer(),
		metrics: m,
		log:     logger.OrNop(log),
		now:     time.Now,
	}
}

// Run plans every duplicate group and, when live, applies the plan.
// A dry run reports exactly what a live run over the same records would do.
// Cancellation is checked between groups; the partial report is returned
// with the context error.
func (e *Engine) Run(ctx context.Context, live bool) (*Report, error) {
	release, err := e.locker.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := e.now()
	records, err := e.store.AllInterventions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load interventions: %w", err)
	}

	decisions := Plan(records, e.scorer, start)
	report := &Report{Live: live, Decisions: decisions}
	e.log.Info("Merge plan ready",
		logger.Bool("live", live),
		logger.Int("records", len(records)),
		logger.Int("groups", len(decisions)),
	)

	var runErr error
	commitFailures, deleteFailures := 0, 0
	for _, d := range decisions {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		report.GroupsProcessed++

		if !live {
			report.RecordsDeleted += len(d.DeletedIDs)
			e.log.Info("Would merge group",
				logger.String("key", d.Key),
				logger.InterventionID(d.KeeperID),
				logger.Strings("delete", d.DeletedIDs),
				logger.Strings("changed", d.ChangedFields),
			)
			continue
		}

		deleted, failures := e.apply(ctx, d)
		report.RecordsDeleted += deleted
		report.Failures = append(report.Failures, failures...)
		for _, f := range failures {
			if f.Kind == FailureCommit {
				commitFailures++
			} else {
				deleteFailures++
			}
		}
	}

	if live {
		count, err := e.store.CountInterventions(context.WithoutCancel(ctx))
		if err != nil {
			e.log.Warn("Failed to count interventions after merge", logger.Error(err))
		}
		report.FinalCount = count
	} else {
		report.FinalCount = len(records) - report.RecordsDeleted
	}
	report.Duration = e.now().Sub(start)

	e.metrics.ObserveMerge(report.GroupsProcessed, report.RecordsDeleted, commitFailures, deleteFailures)
	e.log.Info("Merge complete",
		logger.Bool("live", live),
		logger.Int("groups_processed", report.GroupsProcessed),
		logger.Int("records_deleted", report.RecordsDeleted),
		logger.Int("final_count", report.FinalCount),
		logger.Int("failures", len(report.Failures)),
	)
	return report, runErr
}

// apply commits one decision. A failed keeper update skips the group's
// deletes; a failed delete is recorded and the rest still run.
func (e *Engine) apply(ctx context.Context, d *Decision) (int, []model.Failure) {
	if err := e.store.UpdateIntervention(ctx, d.Merged()); err != nil {
		cerr := &model.MergeCommitError{KeeperID: d.KeeperID, Err: err}
		e.log.Error("Merge commit failed, duplicates kept",
			logger.InterventionID(d.KeeperID),
			logger.Error(err),
		)
		return 0, []model.Failure{{ID: d.KeeperID, Kind: FailureCommit, Reason: cerr.Error()}}
	}

	var failures []model.Failure
	deleted := 0
	for _, dup := range d.duplicates {
		if err := e.remove(ctx, d.KeeperID, dup); err != nil {
			var derr *model.MergeDeleteError
			if !errors.As(err, &derr) {
				derr = &model.MergeDeleteError{KeeperID: d.KeeperID, DuplicateID: dup.ID, Err: err}
			}
			e.log.Warn("Failed to delete merged duplicate",
				logger.InterventionID(dup.ID),
				logger.String("keeper_id", d.KeeperID),
				logger.Error(err),
			)
			failures = append(failures, model.Failure{ID: dup.ID, Kind: FailureDelete, Reason: derr.Error()})
			continue
		}
		deleted++
	}

	e.log.Info("Merged group",
		logger.String("key", d.Key),
		logger.InterventionID(d.KeeperID),
		logger.Int("deleted", deleted),
		logger.Strings("changed", d.ChangedFields),
	)
	return deleted, failures
}

// remove archives dup and deletes it. Archive failure leaves the record in place.
func (e *Engine) remove(ctx context.Context, keeperID string, dup *model.Intervention) error {
	archived := &model.ArchivedIntervention{
		ID:         dup.ID,
		MergedInto: keeperID,
		Record:     dup,
		ArchivedAt: e.now().UTC(),
	}
	if err := e.store.ArchiveIntervention(ctx, archived); err != nil {
		return &model.MergeDeleteError{KeeperID: keeperID, DuplicateID: dup.ID, Err: fmt.Errorf("archive: %w", err)}
	}
	if err := e.store.DeleteIntervention(ctx, dup.ID); err != nil {
		return &model.MergeDeleteError{KeeperID: keeperID, DuplicateID: dup.ID, Err: err}
	}
	return nil
}
