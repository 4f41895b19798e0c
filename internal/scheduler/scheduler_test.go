package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/alma/internal/merge"
	"github.com/ppiankov/alma/internal/model"
)

type fakeProcessor struct {
	calls atomic.Int32
	size  atomic.Int32
}

func (f *fakeProcessor) RunBatch(_ context.Context, size int) (*model.BatchSummary, error) {
	f.calls.Add(1)
	f.size.Store(int32(size))
	return &model.BatchSummary{}, nil
}

type fakeMerger struct {
	calls atomic.Int32
	live  atomic.Bool
	err   error
}

func (f *fakeMerger) Run(_ context.Context, live bool) (*merge.Report, error) {
	f.calls.Add(1)
	f.live.Store(live)
	if f.err != nil {
		return nil, f.err
	}
	return &merge.Report{Live: live}, nil
}

func TestNew_RegistersJobs(t *testing.T) {
	cfg := model.SchedulerConfig{ProcessSchedule: "*/15 * * * *", MergeSchedule: "0 3 * * *"}
	s, err := New(cfg, 10, &fakeProcessor{}, &fakeMerger{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Jobs() != 2 {
		t.Errorf("expected 2 jobs, got %d", s.Jobs())
	}

	cfg.MergeSchedule = ""
	s, err = New(cfg, 10, &fakeProcessor{}, &fakeMerger{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Jobs() != 1 {
		t.Errorf("empty schedule should disable the job, got %d jobs", s.Jobs())
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(model.SchedulerConfig{ProcessSchedule: "every minute"}, 10, &fakeProcessor{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestJobsCallRunners(t *testing.T) {
	p := &fakeProcessor{}
	m := &fakeMerger{}
	s, err := New(model.SchedulerConfig{MergeLive: true}, 25, p, m, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.runProcess()
	s.runMerge()

	if p.calls.Load() != 1 || p.size.Load() != 25 {
		t.Errorf("processor calls=%d size=%d", p.calls.Load(), p.size.Load())
	}
	if m.calls.Load() != 1 || !m.live.Load() {
		t.Errorf("merger calls=%d live=%v", m.calls.Load(), m.live.Load())
	}
}

func TestRunMerge_LockHeldIsNotFatal(t *testing.T) {
	m := &fakeMerger{err: model.ErrMergeInProgress}
	s, err := New(model.SchedulerConfig{}, 10, nil, m, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.runMerge()
	m.err = errors.New("boom")
	s.runMerge()
	if m.calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", m.calls.Load())
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(model.SchedulerConfig{ProcessSchedule: "@every 1h"}, 10, &fakeProcessor{}, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if s.ctx.Err() == nil {
		t.Error("Stop should cancel the job context")
	}
}
