// Package worker runs pipeline items on a bounded pool with per-host pacing.
package worker

import (
	"context"
	"sync"
)

// Job is one unit of work
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job reports back
type Result interface {
	GetError() error
}

type slot struct {
	index int
	job   Job
}

// Pool runs submitted jobs on a fixed number of goroutines. Results keep
// submission order; a job that never ran leaves no result.
type Pool struct {
	workers int
	jobs    chan slot
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// sendMu keeps close from racing an in-flight send
	sendMu sync.RWMutex
	closed bool

	mu      sync.Mutex
	results []Result
}

// NewPool creates a pool of workers bound to ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		workers: workers,
		jobs:    make(chan slot, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case s, ok := <-p.jobs:
			if !ok {
				return
			}
			res := s.job.Execute(p.ctx)
			p.mu.Lock()
			p.results[s.index] = res
			p.mu.Unlock()
		}
	}
}

// Submit queues a job. It blocks while the queue is full and returns false
// once the pool is closed or its context is done.
func (p *Pool) Submit(job Job) bool {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed || p.ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	index := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- slot{index: index, job: job}:
		return true
	}
}

// Wait stops accepting jobs, waits for the workers and returns the results
// in submission order
func (p *Pool) Wait() []Result {
	p.close()
	p.wg.Wait()
	p.cancel()
	return p.collect()
}

// Shutdown cancels running jobs and waits for the workers to exit
func (p *Pool) Shutdown() []Result {
	p.cancel()
	p.close()
	p.wg.Wait()
	return p.collect()
}

func (p *Pool) close() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
}

func (p *Pool) collect() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, 0, len(p.results))
	for _, r := range p.results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
