package worker

import (
	"context"
	"time"

	"github.com/ppiankov/alma/internal/model"
)

// LinkProcessor runs one claimed link through the pipeline. It owns every
// status transition for the link and reports the outcome.
type LinkProcessor interface {
	Process(ctx context.Context, link *model.DiscoveredLink) *model.ProcessResult
}

// LinkJob processes one link after the host limiter clears it
type LinkJob struct {
	Link      *model.DiscoveredLink
	Processor LinkProcessor
	Limiter   *Limiter
}

// Execute waits for the host's turn and processes the link
func (j *LinkJob) Execute(ctx context.Context) Result {
	if j.Limiter != nil {
		// A failed wait still hands the link on so it leaves the queued state
		_ = j.Limiter.Wait(ctx, j.Link.URL)
	}
	return j.Processor.Process(ctx, j.Link)
}

// BatchProcessor fans a batch of links out over a bounded pool
type BatchProcessor struct {
	processor   LinkProcessor
	limiter     *Limiter
	concurrency int
}

// NewBatchProcessor creates a processor with concurrency workers and
// hostDelay between requests to the same host
func NewBatchProcessor(processor LinkProcessor, concurrency int, hostDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		processor:   processor,
		limiter:     NewHostLimiter(hostDelay),
		concurrency: concurrency,
	}
}

// Limiter exposes the host limiter so callers can honor crawl delays
func (b *BatchProcessor) Limiter() *Limiter {
	return b.limiter
}

// ProcessLinks processes links concurrently and returns results in input order.
// One item's failure never stops the others. Links not started before ctx
// ends have no result.
func (b *BatchProcessor) ProcessLinks(ctx context.Context, links []*model.DiscoveredLink) []*model.ProcessResult {
	if len(links) == 0 {
		return []*model.ProcessResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	finish := pool.Wait
	for _, link := range links {
		ok := pool.Submit(&LinkJob{
			Link:      link,
			Processor: b.processor,
			Limiter:   b.limiter,
		})
		if !ok {
			finish = pool.Shutdown
			break
		}
	}

	ordered := make([]*model.ProcessResult, 0, len(links))
	for _, r := range finish() {
		if pr, ok := r.(*model.ProcessResult); ok && pr != nil {
			ordered = append(ordered, pr)
		}
	}
	return ordered
}
