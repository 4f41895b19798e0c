// Package pipeline runs discovered links through fetch, quality gate,
// classification and the knowledge store writer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/alma/internal/cache"
	"github.com/ppiankov/alma/internal/classify"
	"github.com/ppiankov/alma/internal/llm"
	"github.com/ppiankov/alma/internal/logger"
	"github.com/ppiankov/alma/internal/metrics"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/queue"
	"github.com/ppiankov/alma/internal/store"
	"github.com/ppiankov/alma/internal/util"
	"github.com/ppiankov/alma/internal/worker"
	"github.com/ppiankov/alma/internal/writer"
)

// errHostCircuitOpen marks items skipped because their host kept failing
var errHostCircuitOpen = errors.New("host circuit open")

// Processor orchestrates one link at a time and whole batches over a worker pool
type Processor struct {
	queue      *queue.Queue
	retriever  Retriever
	gate       *Gate
	threshold  int
	pages      *cache.PageCache
	classifier classify.Classifier
	writer     *writer.Writer
	batch      *worker.BatchProcessor
	metrics    *metrics.Metrics
	cfg        model.PipelineConfig
	log        logger.Logger
	now        func() time.Time
}

// Deps are the collaborators a Processor needs
type Deps struct {
	Queue      *queue.Queue
	Retriever  Retriever
	Gate       *Gate
	Pages      *cache.PageCache // optional
	Classifier classify.Classifier
	Writer     *writer.Writer
	Metrics    *metrics.Metrics // optional
	Config     model.PipelineConfig
	Logger     logger.Logger

	// HostFailureThreshold opens a per-batch host circuit; zero disables it
	HostFailureThreshold int
}

// NewProcessor wires a Processor from explicit collaborators
func NewProcessor(d Deps) *Processor {
	p := &Processor{
		queue:      d.Queue,
		retriever:  d.Retriever,
		gate:       d.Gate,
		threshold:  d.HostFailureThreshold,
		pages:      d.Pages,
		classifier: d.Classifier,
		writer:     d.Writer,
		metrics:    d.Metrics,
		cfg:        d.Config,
		log:        logger.OrNop(d.Logger),
		now:        time.Now,
	}
	p.batch = worker.NewBatchProcessor(p, d.Config.Concurrency, d.Config.HostDelay)
	return p
}

// New builds a Processor from configuration
func New(cfg model.Config, s store.Store, m *metrics.Metrics, log logger.Logger) (*Processor, error) {
	log = logger.OrNop(log)
	q := queue.New(s, log)

	fetcher := NewFetcherFromConfig(cfg.Fetch)
	var retriever Retriever = fetcher
	if cfg.Fetch.Renderer == "chrome" {
		proxy := cfg.Fetch.HTTPSProxy
		if proxy == "" {
			proxy = cfg.Fetch.HTTPProxy
		}
		retriever = NewBrowser(cfg.Fetch.Timeout, cfg.Fetch.UserAgent, proxy)
	}

	var robots *util.RobotsChecker
	if cfg.Fetch.RespectRobots {
		robots = util.NewRobotsChecker(fetcher.Client(), cfg.Fetch.UserAgent, cfg.Fetch.Timeout)
	}

	classifier, err := newClassifier(cfg, log)
	if err != nil {
		return nil, err
	}

	return NewProcessor(Deps{
		Queue:      q,
		Retriever:  retriever,
		Gate:       NewGate(cfg.Fetch.BlockedHosts, robots, cfg.Pipeline.MinContentChars),
		Pages:      cache.NewPageCache(cache.New(cfg.Cache), cfg.Cache.TTL),
		Classifier: classifier,
		Writer:     writer.New(s, q, cfg.Pipeline, log),
		Metrics:    m,
		Config:     cfg.Pipeline,
		Logger:     log,

		HostFailureThreshold: cfg.Fetch.HostFailureThreshold,
	}), nil
}

func newClassifier(cfg model.Config, log logger.Logger) (classify.Classifier, error) {
	heuristic := classify.NewHeuristic(cfg.Classifier)
	if !cfg.Pipeline.UseLLM {
		return heuristic, nil
	}

	llmCfg := llm.ConfigFromModel(cfg)
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	if provider == nil {
		return heuristic, nil
	}
	return classify.NewLLMClassifier(provider, heuristic, llmCfg, log), nil
}

// Queue returns the link queue the processor claims from
func (p *Processor) Queue() *queue.Queue {
	return p.queue
}

// RunBatch claims up to size pending links and processes them. A size of
// zero uses the configured batch size.
func (p *Processor) RunBatch(ctx context.Context, size int) (*model.BatchSummary, error) {
	if size <= 0 {
		size = p.cfg.BatchSize
	}
	ctx = withCircuit(ctx, NewHostCircuit(p.threshold))

	links, err := p.queue.ClaimBatch(ctx, size)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		p.log.Info("No pending links")
		return model.Summarize(nil), nil
	}

	p.log.Info("Processing batch", logger.Int("links", len(links)))
	summary := model.Summarize(p.batch.ProcessLinks(ctx, links))
	p.log.Info("Batch complete",
		logger.Int("processed", summary.Processed),
		logger.Int("scraped", summary.Scraped),
		logger.Int("conflicts", summary.Conflicts),
		logger.Int("rejected", summary.Rejected),
		logger.Int("errors", summary.Errors),
		logger.Int("hosts", p.batch.Limiter().Hosts()),
	)
	return summary, nil
}

// ProcessOne claims a single pending link and processes it
func (p *Processor) ProcessOne(ctx context.Context, id string) (*model.BatchSummary, error) {
	link, err := p.queue.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.Summarize([]*model.ProcessResult{p.Process(ctx, link)}), nil
}

// Process runs one claimed link to a terminal status. Failures are recorded
// on the link and in the result; they never escape as errors.
func (p *Processor) Process(ctx context.Context, link *model.DiscoveredLink) *model.ProcessResult {
	start := p.now()
	res := &model.ProcessResult{LinkID: link.ID, URL: link.URL}
	defer func() {
		res.Duration = time.Since(start)
		p.metrics.ObserveOutcome(string(res.Outcome))
	}()

	// Status writes must land even when the batch context is cancelled
	writeCtx := context.WithoutCancel(ctx)
	host := util.Hostname(link.URL)
	circuit := circuitFrom(ctx)

	rejection, crawlDelay := p.gate.CheckURL(ctx, link)
	if rejection != nil {
		p.reject(writeCtx, link, rejection, res)
		return res
	}
	if crawlDelay > 0 {
		p.batch.Limiter().SlowDown(link.URL, crawlDelay)
	}

	if circuit.Open(host) {
		p.fail(writeCtx, link, errHostCircuitOpen, res)
		return res
	}

	page, err := p.load(ctx, link)
	if err != nil {
		circuit.Fail(host)
		p.fail(writeCtx, link, &model.FetchError{LinkID: link.ID, URL: link.URL, Err: err}, res)
		return res
	}
	circuit.Succeed(host)

	if _, rejection := p.gate.CheckContent(link.ID, page.Content); rejection != nil {
		p.reject(writeCtx, link, rejection, res)
		return res
	}

	cls, err := p.classifier.Classify(ctx, classify.Input{
		URL:           link.URL,
		Title:         page.Title,
		Content:       page.Content,
		PredictedType: link.PredictedType,
		Name:          firstNonEmpty(link.Metadata.Title, extractSubject(link.URL)),
	})
	if err != nil {
		p.fail(writeCtx, link, fmt.Errorf("classify: %w", err), res)
		return res
	}

	written, err := p.writer.Write(writeCtx, link, page, cls)
	if err != nil {
		p.fail(writeCtx, link, fmt.Errorf("write: %w", err), res)
		return res
	}

	if written.Conflict {
		res.Outcome = model.OutcomeConflict
		res.Reason = "already ingested"
		p.queue.RecordAttempt(writeCtx, link, model.LinkScraped, 0, "")
		return res
	}

	res.Outcome = model.OutcomeScraped
	res.InterventionID = written.Intervention.ID
	p.queue.RecordAttempt(writeCtx, link, model.LinkScraped, 1, "")
	return res
}

// load returns the page from the cache or fetches and extracts it
func (p *Processor) load(ctx context.Context, link *model.DiscoveredLink) (*model.Page, error) {
	if page, ok := p.pages.Get(link.URL); ok {
		p.log.Debug("Page cache hit", logger.LinkID(link.ID))
		return page, nil
	}

	start := p.now()
	fetched, err := p.retriever.Retrieve(ctx, link.URL)
	p.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		return nil, err
	}

	page, err := extractPage(link.URL, fetched, p.cfg.MaxContentChars, p.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := p.pages.Put(link.URL, page); err != nil {
		p.log.Warn("Failed to cache page", logger.LinkID(link.ID), logger.Error(err))
	}
	return page, nil
}

func (p *Processor) reject(ctx context.Context, link *model.DiscoveredLink, rejection *model.QualityRejection, res *model.ProcessResult) {
	res.Outcome = model.OutcomeRejected
	res.Reason = rejection.Reason

	meta := link.Metadata.Clone()
	meta.RejectedReason = rejection.Reason
	if rejection.Reason == model.ReasonContentTooShort {
		meta.SetWordCount(rejection.WordCount)
	}

	if err := p.queue.Transition(ctx, link.ID, model.LinkRejected, store.LinkUpdate{Metadata: &meta}); err != nil {
		p.log.Error("Failed to mark link rejected", logger.LinkID(link.ID), logger.Error(err))
		res.Err = err
	}
	p.log.Info("Link rejected",
		logger.LinkID(link.ID),
		logger.URL(link.URL),
		logger.String("reason", rejection.Reason),
		logger.Float64("relevance", link.PredictedRelevance),
	)
	p.queue.RecordAttempt(ctx, link, model.LinkRejected, 0, rejection.Error())
}

func (p *Processor) fail(ctx context.Context, link *model.DiscoveredLink, cause error, res *model.ProcessResult) {
	res.Outcome = model.OutcomeError
	res.Reason = cause.Error()
	res.Err = cause

	msg := cause.Error()
	failedAt := p.now().UTC()
	meta := link.Metadata.Clone()
	meta.FailedAt = &failedAt

	upd := store.LinkUpdate{ErrorMessage: &msg, Metadata: &meta}
	if err := p.queue.Transition(ctx, link.ID, model.LinkError, upd); err != nil {
		p.log.Error("Failed to mark link errored", logger.LinkID(link.ID), logger.Error(err))
	}
	p.log.Warn("Link failed",
		logger.LinkID(link.ID),
		logger.URL(link.URL),
		logger.Error(cause),
	)
	p.queue.RecordAttempt(ctx, link, model.LinkError, 0, msg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
