package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pace/ingest-service/internal/events"
	"pace/ingest-service/internal/ingest"
	"pace/ingest-service/internal/metrics"
	"pace/ingest-service/internal/model"
)

// DefaultMaxPages is the page cap per category.
const DefaultMaxPages = 3

// PageFetcher returns one listing page.
type PageFetcher interface {
	FetchPage(ctx context.Context, category model.Category, page int) (Page, error)
}

// Upserter writes one candidate; *ingest.Gateway implements it.
type Upserter interface {
	Upsert(ctx context.Context, candidate model.Opportunity) (ingest.Result, error)
}

// SourceLogger records raw fetches.
type SourceLogger interface {
	AppendSourceLog(ctx context.Context, l model.SourceLog) error
}

// EventPublisher announces stored opportunities.
type EventPublisher interface {
	PublishIngested(ctx context.Context, e events.Ingested) error
}

// Waiter paces outbound requests; *Pacer implements it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// CategoryStats counts what happened to one category during a run.
type CategoryStats struct {
	Category model.Category `json:"category"`
	Pages    int            `json:"pages"`
	Fetched  int            `json:"fetched"`
	Dropped  int            `json:"dropped"`
	Filtered int            `json:"filtered"`
	Created  int            `json:"created"`
	Merged   int            `json:"merged"`
	Failed   int            `json:"failed"`
}

// Stored is the number of successful upserts.
func (s CategoryStats) Stored() int { return s.Created + s.Merged }

// RunStats summarizes one run over all categories.
type RunStats struct {
	RunID      string          `json:"runId"`
	Started    time.Time       `json:"started"`
	Finished   time.Time       `json:"finished"`
	Categories []CategoryStats `json:"categories"`
}

// Totals sums the per-category counters.
func (r RunStats) Totals() CategoryStats {
	var t CategoryStats
	for _, c := range r.Categories {
		t.Pages += c.Pages
		t.Fetched += c.Fetched
		t.Dropped += c.Dropped
		t.Filtered += c.Filtered
		t.Created += c.Created
		t.Merged += c.Merged
		t.Failed += c.Failed
	}
	return t
}

// Worker runs the ingest pipeline: for each category it pages through the
// feed, extracts candidates and hands them to the gateway one at a time.
type Worker struct {
	fetcher    PageFetcher
	gateway    Upserter
	sourceLogs SourceLogger
	publisher  EventPublisher
	pacer      Waiter
	redFlags   RedFlags
	metrics    *metrics.Metrics
	categories []model.Category
	maxPages   int
	parallel   bool
	log        *zap.Logger
}

// Option customizes a Worker.
type Option func(*Worker)

// WithSourceLogger records each raw page fetch.
func WithSourceLogger(l SourceLogger) Option { return func(w *Worker) { w.sourceLogs = l } }

// WithPublisher announces every stored opportunity.
func WithPublisher(p EventPublisher) Option { return func(w *Worker) { w.publisher = p } }

// WithPacer spaces page requests.
func WithPacer(p Waiter) Option { return func(w *Worker) { w.pacer = p } }

// WithRedFlags discards candidates matching any term.
func WithRedFlags(r RedFlags) Option { return func(w *Worker) { w.redFlags = r } }

// WithMetrics records page and candidate counters.
func WithMetrics(m *metrics.Metrics) Option { return func(w *Worker) { w.metrics = m } }

// WithCategories sets the categories Run processes, in order.
func WithCategories(c []model.Category) Option { return func(w *Worker) { w.categories = c } }

// WithMaxPages caps pages fetched per category.
func WithMaxPages(n int) Option { return func(w *Worker) { w.maxPages = n } }

// WithParallelCategories runs categories concurrently.
func WithParallelCategories(on bool) Option { return func(w *Worker) { w.parallel = on } }

// WithLogger sets the base logger.
func WithLogger(log *zap.Logger) Option { return func(w *Worker) { w.log = log } }

// NewWorker constructs a Worker over all categories with DefaultMaxPages.
func NewWorker(fetcher PageFetcher, gateway Upserter, opts ...Option) *Worker {
	w := &Worker{
		fetcher:    fetcher,
		gateway:    gateway,
		categories: model.AllCategories,
		maxPages:   DefaultMaxPages,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.maxPages <= 0 {
		w.maxPages = DefaultMaxPages
	}
	w.log = w.log.With(zap.String("component", "worker"))
	return w
}

// Run ingests every configured category.
func (w *Worker) Run(ctx context.Context) RunStats {
	return w.RunCategories(ctx, w.categories)
}

// RunCategories ingests the given categories. Categories are independent:
// a failing category never stops the others.
func (w *Worker) RunCategories(ctx context.Context, categories []model.Category) RunStats {
	run := RunStats{
		RunID:      uuid.NewString(),
		Started:    time.Now().UTC(),
		Categories: make([]CategoryStats, len(categories)),
	}
	log := w.log.With(zap.String("run_id", run.RunID))
	log.Info("ingest run started", zap.Int("categories", len(categories)), zap.Bool("parallel", w.parallel))

	if w.parallel {
		var wg sync.WaitGroup
		for i, cat := range categories {
			wg.Add(1)
			go func() {
				defer wg.Done()
				run.Categories[i] = w.runCategory(ctx, log, run.RunID, cat)
			}()
		}
		wg.Wait()
	} else {
		for i, cat := range categories {
			run.Categories[i] = w.runCategory(ctx, log, run.RunID, cat)
		}
	}

	run.Finished = time.Now().UTC()
	w.metrics.RunFinished(run.Finished.Sub(run.Started), run.Finished)
	t := run.Totals()
	log.Info("ingest run complete",
		zap.Duration("took", run.Finished.Sub(run.Started)),
		zap.Int("fetched", t.Fetched),
		zap.Int("created", t.Created),
		zap.Int("merged", t.Merged),
		zap.Int("dropped", t.Dropped),
		zap.Int("filtered", t.Filtered),
		zap.Int("failed", t.Failed),
	)
	return run
}

// runCategory pages until a page stores nothing or maxPages is reached.
// Every page request, the first included, goes through the pacer.
func (w *Worker) runCategory(ctx context.Context, log *zap.Logger, runID string, cat model.Category) CategoryStats {
	stats := CategoryStats{Category: cat}
	log = log.With(zap.String("category", string(cat)))

	for page := 1; page <= w.maxPages; page++ {
		if ctx.Err() != nil {
			log.Warn("run cancelled", zap.Error(ctx.Err()))
			break
		}
		if w.pacer != nil {
			if err := w.pacer.Wait(ctx); err != nil {
				log.Warn("pacer wait aborted", zap.Error(err))
				break
			}
		}

		stored := w.processPage(ctx, log, runID, cat, page, &stats)
		if stored == 0 {
			break
		}
	}

	log.Info("category done",
		zap.Int("pages", stats.Pages),
		zap.Int("created", stats.Created),
		zap.Int("merged", stats.Merged),
		zap.Int("failed", stats.Failed),
	)
	return stats
}

// processPage fetches one page and ingests its items in order. It returns
// the number of successful upserts. Fetch errors count as an empty page.
func (w *Worker) processPage(ctx context.Context, log *zap.Logger, runID string, cat model.Category, number int, stats *CategoryStats) int {
	log = log.With(zap.Int("page", number))
	stats.Pages++

	page, err := w.fetcher.FetchPage(ctx, cat, number)
	w.recordSource(ctx, log, page)
	w.metrics.PageFetched(string(cat), err == nil)
	if err != nil {
		log.Warn("fetch failed, treating page as empty", zap.Error(err))
		return 0
	}
	log.Info("page fetched", zap.Int("items", len(page.Items)))
	stats.Fetched += len(page.Items)

	stored := 0
	for _, item := range page.Items {
		candidate, ok := Extract(item, cat)
		if !ok {
			stats.Dropped++
			w.metrics.Candidate(string(cat), metrics.OutcomeDropped)
			continue
		}
		if flag := w.redFlags.Match(candidate); flag != "" {
			stats.Filtered++
			w.metrics.Candidate(string(cat), metrics.OutcomeFiltered)
			log.Debug("candidate filtered", zap.String("title", candidate.Title), zap.String("red_flag", flag))
			continue
		}

		res, err := w.gateway.Upsert(ctx, candidate)
		if err != nil {
			stats.Failed++
			w.metrics.Candidate(string(cat), metrics.OutcomeFailed)
			log.Warn("upsert failed, skipping candidate",
				zap.String("title", candidate.Title),
				zap.String("apply_link", candidate.ApplyLink),
				zap.Error(err),
			)
			continue
		}

		stored++
		outcome := metrics.OutcomeMerged
		if res.Created {
			stats.Created++
			outcome = metrics.OutcomeCreated
		} else {
			stats.Merged++
		}
		w.metrics.Candidate(string(cat), outcome)
		w.publish(ctx, log, runID, cat, res)
	}
	return stored
}

func (w *Worker) recordSource(ctx context.Context, log *zap.Logger, page Page) {
	if w.sourceLogs == nil || (page.StatusCode == 0 && page.Raw == "") {
		return
	}
	l := model.NewSourceLog(uuid.NewString(), time.Now().UTC(), SourceName, page.Category, page.Number, page.StatusCode, page.Raw)
	if err := w.sourceLogs.AppendSourceLog(ctx, l); err != nil {
		log.Warn("source log write failed", zap.Error(err))
	}
}

func (w *Worker) publish(ctx context.Context, log *zap.Logger, runID string, cat model.Category, res ingest.Result) {
	if w.publisher == nil {
		return
	}
	err := w.publisher.PublishIngested(ctx, events.Ingested{
		ID:       res.ID,
		Created:  res.Created,
		Match:    string(res.Match),
		Category: string(cat),
		RunID:    runID,
	})
	if err != nil {
		log.Warn("publish event failed", zap.String("id", res.ID), zap.Error(err))
	}
}
