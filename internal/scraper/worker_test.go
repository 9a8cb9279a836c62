package scraper_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pace/ingest-service/internal/events"
	"pace/ingest-service/internal/ingest"
	"pace/ingest-service/internal/match"
	"pace/ingest-service/internal/metrics"
	"pace/ingest-service/internal/model"
	"pace/ingest-service/internal/retry"
	"pace/ingest-service/internal/scraper"
	"pace/ingest-service/internal/store"
)

// fakeFetcher serves canned pages keyed by category and page number.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[model.Category]map[int][]map[string]any
	fail  map[model.Category]error
	calls map[model.Category][]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[model.Category]map[int][]map[string]any),
		fail:  make(map[model.Category]error),
		calls: make(map[model.Category][]int),
	}
}

func (f *fakeFetcher) add(cat model.Category, page int, items ...map[string]any) {
	if f.pages[cat] == nil {
		f.pages[cat] = make(map[int][]map[string]any)
	}
	f.pages[cat][page] = items
}

func (f *fakeFetcher) FetchPage(_ context.Context, cat model.Category, page int) (scraper.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[cat] = append(f.calls[cat], page)
	if err := f.fail[cat]; err != nil {
		return scraper.Page{Category: cat, Number: page}, err
	}
	items := f.pages[cat][page]
	raw, _ := json.Marshal(items)
	return scraper.Page{Category: cat, Number: page, StatusCode: http.StatusOK, Raw: string(raw), Items: items}, nil
}

func item(title, slug string) map[string]any {
	return map[string]any{"title": title, "slug": slug, "id": slug}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Ingested
	err    error
}

func (p *recordingPublisher) PublishIngested(_ context.Context, e events.Ingested) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func newPipeline(s store.Store) *ingest.Gateway {
	policy := retry.DefaultPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	m := match.New(s, match.DefaultLimit, match.DefaultThreshold, zap.NewNop())
	return ingest.NewGateway(s, m, policy, zap.NewNop())
}

func TestWorker_StopsOnPageWithNothingStored(t *testing.T) {
	s := store.NewMemoryStore()
	f := newFakeFetcher()
	f.add(model.CategoryJob, 1, item("Backend Engineer", "backend-1"), item("Frontend Engineer", "frontend-2"))

	w := scraper.NewWorker(f, newPipeline(s),
		scraper.WithCategories([]model.Category{model.CategoryJob}),
		scraper.WithMaxPages(3),
	)
	run := w.Run(context.Background())

	assert.Equal(t, []int{1, 2}, f.calls[model.CategoryJob])
	require.Len(t, run.Categories, 1)
	stats := run.Categories[0]
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 2, s.Len())
	assert.NotEmpty(t, run.RunID)
}

// orderWaiter notes how many pages had been fetched at each Wait.
type orderWaiter struct {
	f       *fakeFetcher
	fetched []int
}

func (w *orderWaiter) Wait(context.Context) error {
	w.fetched = append(w.fetched, len(w.f.calls[model.CategoryJob]))
	return nil
}

func TestWorker_PacesEveryPage(t *testing.T) {
	s := store.NewMemoryStore()
	f := newFakeFetcher()
	f.add(model.CategoryJob, 1, item("Backend Engineer", "backend-1"))
	f.add(model.CategoryJob, 2, item("Product Designer", "design-2"))
	pacer := &orderWaiter{f: f}

	w := scraper.NewWorker(f, newPipeline(s),
		scraper.WithCategories([]model.Category{model.CategoryJob}),
		scraper.WithMaxPages(3),
		scraper.WithPacer(pacer),
	)
	w.Run(context.Background())

	assert.Equal(t, []int{1, 2, 3}, f.calls[model.CategoryJob])
	assert.Equal(t, []int{0, 1, 2}, pacer.fetched)
}

func TestWorker_PacerHoldsFirstGap(t *testing.T) {
	const min = 150 * time.Millisecond
	f := &timedFetcher{}
	w := scraper.NewWorker(f, newPipeline(store.NewMemoryStore()),
		scraper.WithCategories([]model.Category{model.CategoryJob}),
		scraper.WithMaxPages(2),
		scraper.WithPacer(scraper.NewPacer(min, min)),
	)
	w.Run(context.Background())

	require.Len(t, f.at, 2)
	assert.GreaterOrEqual(t, f.at[1].Sub(f.at[0]), min-10*time.Millisecond)
}

// timedFetcher returns one fresh item per page and records request times.
type timedFetcher struct {
	at []time.Time
}

func (f *timedFetcher) FetchPage(_ context.Context, cat model.Category, page int) (scraper.Page, error) {
	f.at = append(f.at, time.Now())
	items := []map[string]any{item(fmt.Sprintf("Role %d", page), fmt.Sprintf("role-%d", page))}
	return scraper.Page{Category: cat, Number: page, StatusCode: http.StatusOK, Items: items}, nil
}

func TestWorker_RespectsMaxPages(t *testing.T) {
	s := store.NewMemoryStore()
	f := newFakeFetcher()
	titles := []string{"Backend Engineer", "Product Designer", "Data Analyst", "Sales Associate"}
	for p := 1; p <= 4; p++ {
		f.add(model.CategoryJob, p, item(titles[p-1], "job-"+strconv.Itoa(p)))
	}

	w := scraper.NewWorker(f, newPipeline(s),
		scraper.WithCategories([]model.Category{model.CategoryJob}),
		scraper.WithMaxPages(3),
	)
	w.Run(context.Background())

	assert.Equal(t, []int{1, 2, 3}, f.calls[model.CategoryJob])
	assert.Equal(t, 3, s.Len())
}

func TestWorker_DuplicateWithinPageMerges(t *testing.T) {
	s := store.NewMemoryStore()
	f := newFakeFetcher()
	f.add(model.CategoryHackathon, 1,
		map[string]any{"title": "AI Hackathon", "url": "http://x.com/a#frag", "id": "1"},
		map[string]any{"title": "AI Hackathon 2024", "url": "http://X.COM/a", "id": "2", "deadline": "2024-09-30"},
	)

	w := scraper.NewWorker(f, newPipeline(s), scraper.WithCategories([]model.Category{model.CategoryHackathon}))
	run := w.Run(context.Background())

	stats := run.Categories[0]
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 1, s.Len())

	recent, err := s.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	got := recent[0]
	assert.Equal(t, "http://x.com/a", got.ApplyLink)
	assert.Equal(t, "AI Hackathon", got.Title)
	assert.NotNil(t, got.Deadline)
	assert.Len(t, got.MergedSources, 2)
}

func TestWorker_DropsAndFilters(t *testing.T) {
	s := store.NewMemoryStore()
	f := newFakeFetcher()
	f.add(model.CategoryInternship, 1,
		map[string]any{"title": "no link"},
		map[string]any{"slug": "no-title"},
		item("Unpaid Marketing Internship", "unpaid-1"),
		item("Research Internship", "research-1"),
	)

	m := metrics.New()
	w := scraper.NewWorker(f, newPipeline(s),
		scraper.WithCategories([]model.Category{model.CategoryInternship}),
		scraper.WithRedFlags(scraper.NewRedFlags([]string{"unpaid"})),
		scraper.WithMetrics(m),
	)
	stats := w.Run(context.Background()).Categories[0]

	assert.Equal(t, 4, stats.Fetched)
	assert.Equal(t, 2, stats.Dropped)
	assert.Equal(t, 1, stats.Filtered)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, s.Len())
}

func TestWorker_CategoryFailureIsIsolated(t *testing.T) {
	s := store.NewMemoryStore()
	f := newFakeFetcher()
	f.fail[model.CategoryHackathon] = errors.New("connection refused")
	f.add(model.CategoryJob, 1, item("Backend Engineer", "backend-1"))

	w := scraper.NewWorker(f, newPipeline(s),
		scraper.WithCategories([]model.Category{model.CategoryHackathon, model.CategoryJob}),
	)
	run := w.Run(context.Background())

	assert.Equal(t, []int{1}, f.calls[model.CategoryHackathon])
	assert.Equal(t, 0, run.Categories[0].Stored())
	assert.Equal(t, 1, run.Categories[1].Created)
	assert.Equal(t, 1, s.Len())
}

type failingUpserter struct {
	inner   scraper.Upserter
	failFor string
}

func (u failingUpserter) Upsert(ctx context.Context, c model.Opportunity) (ingest.Result, error) {
	if c.Title == u.failFor {
		return ingest.Result{}, fmt.Errorf("%w after 5 attempts: unavailable", retry.ErrMaxAttemptsExceeded)
	}
	return u.inner.Upsert(ctx, c)
}

func TestWorker_UpsertFailureSkipsCandidateOnly(t *testing.T) {
	s := store.NewMemoryStore()
	f := newFakeFetcher()
	f.add(model.CategoryJob, 1, item("Broken Listing", "broken"), item("Backend Engineer", "backend-1"))

	w := scraper.NewWorker(f, failingUpserter{inner: newPipeline(s), failFor: "Broken Listing"},
		scraper.WithCategories([]model.Category{model.CategoryJob}),
	)
	stats := w.Run(context.Background()).Categories[0]

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, s.Len())
}

func TestWorker_RecordsSourceLogsAndEvents(t *testing.T) {
	s := store.NewMemoryStore()
	f := newFakeFetcher()
	f.add(model.CategoryScholarship, 1, item("Merit Scholarship", "merit-1"))
	pub := &recordingPublisher{err: errors.New("redis down")}

	w := scraper.NewWorker(f, newPipeline(s),
		scraper.WithCategories([]model.Category{model.CategoryScholarship}),
		scraper.WithSourceLogger(s),
		scraper.WithPublisher(pub),
	)
	run := w.Run(context.Background())

	logs := s.SourceLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, model.CategoryScholarship, logs[0].Category)
	assert.Equal(t, 1, logs[0].Page)
	assert.Equal(t, 2, logs[1].Page)

	require.Len(t, pub.events, 1)
	assert.True(t, pub.events[0].Created)
	assert.Equal(t, run.RunID, pub.events[0].RunID)
	assert.Equal(t, 1, s.Len())
}

func TestWorker_ParallelCategories(t *testing.T) {
	s := store.NewMemoryStore()
	f := newFakeFetcher()
	f.add(model.CategoryJob, 1, item("Backend Engineer", "backend-1"))
	f.add(model.CategoryHackathon, 1, item("Climate Hackathon", "climate-1"))
	f.add(model.CategoryCompetition, 1, item("Case Study Competition", "case-1"))

	w := scraper.NewWorker(f, newPipeline(s),
		scraper.WithCategories([]model.Category{model.CategoryJob, model.CategoryHackathon, model.CategoryCompetition}),
		scraper.WithParallelCategories(true),
	)
	run := w.Run(context.Background())

	assert.Equal(t, 3, run.Totals().Created)
	assert.Equal(t, model.CategoryHackathon, run.Categories[1].Category)
	assert.Equal(t, 3, s.Len())
}

func TestWorker_CancelledContext(t *testing.T) {
	f := newFakeFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := scraper.NewWorker(f, newPipeline(store.NewMemoryStore())).Run(ctx)

	assert.Len(t, run.Categories, len(model.AllCategories))
	assert.Empty(t, f.calls)
}

func TestWorker_EndToEndOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			_, _ = w.Write([]byte(`{"data":{"data":[]}}`))
			return
		}
		switch r.URL.Query().Get("opportunity") {
		case "hackathons":
			_, _ = w.Write([]byte(`{"data":{"data":[
				{"id": 11, "title": "AI Hackathon", "organisation": {"name": "Acme"}, "public_url": "hackathons/ai-hackathon-11"},
				{"id": 12, "title": "Green Tech Challenge", "public_url": "/hackathons/green-12"}
			]}}`))
		case "jobs":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	s := store.NewMemoryStore()
	w := scraper.NewWorker(
		scraper.NewUnstopFetcher(srv.URL, 24, time.Second),
		newPipeline(s),
		scraper.WithSourceLogger(s),
		scraper.WithPacer(scraper.NewPacer(0, 0)),
	)
	run := w.Run(context.Background())

	totals := run.Totals()
	assert.Equal(t, 2, totals.Created)
	assert.Equal(t, 2, s.Len())
	// hackathons: 2 pages; every other category: 1 page.
	assert.Equal(t, 6, totals.Pages)
	assert.Len(t, s.SourceLogs(), 6)

	opp, err := s.FindByApplyLink(context.Background(), "https://unstop.com/hackathons/ai-hackathon-11")
	require.NoError(t, err)
	assert.Equal(t, "Acme", opp.Company)
	assert.Equal(t, model.CategoryHackathon, opp.Type)
}
