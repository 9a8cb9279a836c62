// Package metrics exposes Prometheus counters for ingest runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ingest"

// Candidate outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeMerged   = "merged"
	OutcomeDropped  = "dropped"
	OutcomeFiltered = "filtered"
	OutcomeFailed   = "failed"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	pages        *prometheus.CounterVec
	candidates   *prometheus.CounterVec
	storeRetries prometheus.Counter
	runDuration  prometheus.Histogram
	lastRun      prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Listing pages requested, by category and result.",
		}, []string{"category", "result"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Extracted candidates, by category and outcome.",
		}, []string{"category", "outcome"}),
		storeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Store writes retried after a failure.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full ingest run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last ingest run finished.",
		}),
	}
	m.registry.MustRegister(
		m.pages, m.candidates, m.storeRetries, m.runDuration, m.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) PageFetched(category string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.pages.WithLabelValues(category, result).Inc()
}

func (m *Metrics) Candidate(category, outcome string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) StoreRetried() {
	if m == nil {
		return
	}
	m.storeRetries.Inc()
}

func (m *Metrics) RunFinished(d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.lastRun.Set(float64(at.Unix()))
}
