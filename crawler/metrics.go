package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for crawls. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	PagesTotal      prometheus.Counter
	ItemsTotal      prometheus.Counter
	SentinelReloads prometheus.Counter
	FetchDuration   prometheus.Histogram
	ErrorsTotal     *prometheus.CounterVec
	BoundExtensions prometheus.Counter
	CrawlsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smarteraz_pages_fetched_total",
		Help: "Total results pages fetched and parsed.",
	})
	items := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smarteraz_items_extracted_total",
		Help: "Total result items extracted.",
	})
	reloads := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smarteraz_sentinel_reloads_total",
		Help: "Total page reloads caused by the rendering-failure sentinel.",
	})
	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "smarteraz_fetch_duration_seconds",
		Help:    "Latency of single page fetches, reloads included.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smarteraz_errors_total",
		Help: "Total crawl failures by error code.",
	}, []string{"code"})
	extensions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smarteraz_bound_extensions_total",
		Help: "Times a page reported a higher last page than previously known.",
	})
	crawls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smarteraz_crawls_total",
		Help: "Total crawls by outcome.",
	}, []string{"status"})

	registry.MustRegister(pages, items, reloads, fetchDuration, errorsTotal, extensions, crawls)

	return &Metrics{
		Registry:        registry,
		PagesTotal:      pages,
		ItemsTotal:      items,
		SentinelReloads: reloads,
		FetchDuration:   fetchDuration,
		ErrorsTotal:     errorsTotal,
		BoundExtensions: extensions,
		CrawlsTotal:     crawls,
	}
}

// IncPage records one fetched and parsed page carrying n items.
func (m *Metrics) IncPage(n int) {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
	m.ItemsTotal.Add(float64(n))
}

// IncReload records one sentinel reload.
func (m *Metrics) IncReload() {
	if m == nil {
		return
	}
	m.SentinelReloads.Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncError increments the errors counter for a code label.
func (m *Metrics) IncError(code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) IncBoundExtension() {
	if m == nil {
		return
	}
	m.BoundExtensions.Inc()
}

// IncCrawl records a finished crawl as "completed", "failed" or "canceled".
func (m *Metrics) IncCrawl(status string) {
	if m == nil {
		return
	}
	m.CrawlsTotal.WithLabelValues(status).Inc()
}
