package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	recomputes        prometheus.Counter
	recomputeDuration prometheus.Histogram
	filteredRows      prometheus.Gauge
	trendlineFailures prometheus.Counter
	datasetLoads      prometheus.Counter
	loadDuration      prometheus.Histogram
	cacheHits         prometheus.Counter
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		recomputes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dashboard",
			Name:      "recomputes_total",
			Help:      "Number of filter and aggregate passes.",
		}),
		recomputeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dashboard",
			Name:      "recompute_duration_seconds",
			Help:      "Time spent in one filter and aggregate pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		filteredRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dashboard",
			Name:      "filtered_rows",
			Help:      "Rows in the most recent filtered view.",
		}),
		trendlineFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dashboard",
			Name:      "trendline_failures_total",
			Help:      "Charts rendered without a trend line.",
		}),
		datasetLoads: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dashboard",
			Name:      "dataset_loads_total",
			Help:      "Datasets read and parsed from disk.",
		}),
		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dashboard",
			Name:      "dataset_load_duration_seconds",
			Help:      "Time spent reading and parsing a dataset.",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dashboard",
			Name:      "dataset_cache_hits_total",
			Help:      "Dataset loads served from the cache.",
		}),
	}
}

func (m *Metrics) recomputed(rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.recomputes.Inc()
	m.recomputeDuration.Observe(d.Seconds())
	m.filteredRows.Set(float64(rows))
}

func (m *Metrics) trendlineFailed() {
	if m == nil {
		return
	}
	m.trendlineFailures.Inc()
}

func (m *Metrics) loaded(d time.Duration) {
	if m == nil {
		return
	}
	m.datasetLoads.Inc()
	m.loadDuration.Observe(d.Seconds())
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}
