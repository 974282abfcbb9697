package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "energy_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	Cycles           *prometheus.CounterVec // labels: outcome={success,empty,failed}
	CycleDuration    prometheus.Histogram
	SchedulerRunning prometheus.Gauge

	// Per-source metrics.
	SourceFetches     *prometheus.CounterVec   // labels: source, outcome={ok,empty,fetch_failed,malformed}
	FetchDuration     *prometheus.HistogramVec // labels: source
	RecordsNormalized *prometheus.CounterVec   // labels: source
	FilesWritten      *prometheus.CounterVec   // labels: source

	MergedRecords prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.SchedulerRunning,
		m.SourceFetches,
		m.FetchDuration,
		m.RecordsNormalized,
		m.FilesWritten,
		m.MergedRecords,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed ETL cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-sink cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 while the scheduling loop is active, 0 otherwise.",
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Source fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Source HTTP request duration in seconds, including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		RecordsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_normalized_total",
			Help:      "Records produced by the source normalizers.",
		}, []string{"source"}),
		FilesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_written_total",
			Help:      "Parquet files written by source.",
		}, []string{"source"}),
		MergedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_records_total",
			Help:      "Records emitted by the price/weather join.",
		}),
	}
}
