package reclaim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the scheduler's Prometheus collectors.
type Metrics struct {
	runs       *prometheus.CounterVec
	skipped    *prometheus.CounterVec
	reaped     prometheus.Counter
	deferred   prometheus.Counter
	failures   *prometheus.CounterVec
	orphans    prometheus.Counter
	missing    prometheus.Counter
	purged     prometheus.Counter
	duration   *prometheus.HistogramVec
	active     prometheus.Gauge
	totalBytes prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reclaim_runs_total",
			Help: "Completed reclamation passes by task.",
		}, []string{"task"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reclaim_skipped_total",
			Help: "Passes skipped because one was already running or the lease was held elsewhere.",
		}, []string{"task"}),
		reaped: f.NewCounter(prometheus.CounterOpts{
			Name: "reclaim_artifacts_reaped_total",
			Help: "Expired artifacts reaped by the sweep.",
		}),
		deferred: f.NewCounter(prometheus.CounterOpts{
			Name: "reclaim_artifacts_deferred_total",
			Help: "Reaps handed to an in-flight download.",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reclaim_failures_total",
			Help: "Per-item failures by task.",
		}, []string{"task"}),
		orphans: f.NewCounter(prometheus.CounterOpts{
			Name: "reclaim_orphans_removed_total",
			Help: "Physical objects removed because no live record referenced them.",
		}),
		missing: f.NewCounter(prometheus.CounterOpts{
			Name: "reclaim_missing_objects_total",
			Help: "Live records latched deleted because their object was gone.",
		}),
		purged: f.NewCounter(prometheus.CounterOpts{
			Name: "reclaim_records_purged_total",
			Help: "Soft-deleted records removed after the retention window.",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reclaim_duration_seconds",
			Help:    "Duration of reclamation passes.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"task"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "shared_files_active",
			Help: "Artifacts currently retrievable.",
		}),
		totalBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "shared_files_active_bytes",
			Help: "Bytes held by retrievable artifacts.",
		}),
	}
}
