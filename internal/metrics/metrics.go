// Package metrics defines Prometheus collectors for the ingestion pipeline,
// the reconciliation loop, and progress tracking.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest metrics
var (
	// UploadsTotal counts ingest attempts by outcome.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "uploads_total",
			Help:      "Total number of video ingest attempts",
		},
		[]string{"status"},
	)

	// UploadDuration tracks end-to-end ingest time, staging included.
	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lms",
			Name:      "upload_duration_seconds",
			Help:      "Time taken to ingest a video",
			Buckets:   []float64{1, 5, 15, 60, 300, 900},
		},
	)
)

// Reconciliation metrics
var (
	// ReconcilePolls counts individual status queries by outcome.
	ReconcilePolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "reconcile_polls_total",
			Help:      "Total number of remote status polls",
		},
		[]string{"outcome"},
	)

	// AssetsReady counts assets that reached ready.
	AssetsReady = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "assets_ready_total",
			Help:      "Total number of assets that finished transcoding",
		},
	)

	// AssetsStalled counts assets parked as stalled.
	AssetsStalled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "assets_stalled_total",
			Help:      "Total number of assets that stalled before readiness",
		},
	)

	// ActiveWatchers tracks currently running reconciliation loops.
	ActiveWatchers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lms",
			Name:      "active_watchers",
			Help:      "Number of in-flight reconciliation loops",
		},
	)
)

// Progress metrics
var (
	// ProgressWrites counts progress mutations by operation.
	ProgressWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "progress_writes_total",
			Help:      "Total number of lesson progress mutations",
		},
		[]string{"op"},
	)
)

// RecordUploadSuccess increments the ingest success counter.
func RecordUploadSuccess() {
	UploadsTotal.WithLabelValues("success").Inc()
}

// RecordUploadFailure increments the ingest failure counter.
func RecordUploadFailure() {
	UploadsTotal.WithLabelValues("failure").Inc()
}
