// Package metrics provides Prometheus metrics for the edge agent:
// counters, gauges, and histograms for alignment, feature engineering,
// inference, the model registry, performance monitoring, and sync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Alignment ──────────────────────────────────────────────────────────────

// RingsAligned tracks completed ring alignments.
var RingsAligned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "ring_aligned_total",
	Help:      "Total rings successfully aligned from raw sensor streams.",
})

// RingAlignmentLatency tracks alignment wall-clock duration.
var RingAlignmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "edgecore",
	Name:      "ring_alignment_latency_seconds",
	Help:      "Time to align one ring's raw stream into a ring summary.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
})

// RingCompletenessFlag tracks rings by completeness classification.
var RingCompletenessFlag = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "ring_completeness_total",
	Help:      "Rings aligned, broken down by data completeness flag.",
}, []string{"flag"})

// ─── Feature engineering ────────────────────────────────────────────────────

// FeatureVectorsBuilt tracks feature vectors produced.
var FeatureVectorsBuilt = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "feature_vectors_built_total",
	Help:      "Total feature vectors built for inference.",
})

// FeatureCompleteness tracks the fraction of non-missing inputs per vector.
var FeatureCompleteness = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "edgecore",
	Name:      "feature_completeness_ratio",
	Help:      "Fraction of feature vector inputs present, per built vector.",
	Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 0.9, 0.95, 1.0},
})

// ─── Inference ──────────────────────────────────────────────────────────────

// InferenceLatency tracks inference request duration in seconds.
var InferenceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "edgecore",
	Name:      "inference_latency_seconds",
	Help:      "Inference request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"model"})

// PredictionsTotal tracks predictions made, by quality flag.
var PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "predictions_total",
	Help:      "Total predictions made, broken down by quality flag.",
}, []string{"quality"})

// ─── Model registry ─────────────────────────────────────────────────────────

// ModelsDeployed tracks model deployments by outcome.
var ModelsDeployed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "models_deployed_total",
	Help:      "Total model deployments, by deployment status transition.",
}, []string{"status"})

// ModelActiveRMSE exposes the currently active model's validation RMSE per zone.
var ModelActiveRMSE = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "edgecore",
	Name:      "model_active_validation_rmse",
	Help:      "Validation RMSE recorded at deployment time for the active model.",
}, []string{"zone", "model"})

// ─── Performance monitor ────────────────────────────────────────────────────

// ModelLiveRMSE tracks the most recent rolling-window RMSE per model.
var ModelLiveRMSE = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "edgecore",
	Name:      "model_rmse_live",
	Help:      "Most recent live RMSE computed over the rolling evaluation window.",
}, []string{"model"})

// ModelLiveR2 tracks the most recent rolling-window R-squared per model.
var ModelLiveR2 = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "edgecore",
	Name:      "model_r2_live",
	Help:      "Most recent live R-squared computed over the rolling evaluation window.",
}, []string{"model"})

// DriftDetected tracks drift detections per model.
var DriftDetected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "drift_detected_total",
	Help:      "Total drift detections, broken down by severity.",
}, []string{"model", "severity"})

// RetrainingTriggered tracks retraining-trigger events per model.
var RetrainingTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "retraining_triggered_total",
	Help:      "Total retraining triggers, broken down by reason.",
}, []string{"model", "reason"})

// ─── Sync core ──────────────────────────────────────────────────────────────

// SyncBufferSize tracks the durable sync buffer's current size, by item type.
var SyncBufferSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "edgecore",
	Name:      "sync_buffer_size",
	Help:      "Current number of buffered items awaiting sync, by item type.",
}, []string{"item_type"})

// SyncUploads tracks upload attempts, by item type and outcome.
var SyncUploads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "sync_uploads_total",
	Help:      "Total sync upload attempts, broken down by item type and outcome.",
}, []string{"item_type", "outcome"})

// SyncNetworkState exposes the network monitor's current state (1=online, 0=offline).
var SyncNetworkState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "edgecore",
	Name:      "sync_network_online",
	Help:      "Network monitor state: 1 if online, 0 if offline.",
})

// SyncDiskFreeGB tracks the minimum free disk space observed across watched paths.
var SyncDiskFreeGB = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "edgecore",
	Name:      "sync_disk_free_gb",
	Help:      "Minimum free disk space in gigabytes across watched paths.",
})

// PurgedFiles tracks raw files deleted by the purger, by purge kind.
var PurgedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "purged_files_total",
	Help:      "Total raw ring files deleted, broken down by normal vs emergency purge.",
}, []string{"kind"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "edgecore",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "edgecore",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
