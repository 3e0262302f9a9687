package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_frames_jobs_total",
		Help: "Frame sampling jobs finished, by outcome",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_frames_stage_duration_seconds",
		Help:    "Duration of each frame sampling stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSelected = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fiapx_frames_selected",
		Help:    "Frames in the final selection per job",
		Buckets: []float64{0, 1, 2, 4, 8, 12, 16, 20, 30, 50},
	})

	FallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_frames_fallback_total",
		Help: "Jobs whose selection was completed by uniform fallback",
	})

	StrategyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_frames_strategy_outcomes_total",
		Help: "Strategy invocations, by strategy and outcome (frames, empty, failed)",
	}, []string{"strategy", "outcome"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_frames_cache_lookups_total",
		Help: "Artifact cache lookups, by result",
	}, []string{"result"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_frames_active_workers",
		Help: "Jobs currently being sampled",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_frames_retry_total",
		Help: "Retryable job failures, by attempt",
	}, []string{"attempt"})
)
