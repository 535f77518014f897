// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

// Package metrics exposes Prometheus instrumentation for the service:
// recommendation serving, the external-model gate, background jobs, and the
// HTTP surface. Collectors are registered with promauto at package load.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation serving metrics

	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_recommendation_requests_total",
			Help: "Total recommendation requests by model used",
		},
		[]string{"model_used"},
	)

	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shoprec_recommendation_duration_seconds",
			Help:    "End-to-end recommendation request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	RecommendationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shoprec_recommendation_cache_hits_total",
			Help: "Recommendation responses served from the engine cache",
		},
	)

	ColdStartResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_cold_start_resolutions_total",
			Help: "Cold-start resolutions by strategy",
		},
		[]string{"strategy"},
	)

	// External-model gate metrics

	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_gate_decisions_total",
			Help: "External-model gate outcomes",
		},
		[]string{"outcome"}, // "served", "below_threshold", "miss", "breaker_open"
	)

	// Background job metrics

	JobStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_job_starts_total",
			Help: "Background job starts by mode",
		},
		[]string{"mode"}, // "full", "infer"
	)

	JobOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_job_outcomes_total",
			Help: "Background job completions by mode and outcome",
		},
		[]string{"mode", "outcome"}, // outcome: "success", "failed"
	)

	JobRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shoprec_job_rejections_total",
			Help: "Job start attempts rejected because a job was already running",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shoprec_job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"mode"},
	)

	PendingInteractions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shoprec_pending_interactions",
			Help: "Interactions recorded since the last successful model refresh",
		},
	)

	// HTTP surface metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shoprec_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Data store metrics

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shoprec_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_duckdb_query_errors_total",
			Help: "Total DuckDB query errors",
		},
		[]string{"operation"},
	)
)

// RecordDBQuery records the duration and outcome of a database query.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records a completed HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordJobOutcome records a finished job with its duration.
func RecordJobOutcome(mode, outcome string, duration time.Duration) {
	JobOutcomes.WithLabelValues(mode, outcome).Inc()
	JobDuration.WithLabelValues(mode).Observe(duration.Seconds())
}
