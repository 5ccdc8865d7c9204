// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

// Package metrics provides Prometheus instrumentation for Placerank.
//
// Instrumented surfaces:
//   - API endpoint latency and throughput
//   - Recommendation pipeline stage latency (source, rank, filter)
//   - External collaborator calls (Overpass, Nominatim, embedder)
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Recommendation pipeline metrics
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of recommendation pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // "source", "rank", "filter"
	)

	PipelineRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_requests_total",
			Help: "Total number of recommendation pipeline runs",
		},
	)

	PipelineErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_errors_total",
			Help: "Total number of recommendation pipeline errors",
		},
		[]string{"stage"},
	)

	PipelineCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_candidates",
			Help:    "Number of candidate places entering the ranker per request",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200},
		},
	)

	// External collaborator metrics
	CollaboratorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaborator_calls_total",
			Help: "Total number of external collaborator calls",
		},
		[]string{"collaborator", "outcome"}, // "overpass"/"nominatim"/"embedder", "ok"/"error"
	)

	CollaboratorCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collaborator_call_duration_seconds",
			Help:    "External collaborator call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		},
		[]string{"collaborator"},
	)

	BreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_state_changes_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"breaker", "to_state"},
	)
)

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPipelineStage records the duration of a single pipeline stage.
func RecordPipelineStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordPipelineError records an error in a pipeline stage.
func RecordPipelineError(stage string) {
	PipelineErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordPipelineRequest records one pipeline run and, on error, a
// request-level failure.
func RecordPipelineRequest(err error) {
	PipelineRequestsTotal.Inc()
	if err != nil {
		RecordPipelineError("request")
	}
}

// RecordPipelineCandidates records the candidate count entering the ranker.
func RecordPipelineCandidates(count int) {
	PipelineCandidates.Observe(float64(count))
}

// RecordCollaboratorCall records an external collaborator call.
func RecordCollaboratorCall(collaborator string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CollaboratorCallsTotal.WithLabelValues(collaborator, outcome).Inc()
	CollaboratorCallDuration.WithLabelValues(collaborator).Observe(duration.Seconds())
}

// RecordBreakerStateChange records a circuit breaker state transition.
func RecordBreakerStateChange(breaker, toState string) {
	BreakerStateChanges.WithLabelValues(breaker, toState).Inc()
}
