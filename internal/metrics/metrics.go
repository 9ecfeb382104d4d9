// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Mining Metrics
	MiningRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsage_mining_runs_total",
			Help: "Total number of rule mining passes by trigger and outcome",
		},
		[]string{"trigger", "outcome"}, // outcome: "success", "source_unavailable", "error"
	)

	MiningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cartsage_mining_duration_seconds",
			Help:    "Duration of a full mining pass including basket read and store replace",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	MiningBaskets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartsage_mining_baskets",
			Help: "Number of baskets read by the most recent mining pass",
		},
	)

	RulesCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartsage_rules_current",
			Help: "Number of rules in the current rule set",
		},
	)

	RulesLastGenerated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartsage_rules_last_generated_timestamp",
			Help: "Unix timestamp of the last successful rule set replace",
		},
	)

	RegenerationTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsage_regeneration_timeouts_total",
			Help: "Requests that returned before their regeneration pass finished",
		},
	)

	// Selection Metrics
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsage_recommendations_total",
			Help: "Recommendation requests by outcome",
		},
		[]string{"outcome"}, // "selected", "no_match", "not_ready", "error"
	)

	RecommendationCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cartsage_recommendation_candidates",
			Help:    "Number of applicable rules per recommendation request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	BanditFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsage_bandit_fallbacks_total",
			Help: "Selections that fell back to uniform random choice",
		},
	)

	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsage_feedback_total",
			Help: "Feedback events by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "unknown_rule", "error"
	)

	// Watcher Metrics
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsage_watcher_events_total",
			Help: "Basket change events seen by the watcher by decision",
		},
		[]string{"decision"}, // "first_insert", "session_change", "skipped", "invalid", "lookup_failed"
	)

	WatcherResubscribes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsage_watcher_resubscribes_total",
			Help: "Times the watcher re-established its change subscription",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsage_events_published_total",
			Help: "Basket change events published by outcome",
		},
		[]string{"outcome"},
	)

	// API Metrics
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
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages broadcast",
		},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordMiningRun records one regeneration pass.
func RecordMiningRun(trigger, outcome string, duration time.Duration, baskets, rules int) {
	MiningRunsTotal.WithLabelValues(trigger, outcome).Inc()
	MiningDuration.Observe(duration.Seconds())
	if outcome != "success" {
		return
	}
	MiningBaskets.Set(float64(baskets))
	RulesCurrent.Set(float64(rules))
	RulesLastGenerated.Set(float64(time.Now().Unix()))
}

// RecordRecommendation records a recommendation outcome and its candidate count.
func RecordRecommendation(outcome string, candidates int, fallback bool) {
	RecommendationsTotal.WithLabelValues(outcome).Inc()
	if candidates > 0 {
		RecommendationCandidates.Observe(float64(candidates))
	}
	if fallback {
		BanditFallbacks.Inc()
	}
}

// RecordFeedback records a feedback event.
func RecordFeedback(outcome string) {
	FeedbackTotal.WithLabelValues(outcome).Inc()
}

// RecordWatcherEvent records the decision taken for one change event.
func RecordWatcherEvent(decision string) {
	WatcherEventsTotal.WithLabelValues(decision).Inc()
}

// RecordEventPublished records the outcome of publishing a change event.
func RecordEventPublished(err error) {
	if err != nil {
		EventsPublished.WithLabelValues("error").Inc()
		return
	}
	EventsPublished.WithLabelValues("success").Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
