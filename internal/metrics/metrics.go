// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event pipeline metrics
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerting_events_processed_total",
			Help: "Total number of security events run through the rule engine",
		},
		[]string{"source"}, // "nats", "http"
	)

	EventsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerting_events_malformed_total",
			Help: "Total number of events rejected before rule evaluation",
		},
	)

	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alerting_process_duration_seconds",
			Help:    "Duration of a full rule-evaluation pass for one event",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rule evaluation metrics
	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerting_alerts_fired_total",
			Help: "Total number of alerts created",
		},
		[]string{"rule", "severity"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerting_alerts_suppressed_total",
			Help: "Total number of alerts suppressed before creation",
		},
		[]string{"reason"}, // "cooldown", "schedule", "conditions", "store_error"
	)

	RuleEvalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerting_rule_eval_errors_total",
			Help: "Total number of per-rule evaluation failures",
		},
		[]string{"rule"},
	)

	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alerting_rules_loaded",
			Help: "Number of enabled rules currently held by the engine",
		},
	)

	// Cooldown store metrics
	CooldownClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerting_cooldown_claims_total",
			Help: "Total number of cooldown claim attempts by outcome",
		},
		[]string{"outcome"}, // "claimed", "duplicate", "error"
	)

	CooldownEntriesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerting_cooldown_entries_swept_total",
			Help: "Total number of expired cooldown entries evicted by the sweeper",
		},
	)

	// Persistence metrics
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerting_store_errors_total",
			Help: "Total number of alert store failures",
		},
		[]string{"operation"}, // "save", "get", "list", "transition"
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alerting_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// Delivery metrics
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerting_delivery_attempts_total",
			Help: "Total number of notification delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"}, // outcome: "success", "failure", "circuit_open", "rate_limited"
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alerting_delivery_duration_seconds",
			Help:    "Duration of notification delivery attempts in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alerting_api_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alerting_api_requests_in_flight",
			Help: "Number of HTTP API requests currently being served",
		},
	)

	// WebSocket metrics
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alerting_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerting_websocket_messages_sent_total",
			Help: "Total number of messages broadcast to WebSocket clients",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerting_websocket_messages_dropped_total",
			Help: "Total number of broadcast messages dropped due to slow clients",
		},
	)

	// NATS ingest metrics
	NATSMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerting_nats_messages_consumed_total",
			Help: "Total number of messages consumed from the event stream",
		},
	)

	NATSParseFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerting_nats_parse_failed_total",
			Help: "Total number of stream messages that could not be decoded",
		},
	)

	NATSAlertsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerting_nats_alerts_published_total",
			Help: "Total number of fired alerts republished to the alert stream",
		},
	)
)

// RecordEventProcessed tracks one full engine pass over an event.
func RecordEventProcessed(source string, duration time.Duration) {
	EventsProcessed.WithLabelValues(source).Inc()
	ProcessDuration.Observe(duration.Seconds())
}

// RecordAlertFired tracks a created alert by rule and severity.
func RecordAlertFired(rule, severity string) {
	AlertsFired.WithLabelValues(rule, severity).Inc()
}

// RecordSuppression tracks an alert that was not created and why.
func RecordSuppression(reason string) {
	AlertsSuppressed.WithLabelValues(reason).Inc()
}

// RecordStoreError tracks an alert store failure by operation.
func RecordStoreError(operation string) {
	StoreErrors.WithLabelValues(operation).Inc()
}

// RecordDBQuery tracks DuckDB query latency by operation and table.
func RecordDBQuery(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDelivery tracks a notification delivery attempt.
func RecordDelivery(channel, outcome string, duration time.Duration) {
	DeliveryAttempts.WithLabelValues(channel, outcome).Inc()
	DeliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordAPIRequest tracks HTTP API latency by route and status code.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, strconv.Itoa(status)).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIRequestsInFlight.Inc()
	} else {
		APIRequestsInFlight.Dec()
	}
}
