// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/alerting"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/metrics"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/validation"
)

// Handlers serves the alerting API endpoints.
type Handlers struct {
	engine    *alerting.Engine
	lifecycle *alerting.Lifecycle
	store     *alerting.DuckDBStore
}

// NewHandlers wires the API handlers.
func NewHandlers(engine *alerting.Engine, lifecycle *alerting.Lifecycle, store *alerting.DuckDBStore) *Handlers {
	return &Handlers{engine: engine, lifecycle: lifecycle, store: store}
}

// ProcessEvent evaluates one event synchronously and returns the alerts
// that fired. The ingestion path for pipelines not on NATS.
func (h *Handlers) ProcessEvent(w http.ResponseWriter, r *http.Request) {
	var event alerting.Event
	if err := decodeJSON(r, &event); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not a valid event")
		return
	}
	if verr := validation.ValidateStruct(&event); verr != nil {
		respondFieldErrors(w, verr)
		return
	}

	start := time.Now()
	fired, err := h.engine.Process(r.Context(), &event)
	metrics.RecordEventProcessed("http", time.Since(start))

	if err != nil && len(fired) == 0 {
		if alerting.IsValidation(err) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		logging.Error().Err(err).Str("event_id", event.ID).Msg("event processing failed")
		respondError(w, http.StatusInternalServerError, "PROCESSING_ERROR", "event processing failed")
		return
	}

	if fired == nil {
		fired = []alerting.Alert{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts_fired": len(fired),
		"alerts":       fired,
	})
}

// testRuleRequest is the dry-run payload: a candidate rule, sample
// events, and an optional instant for schedule evaluation.
type testRuleRequest struct {
	Rule     alerting.AlertRule `json:"rule"`
	Events   []alerting.Event   `json:"events"`
	Limit    int                `json:"limit,omitempty"`
	TestTime *time.Time         `json:"test_time,omitempty"`
}

// TestRule dry-runs a rule against sample events with no side effects.
func (h *Handlers) TestRule(w http.ResponseWriter, r *http.Request) {
	var req testRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not a valid rule test")
		return
	}

	if req.Limit < 0 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "limit must be a non-negative integer")
		return
	}
	events := req.Events
	if req.Limit > 0 && len(events) > req.Limit {
		events = events[:req.Limit]
	}

	testTime := time.Time{}
	if req.TestTime != nil {
		testTime = *req.TestTime
	}

	result, err := alerting.TestRule(&req.Rule, events, testTime)
	if err != nil {
		if alerting.IsValidation(err) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "TEST_ERROR", "rule test failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// CheckDedup answers whether an alert with the given key would currently
// be suppressed. Read-only.
func (h *Handlers) CheckDedup(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAM", "key query parameter is required")
		return
	}
	// cooldown_seconds is accepted for interface parity with tryClaim but
	// does not influence a read-only check: the live entry's own expiry
	// decides the answer.
	if v := r.URL.Query().Get("cooldown_seconds"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "cooldown_seconds must be a non-negative integer")
			return
		}
	}

	result, err := h.engine.CheckDuplicate(r.Context(), key)
	if err != nil {
		if alerting.IsValidation(err) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		respondError(w, http.StatusServiceUnavailable, "STORE_ERROR", "cooldown store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"key":                  key,
		"duplicate":            !result.Claimed,
		"existing_alert_id":    result.ExistingAlertID,
		"seconds_until_expiry": result.SecondsUntilExpiry,
	})
}

// ListAlerts lists alerts with status, severity, rule and date filters.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAlertFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return
	}

	alerts, err := h.store.ListAlerts(r.Context(), filter)
	if err != nil {
		logging.Error().Err(err).Msg("listing alerts failed")
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []alerting.Alert{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetAlert retrieves one alert by ID.
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	alert, err := h.store.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "alert not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load alert")
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

// actorRequest carries the operator for acknowledge/dismiss.
type actorRequest struct {
	By string `json:"by"`
}

// MarkDelivered transitions a pending alert to delivered.
func (h *Handlers) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, _ string) (*alerting.Alert, error) {
		return h.lifecycle.MarkDelivered(ctx, id)
	}, false)
}

// AcknowledgeAlert transitions a pending or delivered alert to acknowledged.
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Acknowledge, true)
}

// DismissAlert transitions a pending or delivered alert to dismissed.
func (h *Handlers) DismissAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Dismiss, true)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (*alerting.Alert, error), wantActor bool) {
	id := chi.URLParam(r, "id")

	by := ""
	if wantActor {
		var req actorRequest
		if err := decodeJSON(r, &req); err == nil {
			by = req.By
		}
	}

	alert, err := fn(r.Context(), id, by)
	if err != nil {
		switch {
		case errors.Is(err, alerting.ErrAlertNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", "alert not found")
		case alerting.IsStateConflict(err):
			respondError(w, http.StatusConflict, "STATE_CONFLICT", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "STORE_ERROR", "transition failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

// SaveRule validates and upserts a rule definition.
func (h *Handlers) SaveRule(w http.ResponseWriter, r *http.Request) {
	var rule alerting.AlertRule
	if err := decodeJSON(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not a valid rule")
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		rule.ID = id
	}

	if err := h.store.SaveRule(r.Context(), &rule); err != nil {
		if alerting.IsValidation(err) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to save rule")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// Healthz reports liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func parseAlertFilter(r *http.Request) (alerting.AlertFilter, error) {
	q := r.URL.Query()
	var filter alerting.AlertFilter

	for _, s := range splitParam(q.Get("status")) {
		status := alerting.AlertStatus(s)
		switch status {
		case alerting.StatusPending, alerting.StatusDelivered, alerting.StatusAcknowledged, alerting.StatusDismissed:
			filter.Statuses = append(filter.Statuses, status)
		default:
			return filter, errors.New("unknown status " + s)
		}
	}
	for _, s := range splitParam(q.Get("severity")) {
		severity := alerting.Severity(s)
		if !severity.Valid() {
			return filter, errors.New("unknown severity " + s)
		}
		filter.Severities = append(filter.Severities, severity)
	}
	filter.RuleID = q.Get("rule_id")

	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("start_date must be RFC3339")
		}
		filter.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("end_date must be RFC3339")
		}
		filter.EndDate = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
