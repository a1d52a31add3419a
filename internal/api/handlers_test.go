// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/alerting"
)

type apiFixture struct {
	router http.Handler
	store  *alerting.DuckDBStore
	now    time.Time
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store, err := alerting.NewDuckDBStore(":memory:", clock)
	if err != nil {
		t.Fatalf("NewDuckDBStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cooldown := alerting.NewMemoryCooldownStore(clock)
	t.Cleanup(func() { cooldown.Close() })

	engine := alerting.NewEngine(store, cooldown, store, nil, nil, clock, alerting.EngineConfig{})
	lifecycle := alerting.NewLifecycle(store, nil, clock)

	router := NewRouter(NewHandlers(engine, lifecycle, store), nil, RouterConfig{
		RateLimitReqs: 10000,
	})
	return &apiFixture{router: router, store: store, now: now}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return resp
}

// dataMap re-decodes the envelope data into a map for field assertions.
func dataMap(t *testing.T, resp APIResponse) map[string]interface{} {
	t.Helper()

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-encoding data: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decoding data %q: %v", raw, err)
	}
	return m
}

func saveRule(t *testing.T, f *apiFixture, rule alerting.AlertRule) {
	t.Helper()
	if err := f.store.SaveRule(context.Background(), &rule); err != nil {
		t.Fatalf("SaveRule() error = %v", err)
	}
}

func apiRule(id string) alerting.AlertRule {
	threshold := 70.0
	cooldown := 300
	return alerting.AlertRule{
		ID:              id,
		Name:            "high risk " + id,
		Enabled:         true,
		Severity:        alerting.SeverityHigh,
		RiskThreshold:   &threshold,
		CooldownSeconds: &cooldown,
		Channels:        []string{"push"},
	}
}

func apiEvent(cameraID string, risk float64) alerting.Event {
	return alerting.Event{
		ID:          "evt-" + cameraID,
		CameraID:    cameraID,
		ZoneIDs:     []string{"backyard"},
		Timestamp:   time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		RiskScore:   &risk,
		ObjectTypes: []string{"person"},
		Confidence:  0.9,
	}
}

func TestProcessEventFiresAlert(t *testing.T) {
	f := setupAPI(t)
	saveRule(t, f, apiRule("r1"))

	rec := f.do(t, http.MethodPost, "/api/v1/events", apiEvent("front-door", 85))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	if got := data["alerts_fired"].(float64); got != 1 {
		t.Errorf("alerts_fired = %v, want 1", got)
	}

	// Same camera inside the cooldown window is suppressed.
	rec = f.do(t, http.MethodPost, "/api/v1/events", apiEvent("front-door", 90))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data = dataMap(t, decodeEnvelope(t, rec))
	if got := data["alerts_fired"].(float64); got != 0 {
		t.Errorf("alerts_fired after duplicate = %v, want 0", got)
	}
}

func TestProcessEventRejectsMalformed(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{"id": "e1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", resp.Error)
	}
}

func TestProcessEventRejectsOutOfRangeConfidence(t *testing.T) {
	f := setupAPI(t)

	event := apiEvent("front-door", 85)
	event.Confidence = 1.5
	rec := f.do(t, http.MethodPost, "/api/v1/events", event)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", resp.Error)
	}
}

func TestProcessEventRejectsUnknownFields(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"camera_id": "front-door",
		"bogus":     true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "INVALID_JSON" {
		t.Errorf("error = %+v, want INVALID_JSON", resp.Error)
	}
}

func TestTestRuleEndpoint(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules/test", map[string]interface{}{
		"rule": apiRule("r1"),
		"events": []alerting.Event{
			apiEvent("front-door", 85),
			apiEvent("garage", 10),
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	if got := data["events_matched"].(float64); got != 1 {
		t.Errorf("events_matched = %v, want 1", got)
	}

	// Dry runs have no side effects: the event still fires for real.
	saveRule(t, f, apiRule("r1"))
	rec = f.do(t, http.MethodPost, "/api/v1/events", apiEvent("front-door", 85))
	data = dataMap(t, decodeEnvelope(t, rec))
	if got := data["alerts_fired"].(float64); got != 1 {
		t.Errorf("alerts_fired after dry run = %v, want 1", got)
	}
}

func TestTestRuleAppliesLimit(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules/test", map[string]interface{}{
		"rule":  apiRule("r1"),
		"limit": 1,
		"events": []alerting.Event{
			apiEvent("front-door", 85),
			apiEvent("garage", 90),
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	if got := data["events_tested"].(float64); got != 1 {
		t.Errorf("events_tested = %v, want 1", got)
	}
}

func TestTestRuleRejectsInvalidRule(t *testing.T) {
	f := setupAPI(t)

	rule := apiRule("r1")
	rule.DedupKeyTemplate = "{camera_id} oops"
	rec := f.do(t, http.MethodPost, "/api/v1/rules/test", map[string]interface{}{
		"rule":   rule,
		"events": []alerting.Event{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCheckDedupEndpoint(t *testing.T) {
	f := setupAPI(t)
	saveRule(t, f, apiRule("r1"))
	f.do(t, http.MethodPost, "/api/v1/events", apiEvent("front-door", 85))

	rec := f.do(t, http.MethodGet, "/api/v1/dedup/check?key=r1:front-door", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	if data["duplicate"] != true {
		t.Errorf("duplicate = %v, want true", data["duplicate"])
	}
	if got := data["seconds_until_expiry"].(float64); got != 300 {
		t.Errorf("seconds_until_expiry = %v, want 300", got)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/dedup/check?key=r1:other-camera", nil)
	data = dataMap(t, decodeEnvelope(t, rec))
	if data["duplicate"] != false {
		t.Errorf("duplicate for unclaimed key = %v, want false", data["duplicate"])
	}

	rec = f.do(t, http.MethodGet, "/api/v1/dedup/check", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing key status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/dedup/check?key=has%20space", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid key status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/dedup/check?key=r1:front-door&cooldown_seconds=-5", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative cooldown_seconds status = %d, want 400", rec.Code)
	}
}

// fireAlert pushes an event through the API and returns the fired alert ID.
func fireAlert(t *testing.T, f *apiFixture, camera string) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/events", apiEvent(camera, 85))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	alerts := data["alerts"].([]interface{})
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	return alerts[0].(map[string]interface{})["id"].(string)
}

func TestAlertListingAndRetrieval(t *testing.T) {
	f := setupAPI(t)
	saveRule(t, f, apiRule("r1"))
	id := fireAlert(t, f, "front-door")
	fireAlert(t, f, "garage")

	rec := f.do(t, http.MethodGet, "/api/v1/alerts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	if got := data["count"].(float64); got != 2 {
		t.Errorf("count = %v, want 2", got)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/alerts?status=pending&severity=high", nil)
	data = dataMap(t, decodeEnvelope(t, rec))
	if got := data["count"].(float64); got != 2 {
		t.Errorf("filtered count = %v, want 2", got)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/alerts?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get alert status = %d", rec.Code)
	}
	data = dataMap(t, decodeEnvelope(t, rec))
	if data["id"] != id {
		t.Errorf("id = %v, want %s", data["id"], id)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/no-such-alert", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing alert status = %d, want 404", rec.Code)
	}
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	f := setupAPI(t)
	saveRule(t, f, apiRule("r1"))
	id := fireAlert(t, f, "front-door")

	rec := f.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/delivered", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delivered status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	if data["status"] != "delivered" {
		t.Errorf("status = %v, want delivered", data["status"])
	}

	// Delivering twice conflicts.
	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/delivered", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second delivered status = %d, want 409", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge", actorRequest{By: "operator-7"})
	if rec.Code != http.StatusOK {
		t.Fatalf("acknowledge status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data = dataMap(t, decodeEnvelope(t, rec))
	if data["acknowledged_by"] != "operator-7" {
		t.Errorf("acknowledged_by = %v, want operator-7", data["acknowledged_by"])
	}

	// Terminal state rejects further transitions.
	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/dismiss", actorRequest{By: "operator-7"})
	if rec.Code != http.StatusConflict {
		t.Errorf("dismiss after acknowledge = %d, want 409", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/no-such-alert/delivered", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing alert transition = %d, want 404", rec.Code)
	}
}

func TestSaveRuleEndpoint(t *testing.T) {
	f := setupAPI(t)

	rule := apiRule("r9")
	rec := f.do(t, http.MethodPut, "/api/v1/rules/r9", rule)
	if rec.Code != http.StatusOK {
		t.Fatalf("save rule status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rules, err := f.store.ListEnabledRules(context.Background())
	if err != nil {
		t.Fatalf("ListEnabledRules() error = %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "r9" {
		t.Errorf("rules = %+v, want one rule r9", rules)
	}

	// Path ID overrides the body.
	rule.ID = "ignored"
	rec = f.do(t, http.MethodPut, "/api/v1/rules/r9", rule)
	if rec.Code != http.StatusOK {
		t.Fatalf("save rule override status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/rules/%s", "r10"), map[string]interface{}{
		"id":       "r10",
		"name":     "",
		"severity": "high",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid rule status = %d, want 400", rec.Code)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("go_goroutines")) {
		t.Error("metrics output missing standard collectors")
	}
}
