// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func setupTestStore(t *testing.T) *DuckDBStore {
	t.Helper()
	store, err := NewDuckDBStore(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func storedAlert(id string, status AlertStatus, created time.Time) *Alert {
	meta, _ := json.Marshal(AlertMetadata{CameraID: "front-door", ObjectType: "person"})
	return &Alert{
		ID:        id,
		EventID:   "evt-" + id,
		RuleID:    "r1",
		Severity:  SeverityHigh,
		Status:    status,
		DedupKey:  "r1:front-door",
		Channels:  []string{"push", "webhook"},
		Metadata:  meta,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestDuckDBStoreSaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	alert := storedAlert("a1", StatusPending, created)
	if err := store.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("SaveAlert() error = %v", err)
	}

	got, err := store.GetAlert(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if got.EventID != "evt-a1" || got.RuleID != "r1" {
		t.Errorf("got %+v", got)
	}
	if got.Status != StatusPending || got.Severity != SeverityHigh {
		t.Errorf("Status/Severity = %s/%s", got.Status, got.Severity)
	}
	if len(got.Channels) != 2 || got.Channels[0] != "push" {
		t.Errorf("Channels = %v", got.Channels)
	}
	var meta AlertMetadata
	if err := json.Unmarshal(got.Metadata, &meta); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if meta.CameraID != "front-door" {
		t.Errorf("metadata camera = %q", meta.CameraID)
	}
	if got.DeliveredAt != nil {
		t.Errorf("DeliveredAt = %v, want nil", got.DeliveredAt)
	}
}

func TestDuckDBStoreGetAlertNotFound(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.GetAlert(context.Background(), "missing"); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("GetAlert() error = %v, want ErrAlertNotFound", err)
	}
}

func TestDuckDBStoreListAlerts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	for i, status := range []AlertStatus{StatusPending, StatusDelivered, StatusAcknowledged} {
		alert := storedAlert(string(rune('a'+i)), status, base.Add(time.Duration(i)*time.Minute))
		if i == 2 {
			alert.RuleID = "r2"
			alert.Severity = SeverityLow
		}
		if err := store.SaveAlert(ctx, alert); err != nil {
			t.Fatalf("SaveAlert() error = %v", err)
		}
	}

	all, err := store.ListAlerts(ctx, AlertFilter{})
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d alerts, want 3", len(all))
	}
	// Newest first.
	if !all[0].CreatedAt.After(all[2].CreatedAt) {
		t.Errorf("expected newest first, got %v then %v", all[0].CreatedAt, all[2].CreatedAt)
	}

	pending, err := store.ListAlerts(ctx, AlertFilter{Statuses: []AlertStatus{StatusPending}})
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Status != StatusPending {
		t.Errorf("pending filter returned %+v", pending)
	}

	byRule, err := store.ListAlerts(ctx, AlertFilter{RuleID: "r2"})
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(byRule) != 1 {
		t.Errorf("rule filter returned %d alerts, want 1", len(byRule))
	}

	bySeverity, err := store.ListAlerts(ctx, AlertFilter{Severities: []Severity{SeverityHigh}})
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(bySeverity) != 2 {
		t.Errorf("severity filter returned %d alerts, want 2", len(bySeverity))
	}

	cutoff := base.Add(30 * time.Second)
	recent, err := store.ListAlerts(ctx, AlertFilter{StartDate: &cutoff})
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("date filter returned %d alerts, want 2", len(recent))
	}

	limited, err := store.ListAlerts(ctx, AlertFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit/offset returned %d alerts, want 1", len(limited))
	}
}

func TestDuckDBStoreTransitionAlert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	if err := store.SaveAlert(ctx, storedAlert("a1", StatusPending, created)); err != nil {
		t.Fatalf("SaveAlert() error = %v", err)
	}

	at := created.Add(time.Minute)
	delivered, err := store.TransitionAlert(ctx, "a1", []AlertStatus{StatusPending}, StatusDelivered, at, "")
	if err != nil {
		t.Fatalf("TransitionAlert() error = %v", err)
	}
	if delivered.Status != StatusDelivered {
		t.Errorf("Status = %s, want delivered", delivered.Status)
	}
	if delivered.DeliveredAt == nil {
		t.Error("DeliveredAt not set on delivery")
	}

	// Guard failure on an already-delivered alert is a state conflict.
	_, err = store.TransitionAlert(ctx, "a1", []AlertStatus{StatusPending}, StatusDelivered, at, "")
	if !IsStateConflict(err) {
		t.Errorf("repeat transition error = %v, want state conflict", err)
	}
	var sc *StateConflictError
	if errors.As(err, &sc) && sc.From != StatusDelivered {
		t.Errorf("conflict From = %s, want delivered", sc.From)
	}

	acked, err := store.TransitionAlert(ctx, "a1", []AlertStatus{StatusPending, StatusDelivered}, StatusAcknowledged, at.Add(time.Minute), "operator-7")
	if err != nil {
		t.Fatalf("TransitionAlert() to acknowledged error = %v", err)
	}
	if acked.AcknowledgedBy != "operator-7" {
		t.Errorf("AcknowledgedBy = %q, want operator-7", acked.AcknowledgedBy)
	}

	// Unknown alert is not found, not a conflict.
	_, err = store.TransitionAlert(ctx, "missing", []AlertStatus{StatusPending}, StatusDelivered, at, "")
	if !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("unknown alert error = %v, want ErrAlertNotFound", err)
	}
}

func TestDuckDBStoreRules(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	enabled := testRuleFixture("r1")
	disabled := testRuleFixture("r2")
	disabled.Enabled = false
	withSchedule := testRuleFixture("r3")
	withSchedule.Schedule = &Schedule{Days: []string{"friday"}, StartTime: "22:00", EndTime: "06:00"}
	withSchedule.Conditions = &LegacyConditions{ObjectTypes: []string{"person"}}

	for _, rule := range []AlertRule{enabled, disabled, withSchedule} {
		r := rule
		if err := store.SaveRule(ctx, &r); err != nil {
			t.Fatalf("SaveRule(%s) error = %v", rule.ID, err)
		}
	}

	rules, err := store.ListEnabledRules(ctx)
	if err != nil {
		t.Fatalf("ListEnabledRules() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("listed %d enabled rules, want 2", len(rules))
	}
	if rules[0].ID != "r1" || rules[1].ID != "r3" {
		t.Errorf("rule order = %s, %s", rules[0].ID, rules[1].ID)
	}

	// Nullable fields round-trip through the JSON definition.
	r3 := rules[1]
	if r3.Schedule == nil || r3.Schedule.StartTime != "22:00" {
		t.Errorf("schedule did not round-trip: %+v", r3.Schedule)
	}
	if r3.Conditions == nil || len(r3.Conditions.ObjectTypes) != 1 {
		t.Errorf("legacy conditions did not round-trip: %+v", r3.Conditions)
	}
	if r3.RiskThreshold == nil || *r3.RiskThreshold != 70 {
		t.Errorf("risk threshold did not round-trip: %v", r3.RiskThreshold)
	}

	// Disabling a rule invalidates the cache.
	if err := store.SetRuleEnabled(ctx, "r1", false); err != nil {
		t.Fatalf("SetRuleEnabled() error = %v", err)
	}
	rules, err = store.ListEnabledRules(ctx)
	if err != nil {
		t.Fatalf("ListEnabledRules() error = %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "r3" {
		t.Errorf("after disable got %d rules", len(rules))
	}

	if err := store.SetRuleEnabled(ctx, "missing", true); err == nil {
		t.Error("expected error enabling unknown rule")
	}
}

func TestDuckDBStoreSaveRuleValidates(t *testing.T) {
	store := setupTestStore(t)
	bad := testRuleFixture("r1")
	bad.Severity = "urgent"
	if err := store.SaveRule(context.Background(), &bad); !IsValidation(err) {
		t.Errorf("SaveRule() error = %v, want validation error", err)
	}
}
