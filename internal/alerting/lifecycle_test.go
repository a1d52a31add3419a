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
)

func seedAlert(t *testing.T, store *memAlertStore, id string, status AlertStatus) {
	t.Helper()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	err := store.SaveAlert(context.Background(), &Alert{
		ID:        id,
		EventID:   "evt-1",
		RuleID:    "r1",
		Severity:  SeverityHigh,
		Status:    status,
		DedupKey:  "r1:front-door",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seeding alert: %v", err)
	}
}

func TestLifecycleMarkDelivered(t *testing.T) {
	store := newMemAlertStore()
	clock := newTestClock(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC))
	lc := NewLifecycle(store, nil, clock.Now)
	seedAlert(t, store, "a1", StatusPending)

	alert, err := lc.MarkDelivered(context.Background(), "a1")
	if err != nil {
		t.Fatalf("MarkDelivered() error = %v", err)
	}
	if alert.Status != StatusDelivered {
		t.Errorf("Status = %s, want delivered", alert.Status)
	}
	if alert.DeliveredAt == nil || !alert.DeliveredAt.Equal(clock.Now()) {
		t.Errorf("DeliveredAt = %v, want %v", alert.DeliveredAt, clock.Now())
	}

	// Re-delivery is a state conflict, not a silent success.
	if _, err := lc.MarkDelivered(context.Background(), "a1"); !IsStateConflict(err) {
		t.Errorf("second MarkDelivered() error = %v, want state conflict", err)
	}
}

func TestLifecycleAcknowledge(t *testing.T) {
	tests := []struct {
		name    string
		initial AlertStatus
		wantErr bool
	}{
		{"from pending", StatusPending, false},
		{"from delivered", StatusDelivered, false},
		{"from acknowledged", StatusAcknowledged, true},
		{"from dismissed", StatusDismissed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemAlertStore()
			lc := NewLifecycle(store, nil, nil)
			seedAlert(t, store, "a1", tt.initial)

			alert, err := lc.Acknowledge(context.Background(), "a1", "operator-7")
			if tt.wantErr {
				if !IsStateConflict(err) {
					t.Errorf("error = %v, want state conflict", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Acknowledge() error = %v", err)
			}
			if alert.Status != StatusAcknowledged {
				t.Errorf("Status = %s, want acknowledged", alert.Status)
			}
			if alert.AcknowledgedBy != "operator-7" {
				t.Errorf("AcknowledgedBy = %q, want operator-7", alert.AcknowledgedBy)
			}
		})
	}
}

func TestLifecycleDismiss(t *testing.T) {
	store := newMemAlertStore()
	lc := NewLifecycle(store, nil, nil)
	seedAlert(t, store, "a1", StatusDelivered)

	alert, err := lc.Dismiss(context.Background(), "a1", "operator-2")
	if err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	if alert.Status != StatusDismissed {
		t.Errorf("Status = %s, want dismissed", alert.Status)
	}

	// Terminal: no further transitions.
	if _, err := lc.Acknowledge(context.Background(), "a1", "x"); !IsStateConflict(err) {
		t.Errorf("Acknowledge after dismiss error = %v, want state conflict", err)
	}
}

func TestLifecycleUnknownAlert(t *testing.T) {
	lc := NewLifecycle(newMemAlertStore(), nil, nil)
	if _, err := lc.MarkDelivered(context.Background(), "nope"); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("MarkDelivered() error = %v, want ErrAlertNotFound", err)
	}
}

func TestLifecycleBroadcasts(t *testing.T) {
	store := newMemAlertStore()
	broadcaster := &recordingBroadcaster{}
	lc := NewLifecycle(store, broadcaster, nil)
	seedAlert(t, store, "a1", StatusPending)

	if _, err := lc.MarkDelivered(context.Background(), "a1"); err != nil {
		t.Fatalf("MarkDelivered() error = %v", err)
	}
	if _, err := lc.Acknowledge(context.Background(), "a1", "op"); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}

	types := broadcaster.types()
	want := []string{"alert.delivered", "alert.acknowledged"}
	if len(types) != len(want) {
		t.Fatalf("broadcast types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("types[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}
