// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

// testClock is a settable clock for deterministic cooldown and lifecycle
// behavior.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// staticRules is a RuleSource over a fixed slice.
type staticRules struct {
	rules []AlertRule
	err   error
}

func (s *staticRules) ListEnabledRules(_ context.Context) ([]AlertRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

// memAlertStore is an in-memory AlertStore for engine and lifecycle tests.
type memAlertStore struct {
	mu      sync.Mutex
	alerts  map[string]*Alert
	saveErr error
}

func newMemAlertStore() *memAlertStore {
	return &memAlertStore{alerts: make(map[string]*Alert)}
}

func (s *memAlertStore) SaveAlert(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *memAlertStore) GetAlert(_ context.Context, id string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	cp := *alert
	return &cp, nil
}

func (s *memAlertStore) ListAlerts(_ context.Context, _ AlertFilter) ([]Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *memAlertStore) TransitionAlert(_ context.Context, id string, from []AlertStatus, to AlertStatus, at time.Time, by string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}

	allowed := false
	for _, st := range from {
		if alert.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &StateConflictError{AlertID: id, From: alert.Status, To: to}
	}

	alert.Status = to
	alert.UpdatedAt = at
	if to == StatusDelivered {
		t := at
		alert.DeliveredAt = &t
	}
	if by != "" {
		alert.AcknowledgedBy = by
	}
	cp := *alert
	return &cp, nil
}

func (s *memAlertStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// failingCooldownStore errors on every claim.
type failingCooldownStore struct{}

func (failingCooldownStore) TryClaim(context.Context, string, string, time.Duration) (ClaimResult, error) {
	return ClaimResult{}, errors.Join(ErrStoreUnavailable, errors.New("boom"))
}

func (failingCooldownStore) CheckDuplicate(context.Context, string) (ClaimResult, error) {
	return ClaimResult{}, ErrStoreUnavailable
}

func (failingCooldownStore) Release(context.Context, string) error { return nil }

func (failingCooldownStore) CleanupExpired(context.Context) (int, error) {
	return 0, ErrStoreUnavailable
}

func (failingCooldownStore) Close() error { return nil }

// recordingBroadcaster captures broadcast calls.
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (b *recordingBroadcaster) BroadcastJSON(messageType string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, messageType)
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messages...)
}

func testEvent(cameraID string, risk float64) *Event {
	return &Event{
		ID:          "evt-1",
		CameraID:    cameraID,
		ZoneIDs:     []string{"backyard"},
		Timestamp:   time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		RiskScore:   floatPtr(risk),
		ObjectTypes: []string{"person"},
		Confidence:  0.9,
	}
}

func testRuleFixture(id string) AlertRule {
	return AlertRule{
		ID:              id,
		Name:            "rule " + id,
		Enabled:         true,
		Severity:        SeverityHigh,
		RiskThreshold:   floatPtr(70),
		CooldownSeconds: intPtr(300),
		Channels:        []string{"push"},
	}
}

func mustProcess(t *testing.T, e *Engine, event *Event) []Alert {
	t.Helper()
	fired, err := e.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	return fired
}
