// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/metrics"
)

// EngineConfig tunes engine behavior.
type EngineConfig struct {
	// FailOpen controls what happens when the cooldown store errors during
	// a claim. False (the default) suppresses the alert: a broken store
	// must not turn into an alert storm. True creates the alert anyway,
	// accepting possible duplicates.
	FailOpen bool

	// StoreTimeout bounds each cooldown store call. Zero means 5 seconds.
	StoreTimeout time.Duration

	// DefaultCooldown applies to rules that leave CooldownSeconds unset.
	// A rule's explicit zero disables deduplication and is never
	// overridden. Zero means no default.
	DefaultCooldown time.Duration
}

// Engine evaluates events against the enabled rule set and fires alerts.
// All rule evaluation is stateless; the cooldown store is the only
// serialization point, so concurrent Process calls are safe.
type Engine struct {
	rules       RuleSource
	cooldown    CooldownStore
	alerts      AlertStore
	notifiers   []Notifier
	broadcaster Broadcaster
	clock       Clock
	cfg         EngineConfig
}

// NewEngine assembles an engine. broadcaster may be nil when no realtime
// surface is attached; notifiers may be empty.
func NewEngine(rules RuleSource, cooldown CooldownStore, alerts AlertStore, notifiers []Notifier, broadcaster Broadcaster, clock Clock, cfg EngineConfig) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Engine{
		rules:       rules,
		cooldown:    cooldown,
		alerts:      alerts,
		notifiers:   notifiers,
		broadcaster: broadcaster,
		clock:       clock,
		cfg:         cfg,
	}
}

// Process runs one event through every enabled rule and returns the alerts
// that fired. A failure in one rule never blocks the others: per-rule
// errors are joined and returned alongside the alerts that did fire.
func (e *Engine) Process(ctx context.Context, event *Event) ([]Alert, error) {
	start := e.clock()
	defer func() {
		metrics.ProcessDuration.Observe(e.clock().Sub(start).Seconds())
	}()

	if event == nil {
		return nil, &ValidationError{Field: "event", Reason: "event is nil"}
	}
	if event.CameraID == "" {
		metrics.EventsMalformed.Inc()
		return nil, &ValidationError{Field: "camera_id", Reason: "camera_id is required"}
	}

	rules, err := e.rules.ListEnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing enabled rules: %w", err)
	}
	metrics.RulesLoaded.Set(float64(len(rules)))

	instant := event.Timestamp
	if instant.IsZero() {
		instant = e.clock()
	}

	var fired []Alert
	var errs []error

	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			continue
		}

		alerts, err := e.evaluateRule(ctx, rule, event, instant)
		if err != nil {
			metrics.RuleEvalErrors.WithLabelValues(rule.ID).Inc()
			logging.Error().
				Err(err).
				Str("rule_id", rule.ID).
				Str("event_id", event.ID).
				Msg("rule evaluation failed")
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		fired = append(fired, alerts...)
	}

	for i := range fired {
		e.dispatch(&fired[i])
	}

	return fired, errors.Join(errs...)
}

// evaluateRule runs the membership prefilter, schedule, conditions,
// dedup and persistence for one rule. It returns the alerts fired for
// this rule (more than one when the dedup template fans out per object
// type).
func (e *Engine) evaluateRule(ctx context.Context, rule *AlertRule, event *Event, instant time.Time) ([]Alert, error) {
	if !prefilterMatch(rule, event) {
		metrics.RecordSuppression("conditions")
		return nil, nil
	}

	if !ScheduleActive(rule.Schedule, instant) {
		metrics.RecordSuppression("schedule")
		return nil, nil
	}

	match := EvaluateConditions(rule, event)
	if !match.Matches {
		metrics.RecordSuppression("conditions")
		return nil, nil
	}

	keys, err := BuildDedupKeys(rule.DedupKeyTemplate, event, rule)
	if err != nil {
		return nil, err
	}

	cooldown := e.cfg.DefaultCooldown
	if rule.CooldownSeconds != nil {
		cooldown = time.Duration(*rule.CooldownSeconds) * time.Second
	}

	var fired []Alert
	for _, key := range keys {
		alert, err := e.claimAndSave(ctx, rule, event, match, key, cooldown)
		if err != nil {
			return fired, err
		}
		if alert != nil {
			fired = append(fired, *alert)
		}
	}
	return fired, nil
}

// claimAndSave attempts the atomic cooldown claim for one dedup key and,
// on success, persists the alert. The alert ID is generated before the
// claim so the store can record the owner atomically with the reservation.
func (e *Engine) claimAndSave(ctx context.Context, rule *AlertRule, event *Event, match MatchResult, key DedupKey, cooldown time.Duration) (*Alert, error) {
	alertID := uuid.NewString()

	claimCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	result, err := e.cooldown.TryClaim(claimCtx, key.Key, alertID, cooldown)
	cancel()

	if err != nil {
		metrics.RecordStoreError("claim")
		if !e.cfg.FailOpen {
			metrics.RecordSuppression("store_error")
			return nil, fmt.Errorf("cooldown claim for %q: %w", key.Key, err)
		}
		logging.Warn().
			Err(err).
			Str("dedup_key", key.Key).
			Str("rule_id", rule.ID).
			Msg("cooldown store error, failing open")
		result = ClaimResult{Claimed: true}
	}

	if !result.Claimed {
		metrics.RecordSuppression("cooldown")
		logging.Debug().
			Str("dedup_key", key.Key).
			Str("rule_id", rule.ID).
			Str("existing_alert_id", result.ExistingAlertID).
			Int("seconds_until_expiry", result.SecondsUntilExpiry).
			Msg("alert suppressed by cooldown")
		return nil, nil
	}

	now := e.clock()
	meta, err := json.Marshal(AlertMetadata{
		CameraID:          event.CameraID,
		ZoneIDs:           event.ZoneIDs,
		ObjectType:        key.ObjectType,
		RiskScore:         event.RiskScore,
		Confidence:        event.Confidence,
		MatchedConditions: match.MatchedConditions,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding alert metadata: %w", err)
	}

	alert := &Alert{
		ID:        alertID,
		EventID:   event.ID,
		RuleID:    rule.ID,
		Severity:  rule.Severity,
		Status:    StatusPending,
		DedupKey:  key.Key,
		Channels:  rule.Channels,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}

	saveCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	err = e.alerts.SaveAlert(saveCtx, alert)
	cancel()
	if err != nil {
		metrics.RecordStoreError("save")
		// Roll back the reservation so the next event can claim.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StoreTimeout)
		if relErr := e.cooldown.Release(releaseCtx, key.Key); relErr != nil {
			logging.Error().Err(relErr).Str("dedup_key", key.Key).Msg("failed to release cooldown claim")
		}
		cancel()
		return nil, fmt.Errorf("persisting alert %s: %w", alertID, err)
	}

	metrics.RecordAlertFired(rule.ID, string(rule.Severity))
	logging.Info().
		Str("alert_id", alertID).
		Str("rule_id", rule.ID).
		Str("event_id", event.ID).
		Str("severity", string(rule.Severity)).
		Str("dedup_key", key.Key).
		Msg("alert fired")

	return alert, nil
}

// dispatch pushes a fired alert to the realtime surface and the delivery
// channels. Delivery failures are logged, not returned: alert creation
// already succeeded and the lifecycle tracks delivery separately.
func (e *Engine) dispatch(alert *Alert) {
	if e.broadcaster != nil {
		e.broadcaster.BroadcastJSON("alert.fired", alert)
	}
	for _, n := range e.notifiers {
		if !n.Enabled() {
			continue
		}
		go func(n Notifier, alert Alert) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := n.Send(ctx, &alert); err != nil {
				logging.Error().
					Err(err).
					Str("notifier", n.Name()).
					Str("alert_id", alert.ID).
					Msg("notification delivery failed")
			}
		}(n, *alert)
	}
}

// CheckDuplicate answers the read-only dedup probe used by the dashboard:
// would an alert with this key currently be suppressed?
func (e *Engine) CheckDuplicate(ctx context.Context, key string) (ClaimResult, error) {
	if err := checkKey(key); err != nil {
		return ClaimResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return e.cooldown.CheckDuplicate(ctx, key)
}
