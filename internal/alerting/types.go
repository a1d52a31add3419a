// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Severity indicates the severity level of a rule and its alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusPending      AlertStatus = "pending"
	StatusDelivered    AlertStatus = "delivered"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusDismissed    AlertStatus = "dismissed"
)

// Terminal reports whether the status admits no further transitions.
func (s AlertStatus) Terminal() bool {
	return s == StatusAcknowledged || s == StatusDismissed
}

// Event is a detection record from the upstream pipeline. It is read-only
// to this package.
type Event struct {
	ID          string    `json:"id"`
	CameraID    string    `json:"camera_id" validate:"required"`
	ZoneIDs     []string  `json:"zone_ids,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RiskScore   *float64  `json:"risk_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	ObjectTypes []string  `json:"object_types,omitempty"`
	Confidence  float64   `json:"confidence" validate:"gte=0,lte=1"`
}

// Schedule restricts a rule to weekdays and a clock-time window in a given
// timezone. A nil Schedule on a rule means always active.
//
// If StartTime > EndTime the window spans midnight: 22:00-06:00 is active
// from 22:00 through 23:59 and 00:00 through 05:59. The weekday filter is
// applied to the day the window started on, so the post-midnight tail of a
// Friday 22:00-06:00 window still counts as Friday.
type Schedule struct {
	// Days holds lowercase weekday names. Empty means all days.
	Days []string `json:"days,omitempty"`

	// StartTime and EndTime are "HH:MM" 24-hour clock strings. An empty
	// string leaves that bound open.
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`

	// Timezone is an IANA zone name. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`
}

// LegacyConditions is the pre-v2 rule condition object, kept for backward
// compatibility. Semantics are identical to the explicit rule fields:
// OR within a field, AND across fields, and its verdict is ANDed with the
// explicit fields' verdict.
type LegacyConditions struct {
	RiskThreshold *float64 `json:"risk_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	ObjectTypes   []string `json:"object_types,omitempty"`
	CameraIDs     []string `json:"camera_ids,omitempty"`
	ZoneIDs       []string `json:"zone_ids,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// AlertRule is a plain-data alert rule. All evaluation logic lives in
// stateless functions operating on this record; a nil condition field
// imposes no constraint.
type AlertRule struct {
	ID       string   `json:"id" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Enabled  bool     `json:"enabled"`
	Severity Severity `json:"severity" validate:"required"`

	RiskThreshold *float64  `json:"risk_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	ObjectTypes   []string  `json:"object_types,omitempty"`
	CameraIDs     []string  `json:"camera_ids,omitempty"`
	ZoneIDs       []string  `json:"zone_ids,omitempty"`
	MinConfidence *float64  `json:"min_confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Schedule      *Schedule `json:"schedule,omitempty"`

	Conditions *LegacyConditions `json:"conditions,omitempty"`

	// DedupKeyTemplate supports {camera_id}, {rule_id} and {object_type}
	// placeholders. Empty means DefaultDedupKeyTemplate.
	DedupKeyTemplate string `json:"dedup_key_template,omitempty"`

	// CooldownSeconds is the suppression window after a fired alert.
	// An explicit zero disables deduplication for this rule; nil defers
	// to the engine's default cooldown.
	CooldownSeconds *int `json:"cooldown_seconds,omitempty" validate:"omitempty,gte=0"`

	// Channels are opaque delivery-channel identifiers, in delivery order.
	Channels []string `json:"channels,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Alert is a fired alert. Created exclusively by a successful dedup claim,
// mutated only through Lifecycle transitions, never deleted by this core.
type Alert struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`

	// RuleID is empty when the originating rule has been deleted.
	RuleID string `json:"rule_id,omitempty"`

	Severity Severity        `json:"severity"`
	Status   AlertStatus     `json:"status"`
	DedupKey string          `json:"dedup_key"`
	Channels []string        `json:"channels,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`

	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

// AlertMetadata is the structured payload stored on fired alerts for
// dashboard display and the dedup-check API.
type AlertMetadata struct {
	CameraID          string   `json:"camera_id"`
	ZoneIDs           []string `json:"zone_ids,omitempty"`
	ObjectType        string   `json:"object_type,omitempty"`
	RiskScore         *float64 `json:"risk_score,omitempty"`
	Confidence        float64  `json:"confidence,omitempty"`
	MatchedConditions []string `json:"matched_conditions,omitempty"`
}

// AlertFilter selects alerts for listing queries.
type AlertFilter struct {
	Statuses   []AlertStatus `json:"statuses,omitempty"`
	Severities []Severity    `json:"severities,omitempty"`
	RuleID     string        `json:"rule_id,omitempty"`
	StartDate  *time.Time    `json:"start_date,omitempty"`
	EndDate    *time.Time    `json:"end_date,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	Offset     int           `json:"offset,omitempty"`
}

// AlertStore persists alerts and serves lifecycle transitions.
type AlertStore interface {
	// SaveAlert persists a new alert.
	SaveAlert(ctx context.Context, alert *Alert) error

	// GetAlert retrieves an alert by ID. Returns ErrAlertNotFound when absent.
	GetAlert(ctx context.Context, id string) (*Alert, error)

	// ListAlerts retrieves alerts matching the filter, newest first.
	ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)

	// TransitionAlert atomically moves an alert from one of the allowed
	// states to the target state. Returns a *StateConflictError when the
	// alert exists but is not in an allowed state, ErrAlertNotFound when
	// it does not exist.
	TransitionAlert(ctx context.Context, id string, from []AlertStatus, to AlertStatus, at time.Time, by string) (*Alert, error)
}

// RuleSource supplies the current set of rules. Rule authoring and storage
// are external; this core only reads validated rules.
type RuleSource interface {
	// ListEnabledRules returns all rules with Enabled=true.
	ListEnabledRules(ctx context.Context) ([]AlertRule, error)
}

// Notifier hands fired alerts to an external delivery channel. Delivery
// mechanics (email, push, webhook fan-out) are not this core's concern.
type Notifier interface {
	// Send delivers an alert to the notification channel.
	Send(ctx context.Context, alert *Alert) error

	// Name returns the notifier name (e.g. "webhook").
	Name() string

	// Enabled returns whether this notifier is enabled.
	Enabled() bool
}

// Broadcaster pushes alert events to connected dashboard clients.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// Clock supplies the current time. Injected so cooldown and lifecycle
// behavior is deterministic under test.
type Clock func() time.Time
