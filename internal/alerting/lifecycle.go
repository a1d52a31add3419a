// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"context"
	"time"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
)

// Lifecycle drives alert state transitions. The allowed graph is
//
//	pending -> delivered -> acknowledged | dismissed
//	pending -> acknowledged | dismissed
//
// acknowledged and dismissed are terminal. The store performs each
// transition as a single guarded update, so two operators racing on the
// same alert resolve to exactly one winner and one *StateConflictError.
type Lifecycle struct {
	store       AlertStore
	broadcaster Broadcaster
	clock       Clock
}

// NewLifecycle wires the lifecycle manager. broadcaster may be nil.
func NewLifecycle(store AlertStore, broadcaster Broadcaster, clock Clock) *Lifecycle {
	if clock == nil {
		clock = time.Now
	}
	return &Lifecycle{store: store, broadcaster: broadcaster, clock: clock}
}

// MarkDelivered records successful delivery. Only pending alerts can be
// marked delivered; re-delivery of an already-delivered alert is a state
// conflict, which notifier retry loops treat as success.
func (l *Lifecycle) MarkDelivered(ctx context.Context, alertID string) (*Alert, error) {
	return l.transition(ctx, alertID, []AlertStatus{StatusPending}, StatusDelivered, "")
}

// Acknowledge moves a pending or delivered alert to acknowledged,
// recording who acknowledged it.
func (l *Lifecycle) Acknowledge(ctx context.Context, alertID, by string) (*Alert, error) {
	return l.transition(ctx, alertID, []AlertStatus{StatusPending, StatusDelivered}, StatusAcknowledged, by)
}

// Dismiss moves a pending or delivered alert to dismissed.
func (l *Lifecycle) Dismiss(ctx context.Context, alertID, by string) (*Alert, error) {
	return l.transition(ctx, alertID, []AlertStatus{StatusPending, StatusDelivered}, StatusDismissed, by)
}

func (l *Lifecycle) transition(ctx context.Context, alertID string, from []AlertStatus, to AlertStatus, by string) (*Alert, error) {
	alert, err := l.store.TransitionAlert(ctx, alertID, from, to, l.clock(), by)
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("alert_id", alertID).
		Str("status", string(to)).
		Msg("alert transitioned")

	if l.broadcaster != nil {
		l.broadcaster.BroadcastJSON("alert."+string(to), alert)
	}
	return alert, nil
}
