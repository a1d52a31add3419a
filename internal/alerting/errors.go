// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"errors"
	"fmt"
)

// Sentinel errors for the decision engine.
var (
	// ErrStoreUnavailable indicates the cooldown store was unreachable or
	// timed out. The engine's fail-open/fail-closed policy decides what
	// happens to the affected claim.
	ErrStoreUnavailable = errors.New("cooldown store unavailable")

	// ErrAlertNotFound indicates a lifecycle call referenced an unknown alert.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrStoreClosed indicates an operation on a closed cooldown store.
	ErrStoreClosed = errors.New("cooldown store is closed")
)

// ValidationError reports a malformed rule field, dedup-key template, or
// out-of-range condition value. Surfaced to the rule author before any
// store interaction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// ScheduleParseError reports a malformed HH:MM clock string or unknown
// weekday or timezone. Schedules are validated at rule-validation time;
// evaluation never sees an invalid schedule.
type ScheduleParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ScheduleParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid schedule %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid schedule %s %q", e.Field, e.Value)
}

func (e *ScheduleParseError) Unwrap() error { return e.Err }

// StateConflictError reports an illegal lifecycle transition. It is an
// expected concurrent-edit outcome (two operators acknowledging at once),
// returned to the caller rather than treated as fatal.
type StateConflictError struct {
	AlertID string
	From    AlertStatus
	To      AlertStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("alert %s: cannot transition from %s to %s", e.AlertID, e.From, e.To)
}

// IsStateConflict reports whether err is a lifecycle state conflict.
func IsStateConflict(err error) bool {
	var sc *StateConflictError
	return errors.As(err, &sc)
}

// IsValidation reports whether err is a rule/template validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var se *ScheduleParseError
	return errors.As(err, &se)
}
