// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

// Package alerting decides, for each detection event and each configured
// rule, whether to fire an alert, and guarantees that semantically duplicate
// alerts are suppressed for the rule's cooldown window.
//
// The package is built from four pure components and one stateful one:
//
//   - schedule evaluation (ScheduleActive): calendar/time-window arithmetic,
//     including midnight-spanning windows and timezones
//   - condition matching (EvaluateConditions): AND-combined predicates over
//     risk score, object types, cameras, zones and confidence
//   - dedup key building (BuildDedupKeys): templated key derivation with
//     per-object-type fan-out
//   - the cooldown store (CooldownStore): atomic check-and-set of "is this
//     key already on cooldown", the sole serialization point
//   - the Engine, which orchestrates the above per (event, rule) pair
//
// Alerts created by the Engine start in StatusPending and move through the
// Lifecycle state machine: pending -> delivered -> {acknowledged, dismissed}.
//
// TestRule exposes the same evaluation logic in a side-effect-free dry-run
// mode for rule authoring; it never touches the cooldown store or the alert
// store.
package alerting
