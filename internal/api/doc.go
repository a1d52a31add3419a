// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

// Package api serves the HTTP surface of the alert decision engine with
// the Chi router: synchronous event evaluation, rule dry-runs, dedup
// probes, alert listing and lifecycle transitions, plus health and
// Prometheus endpoints.
package api
