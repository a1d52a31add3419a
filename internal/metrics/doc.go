// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

// Package metrics defines the Prometheus instrumentation for the alert
// decision engine: event throughput, rule outcomes, cooldown claims,
// store latency, notification delivery and the realtime surfaces
// (WebSocket, NATS). All collectors are registered with the default
// registry via promauto and exposed on /metrics.
package metrics
