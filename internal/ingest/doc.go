// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

// Package ingest consumes detection events from NATS JetStream, runs them
// through the alerting engine, and republishes fired alerts to the alert
// stream. Consumption is durable and queue-grouped so multiple instances
// share the load; poison messages are acked away after decoding fails.
package ingest
