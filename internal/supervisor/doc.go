// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

// Package supervisor builds the suture supervision tree for the alert
// engine. Services are grouped into three layers for failure isolation:
// data (cooldown sweeping), messaging (WebSocket hub, NATS ingest) and
// api (HTTP server). A crash in one layer restarts only that layer's
// services.
package supervisor
