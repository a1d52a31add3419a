// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

// Package websocket pushes alert lifecycle events to connected dashboard
// clients. The Hub fans each broadcast out to every client over a
// buffered per-client channel; slow clients are dropped rather than
// allowed to stall the hub.
package websocket
