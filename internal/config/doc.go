// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

// Package config loads the engine configuration with Koanf v2 from three
// layers, lowest priority first: built-in defaults, an optional YAML
// config file, and environment variables.
package config
