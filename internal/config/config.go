// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package config

import (
	"fmt"
	"time"
)

// Config is the full engine configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Engine   EngineConfig   `koanf:"engine"`
	Cooldown CooldownConfig `koanf:"cooldown"`
	Database DatabaseConfig `koanf:"database"`
	NATS     NATSConfig     `koanf:"nats"`
	Webhook  WebhookConfig  `koanf:"webhook"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// EngineConfig tunes the rule engine.
type EngineConfig struct {
	// FailOpen creates alerts even when the cooldown store errors.
	// Default false: a broken store suppresses, never storms.
	FailOpen bool `koanf:"fail_open"`

	// StoreTimeout bounds each cooldown/alert store call.
	StoreTimeout time.Duration `koanf:"store_timeout"`

	// DefaultCooldownSeconds applies to rules without a cooldown.
	DefaultCooldownSeconds int `koanf:"default_cooldown_seconds"`
}

// CooldownConfig selects and tunes the dedup store backend.
type CooldownConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend"`

	// Path is the badger data directory. Ignored for the memory backend.
	Path string `koanf:"path"`

	// SweepInterval is how often expired entries are evicted.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// DatabaseConfig holds the DuckDB settings.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// NATSConfig holds the event stream settings.
type NATSConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	EventTopic       string        `koanf:"event_topic"`
	AlertTopic       string        `koanf:"alert_topic"`
	StreamName       string        `koanf:"stream_name"`
	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	MaxDeliver       int           `koanf:"max_deliver"`
}

// WebhookConfig holds the outbound webhook notifier settings.
type WebhookConfig struct {
	Enabled           bool              `koanf:"enabled"`
	URL               string            `koanf:"url"`
	Headers           map[string]string `koanf:"headers"`
	RequestsPerSecond float64           `koanf:"requests_per_second"`
	Timeout           time.Duration     `koanf:"timeout"`
	FailureThreshold  uint32            `koanf:"failure_threshold"`
}

// LoggingConfig holds the zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before the config
// file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8790,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Engine: EngineConfig{
			FailOpen:               false,
			StoreTimeout:           5 * time.Second,
			DefaultCooldownSeconds: 0,
		},
		Cooldown: CooldownConfig{
			Backend:       "memory",
			Path:          "/data/cooldown",
			SweepInterval: time.Minute,
		},
		Database: DatabaseConfig{
			Path: "/data/alerts.duckdb",
		},
		NATS: NATSConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			EventTopic:       "security.events",
			AlertTopic:       "security.alerts",
			StreamName:       "",
			DurableName:      "alert-engine",
			QueueGroup:       "alert-engines",
			SubscribersCount: 4,
			AckWaitTimeout:   30 * time.Second,
			MaxDeliver:       5,
		},
		Webhook: WebhookConfig{
			Enabled:           false,
			RequestsPerSecond: 2,
			Timeout:           10 * time.Second,
			FailureThreshold:  5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Engine.DefaultCooldownSeconds < 0 {
		return fmt.Errorf("engine.default_cooldown_seconds must be >= 0")
	}
	switch c.Cooldown.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("cooldown.backend %q must be memory or badger", c.Cooldown.Backend)
	}
	if c.Cooldown.Backend == "badger" && c.Cooldown.Path == "" {
		return fmt.Errorf("cooldown.path is required for the badger backend")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled")
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when webhook.enabled")
	}
	return nil
}
