// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

// Package main is the entry point for the alert decision engine.
//
// The engine consumes security events from camera analysis pipelines,
// evaluates them against user-defined alert rules (conditions, schedules
// and cooldown-based deduplication) and fires alerts with a full
// lifecycle: pending, delivered, acknowledged or dismissed.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, config.yaml and
//     environment variables (Koanf v2)
//  2. Database: DuckDB for alerts and rule definitions
//  3. Cooldown store: in-memory or BadgerDB-backed dedup claims
//  4. WebSocket hub: real-time alert events for dashboards
//  5. Notifiers: outbound webhook with circuit breaker (optional)
//  6. NATS ingest: JetStream event consumption (optional)
//  7. HTTP server: REST API, health and Prometheus endpoints
//
// All long-running components run under a suture supervision tree so a
// crashing consumer restarts without taking the API down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config.yaml, built-in defaults.
//
// Common settings:
//   - HTTP_PORT: API listen port (default 8790)
//   - DUCKDB_PATH: alert database path (default /data/alerts.duckdb)
//   - COOLDOWN_BACKEND: memory or badger (default memory)
//   - NATS_ENABLED / NATS_URL: JetStream event ingestion
//   - WEBHOOK_ENABLED / WEBHOOK_URL: outbound alert delivery
//   - ENGINE_FAIL_OPEN: fire alerts even when the dedup store is down
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains in-flight requests, the ingest service stops consuming
// and the stores are closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/alerting"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/api"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/config"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/ingest"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/supervisor"
	ws "github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("cooldown_backend", cfg.Cooldown.Backend).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("webhook_enabled", cfg.Webhook.Enabled).
		Bool("fail_open", cfg.Engine.FailOpen).
		Msg("Configuration loaded")

	store, err := alerting.NewDuckDBStore(cfg.Database.Path, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize alert database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing alert database")
		}
	}()
	logging.Info().Msg("Alert database initialized")

	cooldown, badgerDB, err := buildCooldownStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize cooldown store")
	}
	defer func() {
		if err := cooldown.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cooldown store")
		}
		if badgerDB != nil {
			if err := badgerDB.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing badger database")
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub()
	lifecycle := alerting.NewLifecycle(store, hub, nil)

	var notifiers []alerting.Notifier
	if cfg.Webhook.Enabled {
		webhook := alerting.NewWebhookNotifier(alerting.WebhookConfig{
			WebhookURL:        cfg.Webhook.URL,
			Headers:           cfg.Webhook.Headers,
			Enabled:           cfg.Webhook.Enabled,
			RequestsPerSecond: cfg.Webhook.RequestsPerSecond,
			Timeout:           cfg.Webhook.Timeout,
			FailureThreshold:  cfg.Webhook.FailureThreshold,
		}, lifecycle)
		notifiers = append(notifiers, webhook)
		logging.Info().Str("url", cfg.Webhook.URL).Msg("Webhook notifier registered")
	}

	engine := alerting.NewEngine(store, cooldown, store, notifiers, hub, nil, alerting.EngineConfig{
		FailOpen:        cfg.Engine.FailOpen,
		StoreTimeout:    cfg.Engine.StoreTimeout,
		DefaultCooldown: time.Duration(cfg.Engine.DefaultCooldownSeconds) * time.Second,
	})

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddDataService(alerting.NewSweepService(cooldown, cfg.Cooldown.SweepInterval))
	tree.AddMessagingService(hub)

	if cfg.NATS.Enabled {
		ingestSvc, closeIngest, err := buildIngest(cfg, engine)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize NATS ingest")
		}
		defer closeIngest()
		tree.AddMessagingService(ingestSvc)
		logging.Info().
			Str("url", cfg.NATS.URL).
			Str("event_topic", cfg.NATS.EventTopic).
			Msg("NATS ingest enabled")
	}

	handlers := api.NewHandlers(engine, lifecycle, store)
	router := api.NewRouter(handlers, hub.Handler(), api.RouterConfig{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server registered")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Alert engine stopped gracefully")
}

// buildCooldownStore selects the dedup backend. The returned badger DB is
// non-nil only for the badger backend; the caller owns closing it after
// the store.
func buildCooldownStore(cfg *config.Config) (alerting.CooldownStore, *badger.DB, error) {
	switch cfg.Cooldown.Backend {
	case "badger":
		opts := badger.DefaultOptions(cfg.Cooldown.Path).WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("opening badger at %s: %w", cfg.Cooldown.Path, err)
		}
		logging.Info().Str("path", cfg.Cooldown.Path).Msg("Badger cooldown store opened")
		return alerting.NewBadgerCooldownStore(db, nil), db, nil
	default:
		return alerting.NewMemoryCooldownStore(nil), nil, nil
	}
}

// buildIngest wires the JetStream subscriber, publisher and handler.
func buildIngest(cfg *config.Config, engine *alerting.Engine) (*ingest.Service, func(), error) {
	logger := ingest.NewLoggerAdapter()

	subCfg := ingest.DefaultSubscriberConfig(cfg.NATS.URL)
	subCfg.DurableName = cfg.NATS.DurableName
	subCfg.QueueGroup = cfg.NATS.QueueGroup
	subCfg.SubscribersCount = cfg.NATS.SubscribersCount
	subCfg.AckWaitTimeout = cfg.NATS.AckWaitTimeout
	subCfg.MaxDeliver = cfg.NATS.MaxDeliver
	subCfg.StreamName = cfg.NATS.StreamName

	subscriber, err := ingest.NewSubscriber(subCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating subscriber: %w", err)
	}

	publisher, err := ingest.NewPublisher(ingest.DefaultPublisherConfig(cfg.NATS.URL), logger)
	if err != nil {
		_ = subscriber.Close()
		return nil, nil, fmt.Errorf("creating publisher: %w", err)
	}

	svc := ingest.NewService(subscriber, publisher, engine, cfg.NATS.EventTopic, cfg.NATS.AlertTopic)
	closer := func() {
		if err := subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing NATS subscriber")
		}
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing NATS publisher")
		}
	}
	return svc, closer, nil
}
