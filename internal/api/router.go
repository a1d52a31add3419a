// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/metrics"
)

// RouterConfig tunes the HTTP surface.
type RouterConfig struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// NewRouter assembles the Chi router. wsHandler serves the realtime
// WebSocket endpoint and may be nil when no hub is attached.
func NewRouter(handlers *Handlers, wsHandler http.Handler, cfg RouterConfig) http.Handler {
	if cfg.RateLimitReqs <= 0 {
		cfg.RateLimitReqs = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(requestMetrics)

	r.Get("/healthz", handlers.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			cfg.RateLimitReqs,
			cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))

		r.Post("/events", handlers.ProcessEvent)
		r.Post("/rules/test", handlers.TestRule)
		r.Put("/rules/{id}", handlers.SaveRule)
		r.Get("/dedup/check", handlers.CheckDedup)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", handlers.ListAlerts)
			r.Get("/{id}", handlers.GetAlert)
			r.Post("/{id}/delivered", handlers.MarkDelivered)
			r.Post("/{id}/acknowledge", handlers.AcknowledgeAlert)
			r.Post("/{id}/dismiss", handlers.DismissAlert)
		})

		if wsHandler != nil {
			r.Method(http.MethodGet, "/ws", wsHandler)
		}
	})

	return r
}

// requestMetrics records per-route latency and the in-flight gauge.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordAPIRequest(r.Method, endpoint, ww.Status(), time.Since(start))
	})
}
