// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/metrics"
)

// DeliveryReporter records successful deliveries on the alert lifecycle.
// Satisfied by *Lifecycle.
type DeliveryReporter interface {
	MarkDelivered(ctx context.Context, alertID string) (*Alert, error)
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	WebhookURL string            `json:"webhook_url"`
	Headers    map[string]string `json:"headers,omitempty"`
	Enabled    bool              `json:"enabled"`

	// RequestsPerSecond paces outbound calls. Zero means 2/s.
	RequestsPerSecond float64 `json:"requests_per_second"`

	// Timeout bounds each HTTP call. Zero means 10 seconds.
	Timeout time.Duration `json:"timeout"`

	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Zero means 5.
	FailureThreshold uint32 `json:"failure_threshold"`
}

// WebhookPayload is the JSON body posted to the webhook endpoint.
type WebhookPayload struct {
	Alert     *Alert    `json:"alert"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// WebhookNotifier delivers alerts to an HTTP endpoint. Outbound calls are
// paced by a token bucket and guarded by a circuit breaker so a dead
// endpoint cannot pile up goroutines or hammer a recovering one. A 2xx
// response marks the alert delivered via the lifecycle.
type WebhookNotifier struct {
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[interface{}]
	reporter DeliveryReporter

	mu         sync.RWMutex
	webhookURL string
	headers    map[string]string
	enabled    bool
}

// NewWebhookNotifier creates a webhook notifier. reporter may be nil, in
// which case successful deliveries are not recorded on the lifecycle.
func NewWebhookNotifier(config WebhookConfig, reporter DeliveryReporter) *WebhookNotifier {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	threshold := config.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	headers := make(map[string]string, len(config.Headers))
	for k, v := range config.Headers {
		headers[k] = v
	}

	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhook circuit breaker state changed")
		},
	})

	return &WebhookNotifier{
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker:    breaker,
		reporter:   reporter,
		webhookURL: config.WebhookURL,
		headers:    headers,
		enabled:    config.Enabled,
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Enabled returns whether this notifier is enabled.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.webhookURL != ""
}

// SetEnabled enables or disables the notifier.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetWebhookURL updates the webhook URL.
func (n *WebhookNotifier) SetWebhookURL(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.webhookURL = url
}

// Send delivers an alert to the webhook endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, alert *Alert) error {
	n.mu.RLock()
	if !n.enabled || n.webhookURL == "" {
		n.mu.RUnlock()
		return nil
	}
	webhookURL := n.webhookURL
	headers := make(map[string]string, len(n.headers))
	for k, v := range n.headers {
		headers[k] = v
	}
	n.mu.RUnlock()

	start := time.Now()

	if err := n.limiter.Wait(ctx); err != nil {
		metrics.RecordDelivery("webhook", "rate_limited", time.Since(start))
		return err
	}

	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.post(ctx, webhookURL, headers, alert)
	})

	switch {
	case err == nil:
		metrics.RecordDelivery("webhook", "success", time.Since(start))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordDelivery("webhook", "circuit_open", time.Since(start))
		return err
	default:
		metrics.RecordDelivery("webhook", "failure", time.Since(start))
		return err
	}

	if n.reporter != nil {
		if _, err := n.reporter.MarkDelivered(ctx, alert.ID); err != nil && !IsStateConflict(err) {
			return fmt.Errorf("marking alert %s delivered: %w", alert.ID, err)
		}
	}
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, url string, headers map[string]string, alert *Alert) error {
	payload := WebhookPayload{
		Alert:     alert,
		EventType: "security_alert",
		Timestamp: time.Now(),
		Source:    "nemotron",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*WebhookNotifier)(nil)
