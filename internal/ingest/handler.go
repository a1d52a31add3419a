// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/alerting"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/metrics"
)

// EventProcessor runs one event through the rule engine. Satisfied by
// *alerting.Engine.
type EventProcessor interface {
	Process(ctx context.Context, event *alerting.Event) ([]alerting.Alert, error)
}

// Service consumes detection events from the event topic, evaluates them,
// and republishes fired alerts to the alert topic. It implements
// suture.Service via Serve.
type Service struct {
	subscriber *Subscriber
	publisher  *Publisher
	processor  EventProcessor

	eventTopic     string
	alertTopic     string
	processTimeout time.Duration
}

// NewService wires the ingest pipeline. publisher may be nil to disable
// alert republishing.
func NewService(subscriber *Subscriber, publisher *Publisher, processor EventProcessor, eventTopic, alertTopic string) *Service {
	return &Service{
		subscriber:     subscriber,
		publisher:      publisher,
		processor:      processor,
		eventTopic:     eventTopic,
		alertTopic:     alertTopic,
		processTimeout: 30 * time.Second,
	}
}

// Serve consumes messages until the context is canceled.
func (s *Service) Serve(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.eventTopic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.eventTopic, err)
	}

	logging.Info().Str("topic", s.eventTopic).Msg("event ingest started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes one stream message. Undecodable payloads are
// acked away: redelivering poison forever just blocks the consumer.
// Processing failures nack so JetStream redelivers up to MaxDeliver.
func (s *Service) handleMessage(ctx context.Context, msg *message.Message) {
	metrics.NATSMessagesConsumed.Inc()

	var event alerting.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		metrics.NATSParseFailed.Inc()
		logging.Warn().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("dropping undecodable event message")
		msg.Ack()
		return
	}

	procCtx, cancel := context.WithTimeout(ctx, s.processTimeout)
	fired, err := s.processor.Process(procCtx, &event)
	cancel()

	metrics.EventsProcessed.WithLabelValues("nats").Inc()

	if err != nil {
		// Partial failure: some rules may have fired. Publish what did,
		// then nack so the remaining rules get another chance. Cooldown
		// claims make the retry idempotent for already-fired rules.
		s.publishAlerts(ctx, fired)
		logging.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("message_uuid", msg.UUID).
			Msg("event processing failed")
		msg.Nack()
		return
	}

	s.publishAlerts(ctx, fired)
	msg.Ack()
}

func (s *Service) publishAlerts(ctx context.Context, alerts []alerting.Alert) {
	if s.publisher == nil {
		return
	}
	for i := range alerts {
		alert := &alerts[i]
		payload, err := json.Marshal(alert)
		if err != nil {
			logging.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to encode alert for publish")
			continue
		}
		out := message.NewMessage(alert.ID, payload)
		if err := s.publisher.Publish(ctx, s.alertTopic, out); err != nil {
			logging.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert")
		}
	}
}
