// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/metrics"
)

// Message types sent to dashboard clients. Alert lifecycle types mirror
// the alert status names with an "alert." prefix.
const (
	MessageTypeAlertFired        = "alert.fired"
	MessageTypeAlertDelivered    = "alert.delivered"
	MessageTypeAlertAcknowledged = "alert.acknowledged"
	MessageTypeAlertDismissed    = "alert.dismissed"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
)

// Message is the envelope for every WebSocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and fans broadcasts out to
// them. It satisfies the engine's Broadcaster interface.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an idle hub. Serve must be running before clients
// connect.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve drives the hub until the context is canceled, then closes every
// client and returns ctx.Err(). Implements suture.Service.
//
// Lifecycle events are drained before broadcasts so client state is
// consistent when a message fans out: Go's select picks randomly among
// ready channels, so the drain pass makes ordering predictable.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.addClient(client)
			continue
		case client := <-h.unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// BroadcastJSON queues a message for all connected clients. Never blocks:
// when the broadcast buffer is full the message is dropped and counted.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client disconnected")
}

// fanOut sends a message to every client in ID order. Clients whose send
// buffer is full are disconnected: a stalled reader must not hold alert
// delivery for everyone else.
func (h *Hub) fanOut(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			metrics.WSMessagesDropped.Inc()
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.WSClients.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped_clients", len(toRemove)).Msg("dropped slow websocket clients")
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WSClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", ctx.Err().Error()).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}
