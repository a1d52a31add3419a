// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"
)

// startHub runs the hub in the background and returns a cancel func that
// stops it and waits for exit.
func startHub(t *testing.T, hub *Hub) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() error = %v, want context.Canceled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("hub did not stop after cancel")
		}
	}
}

// connect registers a bare client with the hub and waits until it is
// visible. The conn is nil; tests read the send channel directly.
func connect(t *testing.T, hub *Hub) *Client {
	t.Helper()

	client := NewClient(hub, nil)
	select {
	case hub.register <- client:
	case <-time.After(time.Second):
		t.Fatal("register blocked")
	}
	waitForClients(t, hub, func(n int) bool { return n > 0 })
	return client
}

func waitForClients(t *testing.T, hub *Hub, ok func(int) bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ok(hub.ClientCount()) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client count %d never reached expected state", hub.ClientCount())
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	stop := startHub(t, hub)
	defer stop()

	c1 := connect(t, hub)
	c2 := connect(t, hub)
	waitForClients(t, hub, func(n int) bool { return n == 2 })

	hub.BroadcastJSON(MessageTypeAlertFired, map[string]string{"id": "a1"})

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeAlertFired {
				t.Errorf("message type = %q, want %q", msg.Type, MessageTypeAlertFired)
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	stop := startHub(t, hub)
	defer stop()

	slow := connect(t, hub)
	// Fill the client buffer without draining it.
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- Message{Type: MessageTypePing}
	}

	hub.BroadcastJSON(MessageTypeAlertFired, nil)
	waitForClients(t, hub, func(n int) bool { return n == 0 })

	// The send channel is closed once the client is dropped.
	drained := 0
	for range slow.send {
		drained++
	}
	if drained != cap(slow.send) {
		t.Errorf("drained %d buffered messages, want %d", drained, cap(slow.send))
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	stop := startHub(t, hub)
	defer stop()

	client := connect(t, hub)
	select {
	case hub.unregister <- client:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked")
	}
	waitForClients(t, hub, func(n int) bool { return n == 0 })

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	stop := startHub(t, hub)

	client := connect(t, hub)
	stop()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after shutdown")
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() after shutdown = %d, want 0", got)
	}
}

func TestBroadcastJSONDoesNotBlockWhenIdle(t *testing.T) {
	hub := NewHub()
	// Hub not running: the broadcast buffer absorbs messages until full,
	// then drops without blocking.
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.BroadcastJSON(MessageTypeAlertFired, nil)
	}
}
