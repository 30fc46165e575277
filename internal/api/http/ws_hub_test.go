package apihttp

import (
	"encoding/json"
	"testing"
	"time"
)

func newRunningHub(t *testing.T) *wsHub {
	t.Helper()
	hub := newWSHub(testLogger())
	go hub.run()
	t.Cleanup(hub.Close)
	return hub
}

func TestWSHubRegisterUnregister(t *testing.T) {
	hub := newRunningHub(t)

	client := &wsClient{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client
	waitFor(t, func() bool { return hub.clientCount() == 1 })

	hub.unregister <- client
	waitFor(t, func() bool { return hub.clientCount() == 0 })

	// Channel closed on unregister.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatalf("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("send channel not closed")
	}
}

func TestWSHubBroadcast(t *testing.T) {
	hub := newRunningHub(t)

	client := &wsClient{hub: hub, send: make(chan []byte, 4)}
	hub.register <- client
	waitFor(t, func() bool { return hub.clientCount() == 1 })

	hub.Broadcast("streams", []string{"s1"})

	select {
	case payload := <-client.send:
		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "streams" {
			t.Fatalf("type = %q, want streams", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("no broadcast received")
	}
}

func TestWSHubBroadcastNoClients(t *testing.T) {
	hub := newRunningHub(t)
	// Must not block or panic with nobody listening.
	hub.Broadcast("streams", nil)
}

func TestWSHubBroadcastDropsSlowClient(t *testing.T) {
	hub := newRunningHub(t)

	slow := &wsClient{hub: hub, send: make(chan []byte)}
	hub.register <- slow
	waitFor(t, func() bool { return hub.clientCount() == 1 })

	hub.Broadcast("streams", []string{"s1"})
	waitFor(t, func() bool { return hub.clientCount() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
