package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("session-1")
	defer hub.Unregister(client)

	payload := []byte(`{"status":"recording"}`)
	hub.Broadcast("session-1", payload)

	select {
	case msg := <-client.Send:
		if string(msg) != string(payload) {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestHubBroadcastScopedToSession(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("session-1")
	defer hub.Unregister(client)

	hub.Broadcast("session-2", []byte("other"))

	select {
	case <-client.Send:
		t.Fatalf("received update for another session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubHelpers(t *testing.T) {
	ch := redisChannel("abc")
	if ch != "track:abc:live" {
		t.Fatalf("unexpected channel %s", ch)
	}
	if sessionIDFromChannel(ch) != "abc" {
		t.Fatalf("unexpected session id")
	}
	if sessionIDFromChannel("bad") != "" {
		t.Fatalf("expected empty session id")
	}
}

func TestUnregisterCloses(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("session-2")
	hub.Unregister(client)
	_, ok := <-client.Send
	if ok {
		t.Fatalf("expected channel closed")
	}
}

func TestBroadcastMirrorsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	hub := NewHub(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pubsub := sub.Subscribe(context.Background(), redisChannel("session-9"))
	defer pubsub.Close()
	if _, err := pubsub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	hub.Broadcast("session-9", []byte("update"))

	select {
	case msg := <-pubsub.Channel():
		if msg.Payload != "update" {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for mirrored publish")
	}
}

func TestBroadcastDoesNotBlockOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	hub := NewHub(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	mr.Close()

	// Flood well past the publish queue; Broadcast must drop, not stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Broadcast("session-9", []byte("update"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on redis publish")
	}
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("session-3")
	defer hub.Unregister(client)

	// Flood past the buffer; Broadcast must drop rather than stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Broadcast("session-3", []byte("update"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on slow client")
	}
}
