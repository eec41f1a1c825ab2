package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans live session updates out to websocket clients, and mirrors them
// through Redis pub/sub so clients connected to other instances see them too.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	// pub decouples callers from the Redis round-trip; Broadcast must stay
	// non-blocking because the engine calls it under its session mutex.
	pub chan pubMsg
}

type Client struct {
	SessionID string
	Send      chan []byte
}

type pubMsg struct {
	channel string
	payload []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		h.pub = make(chan pubMsg, 256)
		go h.publishLoop()
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
	}
	close(client.Send)
}

// Broadcast delivers to local subscribers and queues the Redis mirror. It
// never blocks: a slow client or a backed-up Redis drops updates rather than
// stalling the engine.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	// Sends are non-blocking, so the read lock is held across them. That
	// keeps Unregister's close of Send from racing an in-flight send.
	h.mu.RLock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
	h.mu.RUnlock()

	if h.redis != nil {
		select {
		case h.pub <- pubMsg{channel: redisChannel(sessionID), payload: payload}:
		default:
			// Queue full means Redis is slow or down; drop the mirror rather
			// than stall the caller. Local subscribers already got the update.
		}
	}
}

func (h *Hub) publishLoop() {
	ctx := context.Background()
	for msg := range h.pub {
		if err := h.redis.Publish(ctx, msg.channel, msg.payload).Err(); err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "track:*:live")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		sessionID := sessionIDFromChannel(msg.Channel)
		h.mu.RLock()
		for client := range h.clients[sessionID] {
			select {
			case client.Send <- []byte(msg.Payload):
			default:
			}
		}
		h.mu.RUnlock()
	}
}

func redisChannel(sessionID string) string {
	return "track:" + sessionID + ":live"
}

func sessionIDFromChannel(ch string) string {
	// track:{session}:live
	const prefix = "track:"
	const suffix = ":live"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
