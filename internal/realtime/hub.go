package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Event is a moderation feed message.
type Event struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"at"`
}

// Publisher publishes feed events to every instance.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload []byte) error
}

// Subscriber subscribes to a channel and invokes handler for incoming events.
type Subscriber interface {
	Subscribe(channel string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub fans moderation events out to connected moderators. With Redis
// configured every instance relays what any instance publishes.
type Hub struct {
	clients map[string]*Client
	cancel  func()
	mu      sync.RWMutex
	logger  *zap.Logger
	pub     Publisher
	sub     Subscriber
}

// NewHub creates a hub. pub and sub may be nil for a single-instance deployment.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

// Register adds a client. The Redis subscription starts with the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if len(h.clients) == 0 && h.sub != nil && h.cancel == nil {
		cancel, err := h.sub.Subscribe(ModerationChannel, func(event string, payload []byte) {
			h.Broadcast(event, json.RawMessage(payload))
		})
		if err != nil {
			h.logger.Warn("moderation feed subscribe failed", zap.Error(err))
		} else {
			h.cancel = cancel
		}
	}
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("moderator connected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client and stops the subscription when the last one leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	if len(h.clients) == 0 && h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.mu.Unlock()
	h.logger.Debug("moderator disconnected", zap.String("client_id", c.ID))
}

// ClientCount returns the number of connected moderators on this instance.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to local clients only.
func (h *Hub) Broadcast(event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := Event{Type: event, Data: data, At: time.Now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// slow consumer
		}
	}
}

// PublishEvent delivers an event to moderators on every instance. With Redis
// the subscriber callback performs the local broadcast, so each client sees
// the event once.
func (h *Hub) PublishEvent(ctx context.Context, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal feed event", zap.String("event", event), zap.Error(err))
		return
	}
	if h.pub != nil {
		if err := h.pub.Publish(ctx, ModerationChannel, event, data); err != nil {
			h.logger.Warn("publish feed event failed", zap.String("event", event), zap.Error(err))
		} else {
			return
		}
	}
	h.Broadcast(event, json.RawMessage(data))
}

// Close stops the Redis subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}
