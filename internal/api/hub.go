package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/logging"
)

// Channels a WebSocket client can subscribe to.
const (
	ChannelTemperatureUpdated = "temperature.updated"
	ChannelSwitchUpdated      = "switch.updated"
)

// Hub fans device events out to subscribed WebSocket clients.
//
// A client that cannot keep up misses events rather than slowing the
// publisher. Safe for concurrent use.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	peers    map[*wsPeer]struct{}
	shutdown bool
}

// NewHub creates a hub. Zero fields in cfg take defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8 << 10
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	return &Hub{cfg: cfg, logger: logger, peers: make(map[*wsPeer]struct{})}
}

// Run blocks until ctx is done and then disconnects every client. Clients
// arriving afterwards are refused.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.shutdown = true
	peers := h.peers
	h.peers = make(map[*wsPeer]struct{})
	h.mu.Unlock()

	for p := range peers {
		p.stop()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Broadcast delivers payload as an event frame to every client subscribed
// to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		if p.subscribed(channel) {
			p.queue(frame)
		}
	}
}

func (h *Hub) join(p *wsPeer) bool {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return false
	}
	h.peers[p] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clients", n)
	return true
}

func (h *Hub) leave(p *wsPeer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	n := len(h.peers)
	h.mu.Unlock()

	p.stop()
	if ok {
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}
