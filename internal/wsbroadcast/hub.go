// Package wsbroadcast is a websocket fan-out hub, adapted from the
// teacher's ws-broadcaster/internal/hub package: a register/unregister/
// broadcast channel triangle guarding a client set, non-blocking per-client
// sends, and disconnect-on-slow-client backpressure.
package wsbroadcast

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fortuna/edge-engine/internal/domain"
)

const clientSendBuffer = 64
const broadcastBuffer = 1000

// Message is what actually goes out over the wire: a channel-tagged
// opportunity envelope.
type Message struct {
	Type      string             `json:"type"`
	Channel   domain.Channel     `json:"channel"`
	Payload   domain.Opportunity `json:"payload"`
	Timestamp time.Time          `json:"timestamp"`
}

// Client wraps one websocket connection plus its channel subscription
// filter. An empty Channels set means "subscribed to everything".
type Client struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan Message
	Channels map[domain.Channel]bool
}

// Matches reports whether this client wants messages on channel.
func (c *Client) Matches(channel domain.Channel) bool {
	if len(c.Channels) == 0 {
		return true
	}
	return c.Channels[channel]
}

// TrySend enqueues msg without blocking; returns false if the client's
// buffer is full.
func (c *Client) TrySend(msg Message) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// Hub maintains the active client set and fans broadcasts out to every
// matching client.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	metricsMu        sync.Mutex
	totalConnections int64
	totalMessages    int64

	log zerolog.Logger
}

// NewHub builds an idle Hub. Run must be called to start its event loop.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run drives the hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Msg("wsbroadcast hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Broadcast enqueues a message for delivery. If the hub's internal buffer
// is full the message is dropped and logged, rather than blocking the
// caller (the router's delivery path).
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn().Str("channel", string(msg.Channel)).Msg("wsbroadcast: buffer full, dropping message")
	}
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c] = true
	h.clientsMu.Unlock()
	h.metricsMu.Lock()
	h.totalConnections++
	h.metricsMu.Unlock()
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.Send)
	}
}

func (h *Hub) deliver(msg Message) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	sent := 0
	for _, c := range clients {
		if !c.Matches(msg.Channel) {
			continue
		}
		if c.TrySend(msg) {
			sent++
			continue
		}
		h.log.Warn().Str("client", c.ID).Msg("wsbroadcast: client buffer full, disconnecting")
		go h.Unregister(c)
	}
	if sent > 0 {
		h.metricsMu.Lock()
		h.totalMessages++
		h.metricsMu.Unlock()
	}
}

// ClientCount reports the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Stats summarizes hub activity for the health/status surface.
type Stats struct {
	ActiveClients    int
	TotalConnections int64
	TotalMessages    int64
}

// Stats returns a snapshot of hub activity.
func (h *Hub) Stats() Stats {
	h.clientsMu.RLock()
	active := len(h.clients)
	h.clientsMu.RUnlock()
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	return Stats{ActiveClients: active, TotalConnections: h.totalConnections, TotalMessages: h.totalMessages}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		close(c.Send)
		delete(h.clients, c)
	}
}
