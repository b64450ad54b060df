package hub

import (
	"time"

	"github.com/orchestra-mcp/chatrelay/src/types"
	"github.com/rs/zerolog"
)

// Hub owns the connection registry and relays events between clients.
// All registry mutations and fan-outs run on the single Run goroutine, so
// one event is fully relayed before the next is looked at.
type Hub struct {
	registry *Registry
	routes   map[string]route

	register   chan *Client
	unregister chan *Client
	incoming   chan types.Envelope

	pingInterval time.Duration
	logger       zerolog.Logger
	done         chan struct{}
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		registry:   NewRegistry(),
		routes:     defaultRoutes(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan types.Envelope, 256),
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}
}

// SetPingInterval enables keep-alive pings on clients whose connection
// supports them. Call before Run.
func (h *Hub) SetPingInterval(d time.Duration) {
	h.pingInterval = d
}

// NextID allocates an id for a connection about to register.
func (h *Hub) NextID() string {
	return h.registry.Allocate()
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case env := <-h.incoming:
			h.handleMessage(env)
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	if !h.registry.Add(c) {
		h.logger.Error().Str("client_id", c.ID).Msg("duplicate client id, rejecting")
		c.Close()
		return
	}

	h.logger.Info().
		Str("client_id", c.ID).
		Int("clients", h.registry.Len()).
		Msg("user connected")

	h.sendTo(c, types.EventWelcome, types.Welcome{ID: c.ID})
	h.fanOut(types.EventChatMessage, types.ChatMessage{
		SenderID: types.SystemSender,
		Text:     types.JoinNotice,
	}, c.ID)
}

func (h *Hub) removeClient(c *Client) {
	if !h.registry.Remove(c) {
		return
	}
	c.Close()

	h.logger.Info().
		Str("client_id", c.ID).
		Int("clients", h.registry.Len()).
		Msg("user disconnected")

	// Peers may still show this connection as typing.
	h.fanOut(types.EventStopTyping, types.Presence{SenderID: c.ID}, c.ID)
}

func (h *Hub) closeAll() {
	for _, c := range h.registry.Snapshot() {
		h.registry.Remove(c)
		c.Close()
	}
}
