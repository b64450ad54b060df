package hub

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/chatrelay/src/types"
)

// sendQueueSize bounds how many frames may wait for a slow reader before
// further frames for it are dropped.
const sendQueueSize = 256

// Pinger is implemented by connections that can emit keep-alive pings.
type Pinger interface {
	Ping() error
}

// Client wraps a WebSocket connection and manages message flow.
type Client struct {
	ID          string
	conn        types.Conn
	hub         *Hub
	Send        chan types.Envelope
	connectedAt time.Time
	mu          sync.Mutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a new WebSocket client wrapper.
func NewClient(id string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Envelope, sendQueueSize),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		ConnectedAt: c.connectedAt,
	}
}

// ReadPump reads frames from the WebSocket and hands them to the hub in
// the order they arrived. It returns when the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		var env types.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.hub.logger.Debug().Err(err).Str("client_id", c.ID).Msg("read ended")
			return
		}
		env.ClientID = c.ID
		env.Timestamp = time.Now()
		select {
		case c.hub.incoming <- env:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes frames from the send queue to the WebSocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	var tick <-chan time.Time
	pinger, canPing := c.conn.(Pinger)
	if canPing && c.hub.pingInterval > 0 {
		ticker := time.NewTicker(c.hub.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Warn().Err(err).Str("client_id", c.ID).Msg("write failed")
				return
			}
		case <-tick:
			if err := pinger.Ping(); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
