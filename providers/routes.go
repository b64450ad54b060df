package providers

import (
	"errors"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/chatrelay/src/hub"
	"github.com/orchestra-mcp/chatrelay/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// RegisterRoutes registers the plain HTTP routes. The WebSocket upgrade is
// served by FastHTTPHandler since Fiber v3 does not expose
// *fasthttp.RequestCtx to handlers.
func (p *RelayProvider) RegisterRoutes(group fiber.Router) {
	group.Get("/healthz", p.handleHealth)
	group.Get("/ws/info", p.handleInfo)
	group.Get("/ws/clients", p.handleClients)
	group.Get("/ws/clients/:id", p.handleClient)
}

func (p *RelayProvider) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (p *RelayProvider) handleInfo(c fiber.Ctx) error {
	status := p.service.Status()
	return c.JSON(fiber.Map{
		"websocket":        true,
		"endpoint":         status.Endpoint,
		"clients":          status.Clients,
		"max_message_size": status.MaxMessageSize,
	})
}

func (p *RelayProvider) handleClients(c fiber.Ctx) error {
	clients := p.service.GetConnectedClients()
	return c.JSON(fiber.Map{"clients": clients, "count": len(clients)})
}

func (p *RelayProvider) handleClient(c fiber.Ctx) error {
	info, err := p.service.GetClientInfo(c.Params("id"))
	if errors.Is(err, service.ErrClientNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	}
	if err != nil {
		return err
	}
	return c.JSON(info)
}

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
func (p *RelayProvider) FastHTTPHandler() fasthttp.RequestHandler {
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  p.cfg.ReadBufferSize,
		WriteBufferSize: p.cfg.WriteBufferSize,
		// The chat page is served from elsewhere.
		CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
	}

	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		h := p.hub
		clientID := h.NextID()
		logger := p.logger.With().Str("client_id", clientID).Logger()

		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			conn.SetReadLimit(p.cfg.MaxMessageSize)
			wrapped := &fasthttpConn{
				conn:         conn,
				writeTimeout: p.cfg.WriteTimeout,
				pongWait:     2 * p.cfg.PingInterval,
				logger:       logger,
			}
			wrapped.armReadDeadline()

			client := hub.NewClient(clientID, wrapped, h)
			h.Register(client)
			go client.WritePump()
			client.ReadPump()
		})
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn and
// hub.Pinger.
type fasthttpConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pongWait     time.Duration
	logger       zerolog.Logger
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if f.writeTimeout > 0 {
		_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
	}
	return f.conn.WriteJSON(v)
}

func (f *fasthttpConn) ReadJSON(v any) error {
	err := f.conn.ReadJSON(v)
	if errors.Is(err, websocket.ErrReadLimit) {
		f.logger.Warn().Msg("frame over size limit, closing connection")
	}
	return err
}

func (f *fasthttpConn) Ping() error {
	deadline := time.Now().Add(f.writeTimeout)
	return f.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (f *fasthttpConn) Close() error { return f.conn.Close() }

// armReadDeadline makes a silent peer time out after pongWait. Every pong
// pushes the deadline out again.
func (f *fasthttpConn) armReadDeadline() {
	if f.pongWait <= 0 {
		return
	}
	_ = f.conn.SetReadDeadline(time.Now().Add(f.pongWait))
	f.conn.SetPongHandler(func(string) error {
		return f.conn.SetReadDeadline(time.Now().Add(f.pongWait))
	})
}
