package providers

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/chatrelay/config"
	"github.com/orchestra-mcp/chatrelay/src/hub"
	"github.com/orchestra-mcp/chatrelay/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const wsPath = "/ws"

// RelayProvider wires the hub, the HTTP routes and the WebSocket endpoint
// into one fasthttp server.
type RelayProvider struct {
	active  bool
	cfg     *config.RelayConfig
	logger  zerolog.Logger
	hub     *hub.Hub
	service *service.Service
	app     *fiber.App
	server  *fasthttp.Server
}

// NewRelayProvider creates a provider for cfg.
func NewRelayProvider(cfg *config.RelayConfig, logger zerolog.Logger) *RelayProvider {
	return &RelayProvider{cfg: cfg, logger: logger}
}

// IsActive reports whether Activate has run without a later Deactivate.
func (p *RelayProvider) IsActive() bool { return p.active }

// Service returns the relay service. Nil before Activate.
func (p *RelayProvider) Service() *service.Service { return p.service }

// Activate initializes the hub, service, and starts the event loop.
func (p *RelayProvider) Activate() error {
	if p.active {
		return nil
	}
	p.hub = hub.New(p.logger)
	p.hub.SetPingInterval(p.cfg.PingInterval)
	p.service = service.New(p.hub, wsPath, p.cfg.MaxMessageSize, p.logger)

	p.app = fiber.New(fiber.Config{AppName: "chatrelay"})
	p.RegisterRoutes(p.app)

	p.server = &fasthttp.Server{
		Handler:            p.Handler(),
		Name:               "chatrelay",
		MaxRequestBodySize: int(p.cfg.MaxMessageSize),
	}

	go p.hub.Run()

	p.active = true
	p.logger.Info().Msg("relay activated")
	return nil
}

// Deactivate stops the hub event loop, which closes every client.
func (p *RelayProvider) Deactivate() error {
	if !p.active {
		return nil
	}
	p.hub.Stop()
	p.active = false
	return nil
}

// Handler dispatches WebSocket upgrades to the hub and everything else to
// the fiber app.
func (p *RelayProvider) Handler() fasthttp.RequestHandler {
	appHandler := p.app.Handler()
	wsHandler := p.FastHTTPHandler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == wsPath {
			wsHandler(ctx)
			return
		}
		appHandler(ctx)
	}
}

// Serve accepts connections on ln until ctx is done.
func (p *RelayProvider) Serve(ctx context.Context, ln net.Listener) error {
	if !p.active {
		return errors.New("relay provider not activated")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- p.server.Serve(ln) }()

	select {
	case err := <-errCh:
		_ = p.Deactivate()
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	p.logger.Info().Msg("shutting down")
	// Closing the hub first drops the hijacked WebSocket connections.
	_ = p.Deactivate()
	if err := p.server.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured port.
func (p *RelayProvider) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", p.cfg.Addr(), err)
	}
	p.logger.Info().Msgf("listening on *:%s", p.cfg.Port)
	return p.Serve(ctx, ln)
}
