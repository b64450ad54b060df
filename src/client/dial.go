package client

import (
	"context"
	"fmt"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chatrelay/src/types"
)

const handshakeTimeout = 10 * time.Second

// Dial opens a WebSocket to the relay at url.
func Dial(ctx context.Context, url string) (types.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(types.MaxMessageSize)
	return conn, nil
}
