package providers

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chatrelay/config"
	"github.com/orchestra-mcp/chatrelay/src/client"
	"github.com/orchestra-mcp/chatrelay/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRelay(t *testing.T, cfg *config.RelayConfig) (*RelayProvider, string) {
	t.Helper()
	p := NewRelayProvider(cfg, zerolog.Nop())
	require.NoError(t, p.Activate())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("relay did not shut down")
		}
	})
	return p, ln.Addr().String()
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp.StatusCode, out
}

func dialSession(t *testing.T, addr string) *client.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := client.Dial(ctx, "ws://"+addr+"/ws")
	require.NoError(t, err)

	s := client.NewSession(conn, zerolog.Nop())
	runCtx, stop := context.WithCancel(context.Background())
	go func() { _ = s.Run(runCtx) }()
	t.Cleanup(func() {
		stop()
		_ = s.Close()
	})
	waitOutcome(t, s, client.IdentityAssigned)
	return s
}

func waitOutcome(t *testing.T, s *client.Session, want client.Outcome) client.Update {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-s.Updates():
			require.True(t, ok, "session ended")
			if u.Outcome == want {
				return u
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for update")
		}
	}
}

func TestHealthz(t *testing.T) {
	_, addr := startRelay(t, config.DefaultConfig())

	code, body := getJSON(t, "http://"+addr+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestWebSocketEndpointRequiresUpgrade(t *testing.T) {
	_, addr := startRelay(t, config.DefaultConfig())

	code, body := getJSON(t, "http://"+addr+"/ws")
	assert.Equal(t, http.StatusUpgradeRequired, code)
	assert.Equal(t, "upgrade_required", body["error"])
}

func TestInfoReportsClients(t *testing.T) {
	p, addr := startRelay(t, config.DefaultConfig())

	dialSession(t, addr)
	dialSession(t, addr)

	require.Eventually(t, func() bool {
		_, body := getJSON(t, "http://"+addr+"/ws/info")
		return body["clients"] == float64(2)
	}, 2*time.Second, 20*time.Millisecond)

	_, body := getJSON(t, "http://"+addr+"/ws/info")
	assert.Equal(t, "/ws", body["endpoint"])
	assert.Equal(t, float64(types.MaxMessageSize), body["max_message_size"])

	_, clients := getJSON(t, "http://"+addr+"/ws/clients")
	assert.Equal(t, float64(2), clients["count"])
	assert.Len(t, p.Service().GetConnectedClients(), 2)
}

func TestClientLookup(t *testing.T) {
	_, addr := startRelay(t, config.DefaultConfig())
	s := dialSession(t, addr)
	id, ok := s.Reconciler().Self()
	require.True(t, ok)

	code, body := getJSON(t, "http://"+addr+"/ws/clients/"+id)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body["id"])

	code, body = getJSON(t, "http://"+addr+"/ws/clients/nobody")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["error"])
}

func TestChatRoundTripOverWebSocket(t *testing.T) {
	_, addr := startRelay(t, config.DefaultConfig())

	a := dialSession(t, addr)
	b := dialSession(t, addr)

	notice := waitOutcome(t, a, client.Rendered)
	assert.Equal(t, client.PlacementSystem, notice.Item.Placement)

	a.Input("hello")
	typing := waitOutcome(t, b, client.PresenceChanged)
	assert.Equal(t, "Someone is typing…", typing.Typing)

	sent, err := a.SendMessage("hello")
	require.NoError(t, err)
	assert.Equal(t, client.PlacementSelf, sent.Placement)

	got := waitOutcome(t, b, client.Rendered)
	assert.Equal(t, "hello", got.Item.Text)
	assert.Equal(t, client.PlacementPeer, got.Item.Placement)
	selfID, _ := a.Reconciler().Self()
	assert.Equal(t, selfID, got.Item.SenderID)

	waitOutcome(t, a, client.Suppressed)

	att := client.NewAttachment("pic.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	_, err = a.SendAttachment(att)
	require.NoError(t, err)
	gotAtt := waitOutcome(t, b, client.Rendered)
	require.NotNil(t, gotAtt.Item.Attachment)
	assert.Equal(t, att, *gotAtt.Item.Attachment)
}

func TestOversizedFrameIsNotRelayed(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxMessageSize = 1024
	p, addr := startRelay(t, cfg)

	watcher := dialSession(t, addr)

	raw, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	defer raw.Close()

	var welcome types.Envelope
	require.NoError(t, raw.ReadJSON(&welcome))
	require.Equal(t, types.EventWelcome, welcome.Event)
	waitOutcome(t, watcher, client.Rendered)

	big, err := types.NewEnvelope(types.EventChatMessage, strings.Repeat("x", 4096))
	require.NoError(t, err)
	require.NoError(t, raw.WriteJSON(big))

	// The server drops the connection instead of relaying a truncated frame.
	_ = raw.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env types.Envelope
	assert.Error(t, raw.ReadJSON(&env))

	require.Eventually(t, func() bool {
		return p.Service().Status().Clients == 1
	}, 2*time.Second, 20*time.Millisecond)
	assert.Empty(t, watcher.Reconciler().Typers())
	for _, item := range watcher.Reconciler().Timeline() {
		assert.NotEqual(t, strings.Repeat("x", 4096), item.Text)
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	p := NewRelayProvider(config.DefaultConfig(), zerolog.Nop())
	require.NoError(t, p.Activate())
	require.NoError(t, p.Activate())
	assert.True(t, p.IsActive())
	require.NoError(t, p.Deactivate())
	assert.False(t, p.IsActive())
	require.NoError(t, p.Deactivate())
}

func TestServeBeforeActivate(t *testing.T) {
	p := NewRelayProvider(config.DefaultConfig(), zerolog.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	assert.Error(t, p.Serve(context.Background(), ln))
}
