package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/liverelay/internal/config"
	"github.com/soyeahso/liverelay/internal/logging"
	"github.com/soyeahso/liverelay/internal/media"
	"github.com/soyeahso/liverelay/internal/protocol"
	"github.com/soyeahso/liverelay/internal/session"
)

// echoAdapter is a stub upstream that acknowledges immediately and
// echoes every input chunk back as a text output chunk followed by a
// turn boundary.
type echoAdapter struct {
	events chan media.Event
}

func newEchoAdapter() *echoAdapter {
	return &echoAdapter{events: make(chan media.Event, 16)}
}

func (a *echoAdapter) Open(context.Context) error { return nil }

func (a *echoAdapter) SendChunk(c media.Chunk) error {
	a.events <- media.Event{Kind: media.EventChunk, Chunk: &media.Chunk{Modality: media.ModalityText, Data: "echo:" + c.Data}}
	a.events <- media.Event{Kind: media.EventTurnComplete}
	return nil
}

func (a *echoAdapter) SendToolResponse(media.ToolCallResponse) error { return nil }
func (a *echoAdapter) InjectContext([]string, bool) error            { return nil }
func (a *echoAdapter) Receive() <-chan media.Event                   { return a.events }
func (a *echoAdapter) Close() error                                  { return nil }

type nopInvoker struct{}

func (nopInvoker) Invoke(context.Context, string, json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func startServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	log := logging.New(nil, "silent")
	registry := session.NewRegistry(cfg.Session.MaxConcurrent, log)
	factory := func(id string, client session.ClientConn, onClosed func(string)) *session.Manager {
		return session.New(session.Config{
			ID:           id,
			IdleTimeout:  time.Minute,
			DrainTimeout: time.Second,
		}, session.Deps{
			Client:   client,
			Upstream: newEchoAdapter(),
			Tools:    nopInvoker{},
			Log:      log,
			OnClosed: onClosed,
		})
	}
	srv := New(cfg, registry, factory, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Start(ctx)

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	return srv
}

func testGatewayConfig(maxSessions int) config.Config {
	cfg := config.Defaults()
	cfg.Gateway.Port = 0
	cfg.Gateway.Auth = config.GatewayAuth{Mode: "token", Token: "secret-token"}
	cfg.Session.MaxConcurrent = maxSessions
	return cfg
}

func dialWS(t *testing.T, srv *Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := fmt.Sprintf("ws://%s/ws", srv.Addr())
	if token != "" {
		u += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(u, nil)
}

func readFrame(t *testing.T, ws *websocket.Conn) protocol.ServerFrame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f protocol.ServerFrame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestHealthEndpoint(t *testing.T) {
	srv := startServer(t, testGatewayConfig(4))

	resp, err := http.Get(fmt.Sprintf("http://%s/health", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestSessionsEndpointRequiresAuth(t *testing.T) {
	srv := startServer(t, testGatewayConfig(4))

	resp, err := http.Get(fmt.Sprintf("http://%s/sessions", srv.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/sessions", srv.Addr()), nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	srv := startServer(t, testGatewayConfig(4))

	_, resp, err := dialWS(t, srv, "wrong")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketSessionFlow(t *testing.T) {
	srv := startServer(t, testGatewayConfig(4))

	ws, _, err := dialWS(t, srv, "secret-token")
	require.NoError(t, err)
	defer ws.Close()

	ready := readFrame(t, ws)
	assert.Equal(t, protocol.TypeReady, ready.Type)
	assert.NotEmpty(t, ready.SessionID)

	require.NoError(t, ws.WriteJSON(protocol.ClientFrame{
		Type: protocol.TypeTextInput,
		Data: "hello",
		Seq:  1,
	}))

	out := readFrame(t, ws)
	assert.Equal(t, protocol.TypeTextOutput, out.Type)
	assert.Equal(t, "echo:hello", out.Data)

	boundary := readFrame(t, ws)
	assert.Equal(t, protocol.TypeTurnComplete, boundary.Type)

	// Clean disconnect yields a terminal event before close.
	require.NoError(t, ws.WriteJSON(protocol.ClientFrame{Type: protocol.TypeDisconnect}))
	terminal := readFrame(t, ws)
	assert.Equal(t, protocol.TypeError, terminal.Type)
	require.NotNil(t, terminal.Error)
	assert.Equal(t, protocol.CodeSessionClosed, terminal.Error.Code)
}

func TestMalformedFrameKeepsSessionAlive(t *testing.T) {
	srv := startServer(t, testGatewayConfig(4))

	ws, _, err := dialWS(t, srv, "secret-token")
	require.NoError(t, err)
	defer ws.Close()
	readFrame(t, ws) // ready

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	errFrame := readFrame(t, ws)
	assert.Equal(t, protocol.TypeError, errFrame.Type)
	require.NotNil(t, errFrame.Error)
	assert.Equal(t, protocol.CodeProtocolError, errFrame.Error.Code)
	assert.True(t, errFrame.Error.Recoverable)

	// The session still relays after the rejected frame.
	require.NoError(t, ws.WriteJSON(protocol.ClientFrame{Type: protocol.TypeTextInput, Data: "still here", Seq: 1}))
	out := readFrame(t, ws)
	assert.Equal(t, "echo:still here", out.Data)
}

func TestSessionLimit(t *testing.T) {
	srv := startServer(t, testGatewayConfig(1))

	first, _, err := dialWS(t, srv, "secret-token")
	require.NoError(t, err)
	defer first.Close()
	readFrame(t, first) // ready

	second, _, err := dialWS(t, srv, "secret-token")
	require.NoError(t, err)
	defer second.Close()

	rejected := readFrame(t, second)
	assert.Equal(t, protocol.TypeError, rejected.Type)
	require.NotNil(t, rejected.Error)
	assert.Equal(t, protocol.CodeSessionLimit, rejected.Error.Code)
}

func TestResolveBindAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:18890", resolveBindAddr(config.GatewayConfig{Bind: "loopback", Port: 18890}))
	assert.Equal(t, "0.0.0.0:18890", resolveBindAddr(config.GatewayConfig{Bind: "lan", Port: 18890}))
	assert.Equal(t, "10.0.0.5:9000", resolveBindAddr(config.GatewayConfig{Bind: "custom", CustomBindHost: "10.0.0.5", Port: 9000}))
	assert.Equal(t, "127.0.0.1:7", resolveBindAddr(config.GatewayConfig{Port: 7}))
}
