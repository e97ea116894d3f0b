package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goevery/contentsync/internal/content"
	"github.com/goevery/contentsync/internal/protocol"
	"github.com/goevery/contentsync/internal/relay"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type wsTestServer struct {
	relay *relay.Relay
	url   string
}

func newWSTestServer(t *testing.T, options WebSocketOptions) *wsTestServer {
	t.Helper()

	logger := zap.NewNop()
	r := relay.New(logger)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	wsServer := NewWebSocketServer(logger, &websocket.Upgrader{}, r, options)

	router := mux.NewRouter()
	wsServer.Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	u, _ := url.Parse(server.URL)
	u.Scheme = "ws"
	u.Path = "/ws"

	return &wsTestServer{
		relay: r,
		url:   u.String(),
	}
}

func (s *wsTestServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readSync(t *testing.T, conn *websocket.Conn) protocol.SyncMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(time.Second))

	var message protocol.SyncMessage
	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, protocol.TypeSync, message.Type)

	return message
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))

	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message: %s", data)

	var netErr net.Error
	if assert.ErrorAs(t, err, &netErr) {
		assert.True(t, netErr.Timeout())
	}
}

func sendUpdate(t *testing.T, conn *websocket.Conn, kind content.Kind, payload string) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(protocol.NewUpdate(content.Content{Kind: kind, Payload: payload})))
}

func TestWebSocketServer_LateJoinReceivesDefault(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{})

	conn := s.dial(t)
	message := readSync(t, conn)

	require.NotNil(t, message.Content)
	assert.Equal(t, content.Empty(), *message.Content)
}

func TestWebSocketServer_RootPath(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{SyncFormat: SyncFormatFlat})

	u, err := url.Parse(s.url)
	require.NoError(t, err)
	u.Path = "/"

	legacy, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer legacy.Close()

	current := s.dial(t)

	for _, conn := range []*websocket.Conn{legacy, current} {
		message := readSync(t, conn)
		require.NotNil(t, message.Text)
		assert.Equal(t, "", *message.Text)
	}

	require.NoError(t, legacy.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","text":"from the old page"}`)))

	message := readSync(t, current)
	require.NotNil(t, message.Text)
	assert.Equal(t, "from the old page", *message.Text)
	assertSilent(t, legacy)
}

func TestWebSocketServer_Scenario(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{})

	a, b, c := s.dial(t), s.dial(t), s.dial(t)
	for _, conn := range []*websocket.Conn{a, b, c} {
		readSync(t, conn)
	}

	sendUpdate(t, a, content.KindText, "hello")

	for _, conn := range []*websocket.Conn{b, c} {
		message := readSync(t, conn)
		require.NotNil(t, message.Content)
		assert.Equal(t, content.Content{Kind: content.KindText, Payload: "hello"}, *message.Content)
	}

	d := s.dial(t)
	first := readSync(t, d)
	require.NotNil(t, first.Content)
	assert.Equal(t, "hello", first.Content.Payload)

	assertSilent(t, a)
}

func TestWebSocketServer_MalformedInput(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{})

	sender, observer := s.dial(t), s.dial(t)
	readSync(t, sender)
	readSync(t, observer)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte("invalid-json")))
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","payload":"x"}`)))
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","kind":"text"}`)))
	require.NoError(t, sender.WriteMessage(websocket.BinaryMessage, []byte{0x1, 0x2}))

	state, err := s.relay.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, state.Clients)

	// the connection survived, so a valid update still goes through
	sendUpdate(t, sender, content.KindText, "still here")

	message := readSync(t, observer)
	assert.Equal(t, "still here", message.Content.Payload)
	assert.Equal(t, uint64(1), message.Version)
}

func TestWebSocketServer_LegacyUpdateShapes(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{})

	sender, observer := s.dial(t), s.dial(t)
	readSync(t, sender)
	readSync(t, observer)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","text":"plain"}`)))
	message := readSync(t, observer)
	assert.Equal(t, content.Content{Kind: content.KindText, Payload: "plain"}, *message.Content)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","contentType":"image","content":"data:image/png;base64,AA"}`)))
	message = readSync(t, observer)
	assert.Equal(t, content.Content{Kind: content.KindImage, Payload: "data:image/png;base64,AA"}, *message.Content)
}

func TestWebSocketServer_FlatSyncFormat(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{SyncFormat: SyncFormatFlat})

	sender, observer := s.dial(t), s.dial(t)

	observer.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := observer.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"sync","text":""}`, string(data))
	readSync(t, sender)

	sendUpdate(t, sender, content.KindImage, "data:image/png;base64,AA")

	// non-text content keeps the nested shape
	message := readSync(t, observer)
	require.NotNil(t, message.Content)
	assert.Equal(t, content.KindImage, message.Content.Kind)
}

func TestWebSocketServer_MaxMessageSize(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{MaxMessageSize: 64})

	conn := s.dial(t)
	readSync(t, conn)

	sendUpdate(t, conn, content.KindText, strings.Repeat("x", 128))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig), "unexpected error: %v", err)
}

func TestWebSocketServer_RateLimit(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{RateLimit: 0.001, RateBurst: 1})

	sender, observer := s.dial(t), s.dial(t)
	readSync(t, sender)
	readSync(t, observer)

	sendUpdate(t, sender, content.KindText, "first")
	sendUpdate(t, sender, content.KindText, "second")

	message := readSync(t, observer)
	assert.Equal(t, "first", message.Content.Payload)

	assertSilent(t, observer)

	state, err := s.relay.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", state.Snapshot.Payload)
	assert.Equal(t, 2, state.Clients)
}

func TestWebSocketServer_CloseRemovesConnection(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{})

	conn := s.dial(t)
	readSync(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool {
		state, err := s.relay.State(context.Background())
		return err == nil && state.Clients == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSyncMessageWireShape(t *testing.T) {
	s := newWSTestServer(t, WebSocketOptions{})

	conn := s.dial(t)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"sync"`, string(raw["type"]))
	assert.JSONEq(t, `{"kind":"text","payload":""}`, string(raw["content"]))
}
