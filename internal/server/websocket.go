package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goevery/contentsync/internal/protocol"
	"github.com/goevery/contentsync/internal/relay"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type SyncFormat string

const (
	SyncFormatNested SyncFormat = "nested"
	SyncFormatFlat   SyncFormat = "flat"
)

type WebSocketOptions struct {
	// MaxMessageSize caps inbound frames in bytes. Zero disables the cap.
	MaxMessageSize int64
	// RateLimit is the number of inbound messages per second a single
	// connection may send. Zero disables limiting.
	RateLimit      float64
	RateBurst      int
	SendBufferSize int
	// SyncFormat selects the shape of text syncs. Flat sends
	// {"type":"sync","text":...} for text content.
	SyncFormat SyncFormat
}

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	relay    relay.Broadcaster
	options  WebSocketOptions
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	broadcaster relay.Broadcaster,
	options WebSocketOptions,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		broadcaster,
		options,
	}
}

// Register serves websockets on /ws and on the root path, where the
// original browser clients connect.
func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/ws", s.handle).Methods("GET")
	router.HandleFunc("/", s.handle).Methods("GET")
}

func (s *WebSocketServer) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connection := relay.NewConnection(s.options.SendBufferSize)
	logger := s.logger.With(
		zap.String("connectionId", connection.Id),
		zap.String("clientIp", r.RemoteAddr))

	err = s.relay.Join(r.Context(), connection)
	if err != nil {
		logger.Error("failed to join relay", zap.Error(err))
		ws.Close()
		return
	}

	logger.Info("websocket connection established")

	go s.writePump(ws, connection, logger)
	s.readPump(ws, connection, logger)

	err = s.relay.Leave(context.Background(), connection.Id)
	if err != nil && !errors.Is(err, relay.ErrStopped) {
		logger.Error("failed to leave relay", zap.Error(err))
	}

	logger.Info("websocket connection closed")
}

func (s *WebSocketServer) readPump(ws *websocket.Conn, connection *relay.Connection, logger *zap.Logger) {
	defer ws.Close()

	if s.options.MaxMessageSize > 0 {
		ws.SetReadLimit(s.options.MaxMessageSize)
	}

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	var limiter *rate.Limiter
	if s.options.RateLimit > 0 {
		burst := s.options.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.options.RateLimit), burst)
	}

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			logger.Warn("discarding non-text message", zap.Int("messageType", messageType))
			continue
		}

		if limiter != nil && !limiter.Allow() {
			logger.Warn("discarding message over rate limit")
			continue
		}

		c, err := protocol.DecodeUpdate(data)
		if err != nil {
			logger.Warn("discarding malformed message",
				zap.Error(err),
				zap.Int("size", len(data)))
			continue
		}

		_, err = s.relay.Update(context.Background(), connection.Id, c)
		if errors.Is(err, relay.ErrStopped) {
			return
		}
		if err != nil {
			logger.Error("failed to apply update", zap.Error(err))
		}
	}
}

func (s *WebSocketServer) writePump(ws *websocket.Conn, connection *relay.Connection, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-connection.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := ws.WriteJSON(s.format(message)); err != nil {
				logger.Warn("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketServer) format(message protocol.SyncMessage) protocol.SyncMessage {
	if s.options.SyncFormat != SyncFormatFlat || message.Content == nil || !message.Content.Kind.IsText() {
		return message
	}

	return protocol.NewTextSync(message.Content.Payload)
}
