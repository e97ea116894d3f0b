package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/contentsync/internal/relay"
	"github.com/goevery/contentsync/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	relay           *relay.Relay
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(logger *zap.Logger, settings Settings) *App {
	originChecker := server.NewOriginChecker(splitList(settings.AllowedOrigins))
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	contentRelay := relay.New(logger)

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		contentRelay,
		server.WebSocketOptions{
			MaxMessageSize: settings.MaxMessageSize,
			RateLimit:      settings.RateLimit,
			RateBurst:      settings.RateBurst,
			SendBufferSize: settings.SendBufferSize,
			SyncFormat:     server.SyncFormat(settings.SyncFormat),
		},
	)
	restServer := server.NewRESTServer(
		logger,
		contentRelay,
		server.ServerInfo{
			WSPort: settings.Port,
			Name:   settings.serverName(),
		},
	)

	return &App{
		logger,
		settings,
		contentRelay,
		websocketServer,
		restServer,
	}
}

func (a *App) run(ctx context.Context) {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	relayCtx, relayCtxCancel := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		a.relay.Run(relayCtx)
		close(relayDone)
	}()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter()
	subrouter := router
	if a.settings.BasePath != "" {
		subrouter = router.PathPrefix(a.settings.BasePath).Subrouter()
	}

	a.websocketServer.Register(subrouter)
	a.restServer.Register(subrouter)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("name", a.settings.serverName()),
		zap.String("address", address))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-notifyCtx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http server shutdown failed",
			zap.Error(err))
	}

	// Shutdown does not wait for hijacked connections, stopping the relay
	// closes them.
	relayCtxCancel()
	<-relayDone

	a.logger.Info("http server stopped")
}

func (s Settings) serverName() string {
	if s.ServerName != "" {
		return s.ServerName
	}

	return fmt.Sprintf("Dev-Server-%d", s.Port)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

func main() {
	ctx := context.Background()

	bootstrapLogger, _ := zap.NewDevelopment()

	err := godotenv.Load()
	if err != nil {
		bootstrapLogger.Debug("no .env file loaded", zap.Error(err))
	}

	var settings Settings
	_, err = env.UnmarshalFromEnviron(&settings)
	if err != nil {
		bootstrapLogger.Fatal("failed to parse settings from environment", zap.Error(err))
	}

	logger, err := buildZapLogger(settings.LogEncoding)
	if err != nil {
		bootstrapLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	app := NewApp(logger, settings)
	app.run(ctx)
}
