package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/contentsync/internal/agent"
	"github.com/goevery/contentsync/internal/content"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type App struct {
	logger   *zap.Logger
	settings Settings
	out      io.Writer
	agent    *agent.Agent
}

func NewApp(logger *zap.Logger, settings Settings, out io.Writer) *App {
	app := &App{
		logger:   logger,
		settings: settings,
		out:      out,
	}

	app.agent = agent.NewAgent(
		logger,
		settings.resolver(),
		settings.backoff(),
		app.render(),
	)

	return app
}

func (s Settings) resolver() agent.Resolver {
	if s.RelayURL != "" {
		return agent.StaticResolver(s.RelayURL)
	}

	return agent.NewHTTPResolver(nil, s.DiscoveryURL, s.WSPath)
}

func (s Settings) backoff() agent.Backoff {
	return agent.Backoff{
		Initial:     time.Duration(s.ReconnectInitialMs) * time.Millisecond,
		Max:         time.Duration(s.ReconnectMaxMs) * time.Millisecond,
		Multiplier:  s.ReconnectMultiplier,
		Jitter:      s.ReconnectJitter,
		MaxAttempts: s.ReconnectAttempts,
	}
}

// render prints the content and the connection state whenever either
// changes.
func (a *App) render() func(agent.Snapshot) {
	var last agent.Snapshot
	first := true

	return func(s agent.Snapshot) {
		if first || s.State != last.State || s.Reason != last.Reason {
			line := s.State.String()
			if s.Reason != "" {
				line += ": " + s.Reason
			}
			fmt.Fprintf(a.out, "# %s\n", line)
		}

		if first || s.Content != last.Content {
			fmt.Fprintf(a.out, "[%s] %s\n", s.Content.Kind, s.Content.Payload)
		}

		last = s
		first = false
	}
}

// submitLines sends every line read from in as a new content value.
func (a *App) submitLines(ctx context.Context, in io.Reader) {
	kind := content.Kind(a.settings.Kind)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		err := a.agent.Submit(kind, scanner.Text())
		if errors.Is(err, agent.ErrNotConnected) {
			a.logger.Warn("edit dropped while disconnected")
			continue
		}
		if err != nil {
			a.logger.Error("failed to submit edit", zap.Error(err))
		}
	}

	if err := scanner.Err(); err != nil {
		a.logger.Error("failed to read input", zap.Error(err))
	}
}

func (a *App) run(ctx context.Context, in io.Reader) error {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	go a.submitLines(notifyCtx, in)

	a.logger.Info("starting sync agent",
		zap.String("agentId", a.agent.Id()))

	err := a.agent.Run(notifyCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
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

	app := NewApp(logger, settings, os.Stdout)

	err = app.run(ctx, os.Stdin)
	if err != nil {
		logger.Error("sync agent stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
