// Package app provides the top-level lifecycle of the bet slip service. It
// wires storage, the backend client and the slip session together and runs
// the HTTP server, the live fixture feed and the match info refresh until the
// context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/betslip/internal/config"
	"github.com/alanyoungcy/betslip/internal/feed"
	"github.com/alanyoungcy/betslip/internal/schedule"
	"github.com/alanyoungcy/betslip/internal/server"
	"github.com/alanyoungcy/betslip/internal/server/handler"
	"github.com/alanyoungcy/betslip/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the run loops and blocks until the
// context is cancelled or one of the loops fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("storage", a.cfg.Storage.Backend),
		slog.String("session", a.cfg.Storage.Session),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Service.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	if a.cfg.Feed.Enabled {
		fixtureFeed := feed.NewFixtureFeed(a.cfg.Feed.WsURL, a.cfg.Feed.ReconnectDelay.Duration, a.logger)
		fixtureFeed.OnAny(deps.Service.HandleFixtureEvent)
		g.Go(func() error {
			return fixtureFeed.Run(ctx)
		})
	}

	refresh := schedule.Every(ctx, a.cfg.MatchInfo.RefreshInterval.Duration, deps.Service.RefreshMatchInfo)
	g.Go(func() error {
		<-ctx.Done()
		refresh.Stop()
		return nil
	})

	return g.Wait()
}

// startServer registers the HTTP server, the WebSocket hub and the server's
// shutdown on g.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, func() any { return deps.Service.Snapshot() }, a.logger, ws.Config{
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.HealthChecks...),
		Slip:     handler.NewSlipHandler(deps.Service, a.logger),
		Fixtures: handler.NewFixtureHandler(deps.Service, a.logger),
	}
	if a.cfg.Metrics.Enabled {
		handlers.Metrics = deps.Metrics.Handler()
	}

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		RateLimitRPS:   a.cfg.Server.RateLimitRPS,
		RateLimitBurst: a.cfg.Server.RateLimitBurst,
		MetricsPath:    a.cfg.Metrics.Path,
	}, handlers, hub, deps.Metrics, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
