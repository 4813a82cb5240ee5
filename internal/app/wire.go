package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/betslip/internal/cache/memory"
	"github.com/alanyoungcy/betslip/internal/cache/redis"
	"github.com/alanyoungcy/betslip/internal/config"
	"github.com/alanyoungcy/betslip/internal/domain"
	"github.com/alanyoungcy/betslip/internal/matchinfo"
	"github.com/alanyoungcy/betslip/internal/metrics"
	"github.com/alanyoungcy/betslip/internal/persist"
	"github.com/alanyoungcy/betslip/internal/platform/slipapi"
	"github.com/alanyoungcy/betslip/internal/reconcile"
	"github.com/alanyoungcy/betslip/internal/server/handler"
	"github.com/alanyoungcy/betslip/internal/service"
	"github.com/alanyoungcy/betslip/internal/share"
	"github.com/alanyoungcy/betslip/internal/slip"
)

// Dependencies bundles every component the run loops need. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Storage
	KV        domain.KVStore
	SignalBus domain.SignalBus

	// Backend
	Backend *slipapi.Client

	// Slip session
	Store     *slip.Store
	MatchInfo *matchinfo.Cache
	Engine    *reconcile.Engine
	Sharer    *share.Client
	Service   *service.SlipService

	Metrics *metrics.Metrics

	// HealthChecks ping external storage for the health endpoint.
	HealthChecks []handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. The persisted slip is restored
// before the bridge starts mirroring changes.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Storage and signal bus ---
	switch strings.ToLower(cfg.Storage.Backend) {
	case "redis":
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.HealthChecks = append(deps.HealthChecks, handler.Check{Name: "redis", Ping: redisClient.Ping})
		deps.KV = redis.NewKVStore(redisClient, cfg.Storage.Session)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Storage.Session)
	default:
		deps.KV = memory.NewKVStore()
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- Backend client ---
	deps.Backend = slipapi.NewClient(cfg.Backend.BaseURL,
		slipapi.WithTimeout(cfg.Backend.Timeout.Duration),
		slipapi.WithRateLimit(cfg.Backend.RateLimitRPS, cfg.Backend.RateLimitBurst),
	)

	deps.Metrics = metrics.New()

	// --- Slip store, restored from storage ---
	deps.Store = slip.NewStore()
	bridge := persist.NewBridge(deps.KV, persist.Keys{
		Selections: cfg.Storage.SelectionsKey,
		ShareCode:  cfg.Storage.ShareCodeKey,
	}, logger)
	selections, code := bridge.Restore(ctx)
	if n := deps.Store.Load(selections, code); n > 0 {
		logger.InfoContext(ctx, "wire: restored slip",
			slog.Int("selections", n),
			slog.Bool("has_share_code", code != ""),
		)
	}
	closers = append(closers, bridge.Attach(deps.Store))
	closers = append(closers, deps.Store.Subscribe(deps.Metrics.ObserveSlip))

	// --- Match info, validation and sharing ---
	deps.MatchInfo = matchinfo.New(deps.Backend, matchinfo.Options{
		Size:           cfg.MatchInfo.CacheSize,
		TTL:            cfg.MatchInfo.TTL.Duration,
		MaxConcurrency: cfg.MatchInfo.MaxConcurrency,
	}, logger, deps.Metrics)
	closers = append(closers, deps.MatchInfo.Close)

	deps.Engine = reconcile.New(deps.Store, deps.Backend, deps.MatchInfo, logger, deps.Metrics)
	closers = append(closers, deps.Engine.Close)

	deps.Sharer = share.NewClient(deps.Backend, deps.Store, logger, deps.Metrics)

	deps.Service = service.NewSlipService(
		deps.Store,
		deps.Engine,
		deps.Sharer,
		deps.MatchInfo,
		deps.Backend,
		deps.SignalBus,
		logger,
	)
	closers = append(closers, deps.Service.Close)

	return deps, cleanup, nil
}
