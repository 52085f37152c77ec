package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/votepulse/internal/adapter/eventpublisher"
	"github.com/pscheid92/votepulse/internal/adapter/filestore"
	"github.com/pscheid92/votepulse/internal/adapter/httpserver"
	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/adapter/postgres"
	"github.com/pscheid92/votepulse/internal/adapter/redis"
	"github.com/pscheid92/votepulse/internal/adapter/websocket"
	"github.com/pscheid92/votepulse/internal/app"
	"github.com/pscheid92/votepulse/internal/broadcast"
	"github.com/pscheid92/votepulse/internal/cache"
	"github.com/pscheid92/votepulse/internal/domain"
	"github.com/pscheid92/votepulse/internal/platform/config"
	"github.com/pscheid92/votepulse/internal/platform/logging"
	"github.com/pscheid92/votepulse/internal/platform/retry"
	"github.com/pscheid92/votepulse/internal/ratelimit"
)

const (
	shutdownTimeout = 10 * time.Second
	maxWriteBackoff = time.Second
	pruneLeaseKey   = "votepulse:history-pruner"
)

type appMetrics struct {
	vote      *metrics.VoteMetrics
	cache     *metrics.CacheMetrics
	rateLimit *metrics.RateLimitMetrics
	store     *metrics.StoreMetrics
	broadcast *metrics.BroadcastMetrics
	http      *metrics.HTTPMetrics
	websocket *metrics.WebSocketMetrics
	redis     *metrics.RedisMetrics
}

func newAppMetrics(reg prometheus.Registerer) appMetrics {
	return appMetrics{
		vote:      metrics.NewVoteMetrics(reg),
		cache:     metrics.NewCacheMetrics(reg),
		rateLimit: metrics.NewRateLimitMetrics(reg),
		store:     metrics.NewStoreMetrics(reg),
		broadcast: metrics.NewBroadcastMetrics(reg),
		http:      metrics.NewHTTPMetrics(reg),
		websocket: metrics.NewWebSocketMetrics(reg),
		redis:     metrics.NewRedisMetrics(reg),
	}
}

// voteBackend is the selected store with its catalog and health checks.
type voteBackend struct {
	store   domain.VoteStore
	catalog domain.ProductCatalog
	checks  []httpserver.HealthCheck
	close   func()
	// history is set only for the postgres backend.
	history *postgres.VoteStore
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func writeRetryPolicy(cfg *config.Config, clock clockwork.Clock) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.LedgerWriteAttempts,
		InitialBackoff: cfg.LedgerWriteBackoff,
		MaxBackoff:     maxWriteBackoff,
		Clock:          clock,
	}
}

func setupFileBackend(cfg *config.Config, clock clockwork.Clock, m *metrics.StoreMetrics) voteBackend {
	store, err := filestore.Open(filestore.Options{
		Path:         cfg.LedgerPath,
		HistoryLimit: cfg.LedgerHistoryLimit,
		Retry:        writeRetryPolicy(cfg, clock),
		Clock:        clock,
		Metrics:      m,
	})
	if err != nil {
		slog.Error("Failed to open vote ledger", "path", cfg.LedgerPath, "error", err)
		os.Exit(1)
	}

	catalog := filestore.NewStaticCatalog(cfg.Catalog())
	slog.Info("File vote store ready", "path", cfg.LedgerPath, "products", catalog.Len())

	return voteBackend{
		store:   store,
		catalog: catalog,
		close: func() {
			if err := store.Close(); err != nil {
				slog.Error("Failed to close vote ledger", "error", err)
			}
		},
	}
}

func setupPostgresBackend(ctx context.Context, cfg *config.Config, clock clockwork.Clock, m *metrics.StoreMetrics) voteBackend {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(connectCtx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(connectCtx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	catalog := postgres.NewCatalog(pool)
	if ids := cfg.Catalog(); len(ids) > 0 {
		added, err := catalog.Ensure(connectCtx, ids)
		if err != nil {
			slog.Error("Failed to seed product catalog", "error", err)
			os.Exit(1)
		}
		slog.Info("Product catalog seeded", "requested", len(ids), "added", added)
	}

	store := postgres.NewVoteStore(pool, postgres.VoteStoreOptions{
		HistoryLimit: cfg.LedgerHistoryLimit,
		Retry:        writeRetryPolicy(cfg, clock),
		Clock:        clock,
		Metrics:      m,
	})

	return voteBackend{
		store:   store,
		history: store,
		catalog: catalog,
		checks:  []httpserver.HealthCheck{{Name: "postgres", Check: pool.Ping}},
		close:   pool.Close,
	}
}

func setupHistoryPruner(cfg *config.Config, store *postgres.VoteStore, redisClient *goredis.Client, instanceID string, clock clockwork.Clock, m *metrics.StoreMetrics) *app.HistoryPruner {
	var pruner *app.HistoryPruner
	if redisClient != nil {
		leader := app.NewLeaderElector(redisClient, instanceID, pruneLeaseKey, 3*cfg.HistoryPruneInterval)
		pruner = app.NewHistoryPruner(store, leader, clock, cfg.HistoryPruneInterval, m)
	} else {
		pruner = app.NewHistoryPruner(store, nil, clock, cfg.HistoryPruneInterval, m)
	}
	pruner.Start()
	return pruner
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupNode(cfg *config.Config, catalog domain.ProductCatalog, redisClient *goredis.Client, m *metrics.WebSocketMetrics) *centrifuge.Node {
	node, err := websocket.NewNode(catalog, m, cfg.LogLevel)
	if err != nil {
		slog.Error("Failed to create centrifuge node", "error", err)
		os.Exit(1)
	}

	if redisClient != nil {
		opts := redisClient.Options()
		if err := websocket.SetupRedis(node, opts.Addr, opts.Password, opts.DB); err != nil {
			slog.Error("Failed to set up centrifuge redis broker", "error", err)
			os.Exit(1)
		}
	}

	if err := node.Run(); err != nil {
		slog.Error("Failed to run centrifuge node", "error", err)
		os.Exit(1)
	}
	return node
}

type shutdownDeps struct {
	server      *httpserver.Server
	fanout      *eventpublisher.Fanout
	cancelRelay context.CancelFunc
	hub         *broadcast.Hub
	node        *centrifuge.Node
	stopCaches  []func()
	pruner      *app.HistoryPruner
	closeStore  func()
	redisClient *goredis.Client
}

func runGracefulShutdown(deps shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := deps.server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		deps.fanout.Close()
		deps.cancelRelay()
		deps.hub.Stop()

		if err := deps.node.Shutdown(shutdownCtx); err != nil {
			slog.Error("Centrifuge shutdown error", "error", err)
		}

		for _, stop := range deps.stopCaches {
			stop()
		}
		if deps.pruner != nil {
			deps.pruner.Stop(shutdownCtx)
		}
		deps.closeStore()

		if deps.redisClient != nil {
			_ = deps.redisClient.Close()
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "store", cfg.StoreBackend)

	reg := metrics.NewRegistry()
	m := newAppMetrics(reg)
	ctx := context.Background()

	var backend voteBackend
	if cfg.StoreBackend == config.BackendPostgres {
		backend = setupPostgresBackend(ctx, cfg, clock, m.store)
	} else {
		backend = setupFileBackend(cfg, clock, m.store)
	}
	healthChecks := backend.checks

	var redisClient *goredis.Client
	var limiterStore ratelimit.Store
	if cfg.RedisURL != "" {
		redisClient = setupRedis(ctx, cfg, m.redis)
		limiterStore = redis.NewRateLimitStore(redisClient)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		memStore := ratelimit.NewMemoryStore(clock)
		defer func() { _ = memStore.Close() }()
		limiterStore = memStore
	}

	limiter := ratelimit.NewLimiter(limiterStore, map[domain.RateClass]ratelimit.Rule{
		domain.RateClassVote:   {Limit: cfg.VoteRateLimit, Window: cfg.VoteRateWindow},
		domain.RateClassStatus: {Limit: cfg.StatusRateLimit, Window: cfg.StatusRateWindow},
	}, m.rateLimit)

	statuses := cache.NewMemory[domain.Status](clock, m.cache)
	rankings := cache.NewMemory[[]domain.Aggregate](clock, nil)
	stopCaches := []func(){
		statuses.StartEvictionTimer(cfg.CacheSweepInterval),
		rankings.StartEvictionTimer(cfg.CacheSweepInterval),
	}

	instanceID := uuid.NewString()
	var pruner *app.HistoryPruner
	if backend.history != nil {
		pruner = setupHistoryPruner(cfg, backend.history, redisClient, instanceID, clock, m.store)
	}

	hub := broadcast.NewHub(clock, m.broadcast)
	node := setupNode(cfg, backend.catalog, redisClient, m.websocket)

	targets := []eventpublisher.Target{
		{Name: "hub", Publisher: hub},
		{Name: "websocket", Publisher: websocket.NewPublisher(node, m.websocket)},
	}
	if redisClient != nil {
		targets = append(targets, eventpublisher.Target{Name: "redis", Publisher: redis.NewEventBus(redisClient, instanceID)})
	}
	fanout := eventpublisher.NewFanout(m.broadcast, targets...)

	voteService := app.NewVoteService(app.VoteServiceDeps{
		Store:     backend.store,
		Catalog:   backend.catalog,
		Limiter:   limiter,
		Statuses:  statuses,
		Rankings:  rankings,
		Publisher: fanout,
		Clock:     clock,
		Metrics:   m.vote,
	}, cfg.StatusCacheTTL)

	relayCtx, cancelRelay := context.WithCancel(ctx)
	if redisClient != nil {
		relay := redis.NewVoteRelay(redisClient, instanceID, hub, voteService.InvalidateProduct, m.broadcast)
		go relay.Start(relayCtx)
	}

	wsHandler := centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{
		CheckOrigin: websocket.NewCheckOrigin(cfg.Origins()),
	})

	srv := httpserver.NewServer(cfg, voteService, hub, httpserver.Handlers{
		WebSocket: wsHandler,
		Metrics:   metrics.Handler(reg),
	}, m.http, healthChecks, clock)

	done := runGracefulShutdown(shutdownDeps{
		server:      srv,
		fanout:      fanout,
		cancelRelay: cancelRelay,
		hub:         hub,
		node:        node,
		stopCaches:  stopCaches,
		pruner:      pruner,
		closeStore:  backend.close,
		redisClient: redisClient,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
