package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/relay/internal/adapter/httpserver"
	"github.com/pscheid92/relay/internal/adapter/metrics"
	redisadapter "github.com/pscheid92/relay/internal/adapter/redis"
	wsadapter "github.com/pscheid92/relay/internal/adapter/websocket"
	"github.com/pscheid92/relay/internal/app"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/config"
	"github.com/pscheid92/relay/internal/platform/logging"
	"github.com/pscheid92/relay/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const (
	exitDrained = 0
	exitFailure = 1
	exitForced  = 3

	redisReadyAttempts   = 10
	startupTimeout       = 30 * time.Second
	closeSessionsTimeout = 5 * time.Second
	httpShutdownTimeout  = 10 * time.Second

	shutdownReason = "server shutting down"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	return cfg
}

func setupRedis(cfg *config.Config, m *metrics.RedisMetrics) (*goredis.Client, error) {
	rdb, err := redisadapter.NewClient(cfg.RedisURL, redisadapter.ClientOptions{
		Metrics:        m,
		CircuitBreaker: true,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := redisadapter.WaitReady(ctx, rdb, redisReadyAttempts); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat, cfg.InstanceID)
	build := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", build.String())

	m := metrics.NewSet()

	rdb, err := setupRedis(cfg, m.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		return exitFailure
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("Failed to close Redis client", "error", err)
		}
	}()

	counter := redisadapter.NewCounter(rdb)
	if cfg.ResetCounterOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		err := counter.Set(ctx, 0)
		cancel()
		if err != nil {
			slog.Error("Failed to reset connection counter", "error", err)
			return exitFailure
		}
		slog.Warn("Connection counter reset", "key", domain.CounterKey)
	}

	broadcasts := redisadapter.NewPubSub(rdb, domain.BroadcastChannel, redisadapter.WithPubSubMetrics(m.PubSub), redisadapter.WithClock(clock))
	fleet := redisadapter.NewPubSub(rdb, domain.FleetShutdownChannel, redisadapter.WithPubSubMetrics(m.PubSub), redisadapter.WithClock(clock))
	directory := redisadapter.NewInstanceDirectory(rdb)
	lease := redisadapter.NewLease(rdb, domain.ReconcileLeaderKey, cfg.InstanceID, 3*cfg.ReconcileInterval)

	registry := app.NewRegistry(counter, m.WebSocket, clock)
	fanout := app.NewFanout(broadcasts, registry)
	coordinator := app.NewShutdownCoordinator(counter, broadcasts, clock, cfg.DrainTimeout, cfg.DrainPollInterval, m.Shutdown)

	// The heartbeat ticker has its own group so draining can stop it
	// without touching the subscriptions that still deliver the notice.
	ticker := app.StartTasks(context.Background())
	ticker.Go("heartbeat-ticker", app.NewHeartbeatTicker(counter, broadcasts, clock, cfg.BroadcastInterval).Run)
	coordinator.OnDrain(func() {
		if err := ticker.Stop(); err != nil {
			slog.Warn("Heartbeat ticker stopped with error", "error", err)
		}
	})

	tasks := app.StartTasks(context.Background())
	tasks.Go("fanout", fanout.Run)
	tasks.Go("fleet-listener", app.NewFleetListener(fleet, coordinator).Run)
	tasks.Go("instance-heartbeat", app.NewInstanceHeartbeat(directory, registry, clock, cfg.HeartbeatInterval, cfg.InstanceID, build.Version, m.Coordination).Run)
	tasks.Go("count-reconciler", app.NewCountReconciler(directory, counter, lease, clock, cfg.ReconcileInterval, cfg.InstanceTTL, m.Coordination).Run)

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Registry:  registry,
		Publisher: broadcasts,
		Counter:   counter,
		Lifecycle: coordinator,
		Upgrader:  wsadapter.NewUpgrader(wsadapter.NewOriginPolicy(cfg.AppURL, cfg.AllowedOrigins, !cfg.IsProduction()).Check),
		Clock:     clock,
		HealthChecks: []httpserver.HealthCheck{
			{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
			{Name: "broadcast_subscription", Check: func(context.Context) error {
				if !fanout.Active() {
					return errors.New("broadcast channel not subscribed")
				}
				return nil
			}},
		},
		MetricsHandler:   m.Handler(),
		HTTPMetrics:      m.HTTP,
		WebSocketMetrics: m.WebSocket,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	watchTriggers(coordinator, tasks, serverErr)

	result := coordinator.Result()
	teardown(registry, srv, tasks)

	if !result.Drained {
		slog.Warn("Shutdown forced", "remaining", result.Remaining, "elapsed", result.Elapsed)
		return exitForced
	}
	slog.Info("Shutdown complete", "elapsed", result.Elapsed)
	return exitDrained
}

// watchTriggers starts the drain on SIGINT/SIGTERM, a failed background task
// or a dead HTTP listener. A second signal during the drain kills the process.
func watchTriggers(coordinator *app.ShutdownCoordinator, tasks *app.Tasks, serverErr <-chan error) {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	go func() {
		defer stop()
		select {
		case <-sigCtx.Done():
			slog.Info("Shutdown signal received")
			coordinator.Trigger("signal")
		case <-tasks.Done():
			slog.Error("Background task failed")
			coordinator.Trigger("task_failure")
		case err := <-serverErr:
			if err != nil {
				slog.Error("Server error", "error", err)
			}
			coordinator.Trigger("server_error")
		case <-coordinator.Done():
		}
	}()
}

// teardown runs after the drain: it closes what is still connected, stops the
// HTTP server, then cancels the background tasks. The caller closes Redis last.
func teardown(registry *app.Registry, srv *httpserver.Server, tasks *app.Tasks) {
	waitCtx, cancelWait := context.WithTimeout(context.Background(), closeSessionsTimeout)
	if closed := registry.CloseAll(waitCtx, shutdownReason); closed > 0 {
		slog.Info("Closed remaining connections", "count", closed)
	}
	if err := registry.WaitEmpty(waitCtx, 50*time.Millisecond); err != nil {
		slog.Warn("Connections still open after close", "count", registry.LocalCount())
	}
	cancelWait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	if err := tasks.Stop(); err != nil {
		slog.Error("Background task error", "error", err)
	}
}
