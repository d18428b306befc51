package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	redisadapter "github.com/pscheid92/relay/internal/adapter/redis"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/logging"
	"go-simpler.org/env"
)

const publishTimeout = 5 * time.Second

type watcherConfig struct {
	RedisURL  string `env:"REDIS_URL" default:"redis://localhost:6379/0"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

func main() {
	now := flag.Bool("now", false, "Publish the shutdown command immediately instead of waiting for a signal")
	flag.Parse()

	_ = godotenv.Load()
	var cfg watcherConfig
	if err := env.Load(&cfg, nil); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat, "shutdown-watcher")

	rdb, err := redisadapter.NewClient(cfg.RedisURL, redisadapter.ClientOptions{})
	if err != nil {
		slog.Error("Invalid Redis URL", "error", err)
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	if !*now {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		slog.Info("Waiting for SIGINT or SIGTERM to shut down the fleet")
		<-ctx.Done()
		stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	fleet := redisadapter.NewPubSub(rdb, domain.FleetShutdownChannel)
	if err := fleet.Publish(ctx, domain.FleetShutdownCommand); err != nil {
		slog.Error("Failed to publish shutdown command", "channel", domain.FleetShutdownChannel, "error", err)
		os.Exit(1)
	}
	slog.Info("Published shutdown command", "channel", domain.FleetShutdownChannel)
}
