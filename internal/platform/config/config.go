package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL"`
	RedisURL  string `env:"REDIS_URL" default:"redis://localhost:6379/0"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	InstanceID string `env:"INSTANCE_ID"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	DrainTimeout      time.Duration `env:"DRAIN_TIMEOUT" default:"10s"`
	DrainPollInterval time.Duration `env:"DRAIN_POLL_INTERVAL" default:"1s"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" default:"10s"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"5s"`
	InstanceTTL       time.Duration `env:"INSTANCE_TTL" default:"30s"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" default:"30s"`

	ResetCounterOnStart bool `env:"RESET_COUNTER_ON_START" default:"false"`

	PublishRateLimit float64 `env:"PUBLISH_RATE_LIMIT" default:"5"`
	PublishRateBurst int     `env:"PUBLISH_RATE_BURST" default:"10"`

	MaxConnections      int64   `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectRateLimit    float64 `env:"CONNECT_RATE_LIMIT" default:"10"`
	ConnectRateBurst    int     `env:"CONNECT_RATE_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if _, err := redis.ParseURL(cfg.RedisURL); err != nil {
		return fmt.Errorf("REDIS_URL is invalid: %w", err)
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"DRAIN_TIMEOUT", cfg.DrainTimeout},
		{"DRAIN_POLL_INTERVAL", cfg.DrainPollInterval},
		{"BROADCAST_INTERVAL", cfg.BroadcastInterval},
		{"HEARTBEAT_INTERVAL", cfg.HeartbeatInterval},
		{"INSTANCE_TTL", cfg.InstanceTTL},
		{"RECONCILE_INTERVAL", cfg.ReconcileInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.value)
		}
	}

	if cfg.DrainPollInterval > cfg.DrainTimeout {
		return fmt.Errorf("DRAIN_POLL_INTERVAL (%s) must not exceed DRAIN_TIMEOUT (%s)", cfg.DrainPollInterval, cfg.DrainTimeout)
	}
	if cfg.InstanceTTL <= cfg.HeartbeatInterval {
		return fmt.Errorf("INSTANCE_TTL (%s) must be greater than HEARTBEAT_INTERVAL (%s)", cfg.InstanceTTL, cfg.HeartbeatInterval)
	}

	if cfg.PublishRateLimit <= 0 {
		return errors.New("PUBLISH_RATE_LIMIT must be positive")
	}
	if cfg.PublishRateBurst < 1 {
		return errors.New("PUBLISH_RATE_BURST must be at least 1")
	}
	if cfg.MaxConnections < 1 || cfg.MaxConnectionsPerIP < 1 {
		return errors.New("MAX_CONNECTIONS and MAX_CONNECTIONS_PER_IP must be at least 1")
	}
	if cfg.ConnectRateLimit <= 0 || cfg.ConnectRateBurst < 1 {
		return errors.New("CONNECT_RATE_LIMIT must be positive and CONNECT_RATE_BURST at least 1")
	}

	return nil
}
