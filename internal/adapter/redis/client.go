package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/relay/internal/adapter/metrics"
	"github.com/pscheid92/relay/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

// ClientOptions tunes the hooks installed on the client. Nil metrics disable instrumentation.
type ClientOptions struct {
	Metrics        *metrics.RedisMetrics
	CircuitBreaker bool
}

// NewClient parses redisURL and returns a go-redis client with metrics and
// circuit breaker hooks installed. It does not contact the server.
func NewClient(redisURL string, opts ClientOptions) (*goredis.Client, error) {
	parsed, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(parsed)
	if opts.Metrics != nil {
		rdb.AddHook(NewMetricsHook(opts.Metrics))
	}
	if opts.CircuitBreaker {
		rdb.AddHook(NewCircuitBreakerHook(opts.Metrics))
	}
	return rdb, nil
}

// WaitReady pings Redis with backoff until it answers, attempts are used up or ctx ends.
func WaitReady(ctx context.Context, rdb *goredis.Client, attempts int) error {
	policy := retry.Policy{
		MaxAttempts:    attempts,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Redis not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	err := retry.DoVoid(ctx, policy, retry.Always, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
