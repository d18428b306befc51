package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/pscheid92/relay/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Counter is the shared connection counter, a plain Redis integer key.
type Counter struct {
	rdb *goredis.Client
	key string
}

var _ domain.Counter = (*Counter)(nil)

func NewCounter(rdb *goredis.Client) *Counter {
	return &Counter{rdb: rdb, key: domain.CounterKey}
}

func (c *Counter) Increment(ctx context.Context) (int64, error) {
	n, err := c.rdb.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", c.key, err)
	}
	return n, nil
}

func (c *Counter) Decrement(ctx context.Context) (int64, error) {
	n, err := c.rdb.Decr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement %s: %w", c.key, err)
	}
	return n, nil
}

// Get returns the current value, or 0 if the key has never been written.
func (c *Counter) Get(ctx context.Context) (int64, error) {
	n, err := c.rdb.Get(ctx, c.key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", c.key, err)
	}
	return n, nil
}

// Set overwrites the counter. Used by the startup reset and by reconciliation.
func (c *Counter) Set(ctx context.Context, value int64) error {
	if err := c.rdb.Set(ctx, c.key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", c.key, err)
	}
	return nil
}

// CompareAndSet writes value only if the counter still holds expected.
// It reports whether the write happened.
func (c *Counter) CompareAndSet(ctx context.Context, expected, value int64) (bool, error) {
	res, err := compareAndSetScript.Run(ctx, c.rdb, []string{c.key}, expected, value).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-set %s: %w", c.key, err)
	}
	return res == 1, nil
}

var compareAndSetScript = goredis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current == tonumber(ARGV[1]) then
	redis.call("SET", KEYS[1], ARGV[2])
	return 1
end
return 0
`)
