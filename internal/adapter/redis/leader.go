package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/relay/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Lease is a SETNX-based leader lock. Renew and Release only act while this
// instance still owns the key.
type Lease struct {
	rdb    *goredis.Client
	key    string
	holder string
	ttl    time.Duration
}

var _ domain.Leader = (*Lease)(nil)

func NewLease(rdb *goredis.Client, key, holder string, ttl time.Duration) *Lease {
	return &Lease{rdb: rdb, key: key, holder: holder, ttl: ttl}
}

func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// Renew extends the TTL. It returns domain.ErrNotLeader once another holder owns the key.
func (l *Lease) Renew(ctx context.Context) error {
	res, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.holder, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to renew %s: %w", l.key, err)
	}
	if res == 0 {
		return domain.ErrNotLeader
	}
	return nil
}

func (l *Lease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.holder).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("failed to release %s: %w", l.key, err)
	}
	return nil
}

// Holder returns the current owner, or "" if nobody holds the lease.
func (l *Lease) Holder(ctx context.Context) (string, error) {
	holder, err := l.rdb.Get(ctx, l.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return holder, err
}

var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
