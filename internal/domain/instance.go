package domain

import (
	"context"
	"time"
)

// InstanceInfo is one instance's heartbeat record in the shared store.
type InstanceInfo struct {
	InstanceID string `msgpack:"id"`
	LocalCount int64  `msgpack:"local"`
	Timestamp  int64  `msgpack:"ts"`
	Version    string `msgpack:"ver"`
}

// Stale reports whether the heartbeat is older than ttl at now.
func (i InstanceInfo) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(time.Unix(i.Timestamp, 0)) > ttl
}

// InstanceDirectory stores per-instance heartbeats.
type InstanceDirectory interface {
	Heartbeat(ctx context.Context, info InstanceInfo) error
	Remove(ctx context.Context, instanceIDs ...string) error
	List(ctx context.Context) ([]InstanceInfo, error)
}

// Leader is a lease on a single fleet-wide role.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}
