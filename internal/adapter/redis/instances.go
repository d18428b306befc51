package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pscheid92/relay/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// InstanceDirectory keeps one msgpack-encoded heartbeat per instance in a hash.
type InstanceDirectory struct {
	rdb *goredis.Client
	key string
}

var _ domain.InstanceDirectory = (*InstanceDirectory)(nil)

func NewInstanceDirectory(rdb *goredis.Client) *InstanceDirectory {
	return &InstanceDirectory{rdb: rdb, key: domain.InstancesKey}
}

func (d *InstanceDirectory) Heartbeat(ctx context.Context, info domain.InstanceInfo) error {
	data, err := msgpack.Marshal(&info)
	if err != nil {
		return fmt.Errorf("failed to encode heartbeat: %w", err)
	}
	if err := d.rdb.HSet(ctx, d.key, info.InstanceID, data).Err(); err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}
	return nil
}

func (d *InstanceDirectory) Remove(ctx context.Context, instanceIDs ...string) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	if err := d.rdb.HDel(ctx, d.key, instanceIDs...).Err(); err != nil {
		return fmt.Errorf("failed to remove instances: %w", err)
	}
	return nil
}

// List returns every record, fresh or stale. Undecodable entries are skipped.
func (d *InstanceDirectory) List(ctx context.Context) ([]domain.InstanceInfo, error) {
	raw, err := d.rdb.HGetAll(ctx, d.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	infos := make([]domain.InstanceInfo, 0, len(raw))
	for id, data := range raw {
		var info domain.InstanceInfo
		if err := msgpack.Unmarshal([]byte(data), &info); err != nil {
			slog.Warn("Skipping undecodable instance record", "instance_id", id, "error", err)
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}
