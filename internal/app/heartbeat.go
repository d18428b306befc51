package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/relay/internal/adapter/metrics"
	"github.com/pscheid92/relay/internal/domain"
)

type localCounter interface {
	LocalCount() int
}

// InstanceHeartbeat publishes this instance's local connection count to the
// instance directory every interval, and removes the record when it stops.
type InstanceHeartbeat struct {
	dir        domain.InstanceDirectory
	local      localCounter
	clock      clockwork.Clock
	interval   time.Duration
	instanceID string
	version    string
	metrics    *metrics.CoordinationMetrics
}

func NewInstanceHeartbeat(
	dir domain.InstanceDirectory,
	local localCounter,
	clock clockwork.Clock,
	interval time.Duration,
	instanceID, version string,
	m *metrics.CoordinationMetrics,
) *InstanceHeartbeat {
	return &InstanceHeartbeat{
		dir:        dir,
		local:      local,
		clock:      clock,
		interval:   interval,
		instanceID: instanceID,
		version:    version,
		metrics:    m,
	}
}

// Run beats immediately, then every interval, until ctx is cancelled.
func (h *InstanceHeartbeat) Run(ctx context.Context) error {
	h.beat(ctx)

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.unregister()
			return nil
		case <-ticker.Chan():
			h.beat(ctx)
		}
	}
}

func (h *InstanceHeartbeat) beat(ctx context.Context) {
	info := domain.InstanceInfo{
		InstanceID: h.instanceID,
		LocalCount: int64(h.local.LocalCount()),
		Timestamp:  h.clock.Now().Unix(),
		Version:    h.version,
	}

	beatCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := h.dir.Heartbeat(beatCtx, info); err != nil {
		if h.metrics != nil {
			h.metrics.HeartbeatErrors.Inc()
		}
		slog.WarnContext(ctx, "Instance heartbeat failed", "error", err)
	}
}

func (h *InstanceHeartbeat) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.dir.Remove(ctx, h.instanceID); err != nil {
		slog.Warn("Failed to unregister instance", "error", err)
	}
}
