package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/correlation"
)

// HeartbeatTicker publishes a status message on the broadcast channel every
// interval while any client is connected anywhere in the fleet.
type HeartbeatTicker struct {
	counter   domain.Counter
	publisher domain.Publisher
	clock     clockwork.Clock
	interval  time.Duration
}

func NewHeartbeatTicker(counter domain.Counter, publisher domain.Publisher, clock clockwork.Clock, interval time.Duration) *HeartbeatTicker {
	return &HeartbeatTicker{
		counter:   counter,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
	}
}

// Run blocks until ctx is cancelled. A tick that is already publishing
// finishes before Run returns.
func (t *HeartbeatTicker) Run(ctx context.Context) error {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			t.tick(ctx)
		}
	}
}

func (t *HeartbeatTicker) tick(ctx context.Context) {
	tickCtx := correlation.New(ctx)

	count, err := t.counter.Get(tickCtx)
	if err != nil {
		slog.WarnContext(tickCtx, "Ticker: counter read failed", "error", err)
		return
	}
	if count <= 0 {
		return
	}

	msg := domain.HeartbeatMessage(t.clock.Now())
	if err := t.publisher.Publish(tickCtx, msg); err != nil {
		slog.WarnContext(tickCtx, "Ticker: publish failed", "error", err)
		return
	}
	slog.DebugContext(tickCtx, "Ticker: heartbeat published", "global", count)
}
