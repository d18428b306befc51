package app

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/correlation"
)

// Fanout forwards every message on the broadcast channel to the local registry.
// Lifecycle events only change the reported subscription state.
type Fanout struct {
	subscriber domain.Subscriber
	registry   *Registry
	active     atomic.Bool
}

func NewFanout(subscriber domain.Subscriber, registry *Registry) *Fanout {
	return &Fanout{subscriber: subscriber, registry: registry}
}

// Run blocks until ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) error {
	for ev := range f.subscriber.Subscribe(ctx) {
		switch ev.Kind {
		case domain.EventMessage:
			msgCtx := correlation.New(ctx)
			report := f.registry.DeliverLocal(msgCtx, ev.Payload)
			slog.DebugContext(msgCtx, "Broadcast delivered",
				"delivered", report.Delivered,
				"failed", report.Failed)
		case domain.EventSubscribed:
			f.active.Store(true)
		case domain.EventUnsubscribed:
			f.active.Store(false)
		case domain.EventError:
			slog.WarnContext(ctx, "Broadcast subscription error", "channel", ev.Channel, "error", ev.Err)
		}
	}
	f.active.Store(false)
	return nil
}

// Active reports whether the broadcast subscription is currently confirmed.
func (f *Fanout) Active() bool {
	return f.active.Load()
}
