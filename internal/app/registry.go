package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/relay/internal/adapter/metrics"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/correlation"
	"golang.org/x/sync/errgroup"
)

const storeTimeout = 2 * time.Second

// DeliveryReport summarises one local fan-out.
type DeliveryReport struct {
	Delivered int
	Failed    int
}

// Registry is the set of connections accepted by this instance. Every
// registration and removal is mirrored into the shared counter.
//
// The lock only guards the map; sends and counter updates happen outside it.
type Registry struct {
	counter domain.Counter
	metrics *metrics.WebSocketMetrics
	clock   clockwork.Clock

	mu    sync.Mutex
	conns map[string]domain.Connection
}

func NewRegistry(counter domain.Counter, m *metrics.WebSocketMetrics, clock clockwork.Clock) *Registry {
	return &Registry{
		counter: counter,
		metrics: m,
		clock:   clock,
		conns:   make(map[string]domain.Connection),
	}
}

// Connect registers conn and increments the shared counter. A counter failure
// is logged; the connection stays registered.
func (r *Registry) Connect(ctx context.Context, conn domain.Connection) {
	ctx = correlation.WithConnection(ctx, conn.ID())
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	local := len(r.conns)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveConnections.Set(float64(local))
		r.metrics.ConnectionsTotal.Inc()
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	global, err := r.counter.Increment(storeCtx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to increment connection counter", "error", err)
		return
	}
	slog.InfoContext(ctx, "Client connected", "local", local, "global", global)
}

// Disconnect removes conn. Removing an unknown connection is a no-op and does
// not touch the shared counter, so the counter is decremented at most once
// per accepted connection.
func (r *Registry) Disconnect(ctx context.Context, conn domain.Connection) {
	ctx = correlation.WithConnection(ctx, conn.ID())
	r.mu.Lock()
	_, ok := r.conns[conn.ID()]
	delete(r.conns, conn.ID())
	local := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}

	if r.metrics != nil {
		r.metrics.ActiveConnections.Set(float64(local))
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	global, err := r.counter.Decrement(storeCtx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to decrement connection counter", "error", err)
		return
	}
	slog.InfoContext(ctx, "Client disconnected", "local", local, "global", global)
}

// DeliverLocal sends message to every registered connection. A failed send is
// logged and skipped; the connection is not removed here.
func (r *Registry) DeliverLocal(ctx context.Context, message string) DeliveryReport {
	targets := r.snapshot()

	var report DeliveryReport
	for _, conn := range targets {
		if err := conn.Send(ctx, message); err != nil {
			report.Failed++
			slog.WarnContext(correlation.WithConnection(ctx, conn.ID()), "Failed to deliver message", "error", err)
			continue
		}
		report.Delivered++
	}

	if r.metrics != nil {
		r.metrics.Delivered.Add(float64(report.Delivered))
		r.metrics.DeliveryFailures.Add(float64(report.Failed))
	}
	return report
}

func (r *Registry) LocalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes every registered connection with reason, all at once. It
// returns when every Close has finished or ctx ends, whichever comes first;
// closes still pending at that point keep running in the background. The
// connections' own read loops observe the close and call Disconnect.
func (r *Registry) CloseAll(ctx context.Context, reason string) int {
	targets := r.snapshot()
	if len(targets) == 0 {
		return 0
	}

	var group errgroup.Group
	for _, conn := range targets {
		group.Go(func() error {
			if err := conn.Close(reason); err != nil {
				slog.Debug("Close failed", "connection_id", conn.ID(), "error", err)
			}
			return nil
		})
	}

	finished := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		slog.Warn("Gave up waiting for connections to close", "count", len(targets), "error", ctx.Err())
	}
	return len(targets)
}

// WaitEmpty blocks until no connection is registered or ctx ends.
func (r *Registry) WaitEmpty(ctx context.Context, poll time.Duration) error {
	for r.LocalCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(poll):
		}
	}
	return nil
}

func (r *Registry) snapshot() []domain.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
