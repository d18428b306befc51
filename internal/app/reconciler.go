package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/relay/internal/adapter/metrics"
	"github.com/pscheid92/relay/internal/domain"
)

// ReconcilableCounter can be overwritten atomically against an expected value.
type ReconcilableCounter interface {
	domain.Counter
	CompareAndSet(ctx context.Context, expected, value int64) (bool, error)
}

type drift struct {
	observed int64
	sum      int64
}

// CountReconciler repairs the shared counter after instances die without
// decrementing it. Only the lease holder acts. It sums the local counts of
// instances with a fresh heartbeat, prunes stale records, and overwrites the
// counter when the same disagreement is seen on two consecutive passes.
type CountReconciler struct {
	dir      domain.InstanceDirectory
	counter  ReconcilableCounter
	leader   domain.Leader
	clock    clockwork.Clock
	interval time.Duration
	ttl      time.Duration
	metrics  *metrics.CoordinationMetrics

	leading bool
	pending *drift
}

func NewCountReconciler(
	dir domain.InstanceDirectory,
	counter ReconcilableCounter,
	leader domain.Leader,
	clock clockwork.Clock,
	interval, ttl time.Duration,
	m *metrics.CoordinationMetrics,
) *CountReconciler {
	return &CountReconciler{
		dir:      dir,
		counter:  counter,
		leader:   leader,
		clock:    clock,
		interval: interval,
		ttl:      ttl,
		metrics:  m,
	}
}

// Run blocks until ctx is cancelled, then gives up the lease if held.
func (r *CountReconciler) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.release()
			return nil
		case <-ticker.Chan():
			r.pass(ctx)
		}
	}
}

func (r *CountReconciler) pass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if !r.ensureLeadership(passCtx) {
		return
	}

	infos, err := r.dir.List(passCtx)
	if err != nil {
		slog.WarnContext(ctx, "Reconcile: listing instances failed", "error", err)
		return
	}

	now := r.clock.Now()
	var sum int64
	var live int
	var stale []string
	for _, info := range infos {
		if info.Stale(now, r.ttl) {
			stale = append(stale, info.InstanceID)
			continue
		}
		live++
		sum += info.LocalCount
	}

	if len(stale) > 0 {
		if err := r.dir.Remove(passCtx, stale...); err != nil {
			slog.WarnContext(ctx, "Reconcile: pruning stale instances failed", "error", err)
		} else {
			slog.InfoContext(ctx, "Reconcile: pruned stale instances", "instances", stale)
			if r.metrics != nil {
				r.metrics.PrunedInstances.Add(float64(len(stale)))
			}
		}
	}

	observed, err := r.counter.Get(passCtx)
	if err != nil {
		slog.WarnContext(ctx, "Reconcile: counter read failed", "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.LiveInstances.Set(float64(live))
		r.metrics.GlobalConnections.Set(float64(observed))
	}

	if observed == sum {
		r.pending = nil
		return
	}

	if r.metrics != nil {
		r.metrics.DriftDetected.Inc()
	}
	current := &drift{observed: observed, sum: sum}
	if r.pending == nil || *r.pending != *current {
		r.pending = current
		slog.InfoContext(ctx, "Reconcile: counter disagrees with heartbeats, rechecking next pass",
			"counter", observed, "heartbeat_sum", sum)
		return
	}

	ok, err := r.counter.CompareAndSet(passCtx, observed, sum)
	if err != nil {
		slog.WarnContext(ctx, "Reconcile: counter correction failed", "error", err)
		return
	}
	r.pending = nil
	if !ok {
		return
	}
	if r.metrics != nil {
		r.metrics.DriftCorrections.Inc()
	}
	slog.WarnContext(ctx, "Reconcile: corrected counter drift", "from", observed, "to", sum, "live_instances", live)
}

func (r *CountReconciler) ensureLeadership(ctx context.Context) bool {
	if r.leading {
		err := r.leader.Renew(ctx)
		if err == nil {
			return true
		}
		if !errors.Is(err, domain.ErrNotLeader) {
			slog.WarnContext(ctx, "Reconcile: lease renewal failed", "error", err)
			return false
		}
		slog.InfoContext(ctx, "Reconcile: leadership lost")
		r.setLeading(false)
	}

	ok, err := r.leader.TryAcquire(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Reconcile: lease acquisition failed", "error", err)
		return false
	}
	if ok {
		slog.InfoContext(ctx, "Reconcile: acquired leadership")
		r.setLeading(true)
	}
	return ok
}

func (r *CountReconciler) setLeading(leading bool) {
	r.leading = leading
	r.pending = nil
	if r.metrics == nil {
		return
	}
	v := 0.0
	if leading {
		v = 1
	}
	r.metrics.IsLeader.Set(v)
}

func (r *CountReconciler) release() {
	if !r.leading {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.leader.Release(ctx); err != nil {
		slog.Warn("Reconcile: releasing lease failed", "error", err)
	}
	r.setLeading(false)
}
