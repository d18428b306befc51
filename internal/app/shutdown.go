package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/relay/internal/adapter/metrics"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/correlation"
)

// ShutdownCoordinator runs the graceful drain exactly once per process.
//
// The first Trigger moves Running -> Draining, runs the OnDrain hooks, tells
// every client in the fleet to disconnect and then polls the shared counter
// until it reaches zero or the timeout elapses. Later triggers are ignored.
// The outcome is returned to the caller; the coordinator never exits the process.
type ShutdownCoordinator struct {
	counter   domain.Counter
	publisher domain.Publisher
	clock     clockwork.Clock
	timeout   time.Duration
	poll      time.Duration
	metrics   *metrics.ShutdownMetrics

	state atomic.Int32

	hooksMu sync.Mutex
	hooks   []func()

	done   chan struct{}
	result domain.DrainResult
}

func NewShutdownCoordinator(
	counter domain.Counter,
	publisher domain.Publisher,
	clock clockwork.Clock,
	timeout, poll time.Duration,
	m *metrics.ShutdownMetrics,
) *ShutdownCoordinator {
	return &ShutdownCoordinator{
		counter:   counter,
		publisher: publisher,
		clock:     clock,
		timeout:   timeout,
		poll:      poll,
		metrics:   m,
		done:      make(chan struct{}),
	}
}

// OnDrain registers fn to run synchronously as soon as draining starts,
// before the notice is sent.
func (c *ShutdownCoordinator) OnDrain(fn func()) {
	c.hooksMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hooksMu.Unlock()
}

func (c *ShutdownCoordinator) State() domain.ShutdownState {
	return domain.ShutdownState(c.state.Load())
}

// Trigger starts the drain in the background. It reports whether this call
// started it; a false return means a drain is already underway or finished.
func (c *ShutdownCoordinator) Trigger(source string) bool {
	if !c.state.CompareAndSwap(int32(domain.StateRunning), int32(domain.StateDraining)) {
		slog.Info("Shutdown already in progress", "source", source, "state", c.State().String())
		c.countTrigger(source, false)
		return false
	}

	c.countTrigger(source, true)
	go c.drain(source, c.clock.Now())
	return true
}

// Done is closed once the drain has finished and Result is valid.
func (c *ShutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

func (c *ShutdownCoordinator) Result() domain.DrainResult {
	<-c.done
	return c.result
}

// Shutdown triggers the drain if needed and waits for its outcome.
func (c *ShutdownCoordinator) Shutdown(source string) domain.DrainResult {
	c.Trigger(source)
	return c.Result()
}

// drain measures elapsed time from start, the moment the state left Running,
// so slow hooks or a slow notice eat into the timeout.
func (c *ShutdownCoordinator) drain(source string, start time.Time) {
	ctx := correlation.New(context.Background())
	slog.WarnContext(ctx, "Shutdown initiated", "source", source, "timeout", c.timeout)
	c.setStateGauge(domain.StateDraining)

	c.hooksMu.Lock()
	hooks := append([]func(){}, c.hooks...)
	c.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	c.notify(ctx)

	result := c.waitForDrain(ctx, start)
	result.Reason = source

	c.state.Store(int32(domain.StateTerminated))
	c.setStateGauge(domain.StateTerminated)

	if result.Drained {
		slog.InfoContext(ctx, "All clients have disconnected. Shutting down.", "elapsed", result.Elapsed)
	} else {
		slog.WarnContext(ctx, "Client wait timeout. Forcing shutdown.", "remaining", result.Remaining, "elapsed", result.Elapsed)
	}
	if c.metrics != nil {
		c.metrics.DrainOutcomes.WithLabelValues(result.Outcome()).Inc()
		c.metrics.DrainDuration.Observe(result.Elapsed.Seconds())
		if !result.Drained {
			c.metrics.ForcedRemaining.Set(float64(result.Remaining))
		}
	}

	c.result = result
	close(c.done)
}

// notify broadcasts the shutdown notice when clients may be connected.
// An unreadable counter is treated as "maybe", so the notice still goes out.
func (c *ShutdownCoordinator) notify(ctx context.Context) {
	count, err := c.readCount(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Counter unavailable, sending shutdown notice anyway", "error", err)
	} else if count <= 0 {
		slog.InfoContext(ctx, "No clients connected, skipping shutdown notice")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := c.publisher.Publish(pubCtx, domain.ShutdownNotice(c.timeout)); err != nil {
		slog.WarnContext(ctx, "Failed to send shutdown notice", "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.NoticesSent.Inc()
	}
	slog.InfoContext(ctx, "Sent shutdown notification", "global", count)
}

// waitForDrain polls the counter. It returns drained only if zero is observed
// strictly before start+timeout, and returns no later than that plus one poll.
func (c *ShutdownCoordinator) waitForDrain(ctx context.Context, start time.Time) domain.DrainResult {
	var remaining int64 = -1

	for {
		count, err := c.readCount(ctx)
		elapsed := c.clock.Since(start)

		if err == nil {
			remaining = count
			if count <= 0 && elapsed < c.timeout {
				return domain.DrainResult{Drained: true, Elapsed: elapsed}
			}
		}
		if elapsed >= c.timeout {
			return domain.DrainResult{Drained: false, Elapsed: elapsed, Remaining: remaining}
		}

		if err != nil {
			slog.WarnContext(ctx, "Counter read failed while draining", "error", err)
		} else {
			slog.InfoContext(ctx, "Waiting for clients to disconnect", "remaining", count, "elapsed", elapsed)
		}

		wait := c.poll
		if left := c.timeout - elapsed; left < wait {
			wait = left
		}
		<-c.clock.After(wait)
	}
}

// readCount bounds each read by the poll interval so a hung store cannot
// stretch the drain past its deadline by more than one poll.
func (c *ShutdownCoordinator) readCount(ctx context.Context) (int64, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.poll)
	defer cancel()
	return c.counter.Get(readCtx)
}

func (c *ShutdownCoordinator) setStateGauge(s domain.ShutdownState) {
	if c.metrics != nil {
		c.metrics.State.Set(float64(s))
	}
}

func (c *ShutdownCoordinator) countTrigger(source string, accepted bool) {
	if c.metrics == nil {
		return
	}
	label := "false"
	if accepted {
		label = "true"
	}
	c.metrics.Triggers.WithLabelValues(source, label).Inc()
}
