package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/relay/internal/adapter/metrics"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	clock   *clockwork.FakeClock
	dir     *fakeDirectory
	counter *fakeCounter
	leader  *fakeLeader
	metrics *metrics.CoordinationMetrics
	r       *CountReconciler
}

func newReconcilerFixture() *reconcilerFixture {
	f := &reconcilerFixture{
		clock:   clockwork.NewFakeClock(),
		dir:     newFakeDirectory(),
		counter: &fakeCounter{},
		leader:  &fakeLeader{grant: true},
		metrics: metrics.NewCoordinationMetrics(metrics.NewRegistry()),
	}
	f.r = NewCountReconciler(f.dir, f.counter, f.leader, f.clock, 30*time.Second, 30*time.Second, f.metrics)
	return f
}

func (f *reconcilerFixture) beat(id string, local int64, age time.Duration) {
	_ = f.dir.Heartbeat(context.Background(), domain.InstanceInfo{
		InstanceID: id,
		LocalCount: local,
		Timestamp:  f.clock.Now().Add(-age).Unix(),
	})
}

func TestCountReconciler_NoDriftNoWrite(t *testing.T) {
	f := newReconcilerFixture()
	f.beat("a", 2, 0)
	f.beat("b", 1, 0)
	f.counter.set(3)

	f.r.pass(context.Background())
	f.r.pass(context.Background())

	assert.Equal(t, int64(3), f.counter.load())
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.DriftDetected), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.IsLeader), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.LiveInstances), 0)
}

func TestCountReconciler_CorrectsPersistentDrift(t *testing.T) {
	f := newReconcilerFixture()
	f.beat("a", 2, 0)
	f.beat("dead", 5, 2*time.Minute)
	f.counter.set(7)

	f.r.pass(context.Background())
	assert.Equal(t, int64(7), f.counter.load(), "first sighting only records the drift")
	_, ok := f.dir.get("dead")
	assert.False(t, ok, "stale instance pruned")

	f.r.pass(context.Background())
	assert.Equal(t, int64(2), f.counter.load())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.DriftCorrections), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PrunedInstances), 0)
}

func TestCountReconciler_ChangingDriftIsNotCorrected(t *testing.T) {
	f := newReconcilerFixture()
	f.beat("a", 2, 0)
	f.counter.set(3)

	f.r.pass(context.Background())
	f.counter.set(4)
	f.r.pass(context.Background())

	assert.Equal(t, int64(4), f.counter.load())
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.DriftCorrections), 0)
}

func TestCountReconciler_ResolvedDriftResetsConfirmation(t *testing.T) {
	f := newReconcilerFixture()
	f.beat("a", 2, 0)
	f.counter.set(3)

	f.r.pass(context.Background())
	f.counter.set(2)
	f.r.pass(context.Background())
	f.counter.set(3)
	f.r.pass(context.Background())

	assert.Equal(t, int64(3), f.counter.load())
}

func TestCountReconciler_NegativeCounterRepaired(t *testing.T) {
	f := newReconcilerFixture()
	f.counter.set(-2)

	f.r.pass(context.Background())
	f.r.pass(context.Background())

	assert.Equal(t, int64(0), f.counter.load())
}

func TestCountReconciler_FollowerDoesNothing(t *testing.T) {
	f := newReconcilerFixture()
	f.leader.grant = false
	f.counter.set(9)

	f.r.pass(context.Background())
	f.r.pass(context.Background())

	assert.Equal(t, int64(9), f.counter.load())
	assert.Equal(t, 0, f.counter.getCount())
}

func TestCountReconciler_LosingLeaseStopsWork(t *testing.T) {
	f := newReconcilerFixture()
	f.counter.set(1)

	f.r.pass(context.Background())
	require.True(t, f.r.leading)

	f.leader.mu.Lock()
	f.leader.renewErr = domain.ErrNotLeader
	f.leader.grant = false
	f.leader.mu.Unlock()

	f.r.pass(context.Background())
	assert.False(t, f.r.leading)
	assert.Equal(t, int64(1), f.counter.load())
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.IsLeader), 0)
}

func TestCountReconciler_ListFailureSkipsPass(t *testing.T) {
	f := newReconcilerFixture()
	f.dir.listErr = errors.New("redis down")
	f.counter.set(4)

	f.r.pass(context.Background())
	f.r.pass(context.Background())

	assert.Equal(t, int64(4), f.counter.load())
}

func TestCountReconciler_ReleasesLeaseOnStop(t *testing.T) {
	f := newReconcilerFixture()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.r.Run(ctx)
	}()

	require.NoError(t, f.clock.BlockUntilContext(context.Background(), 1))
	f.clock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool { return f.counter.getCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.True(t, f.leader.wasReleased())
}
