package httpserver

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/relay/internal/adapter/metrics"
	wsadapter "github.com/pscheid92/relay/internal/adapter/websocket"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/config"
)

type fakeRegistry struct {
	mu    sync.Mutex
	conns map[string]domain.Connection
	seen  int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{conns: make(map[string]domain.Connection)}
}

func (r *fakeRegistry) Connect(_ context.Context, conn domain.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
	r.seen++
}

func (r *fakeRegistry) Disconnect(_ context.Context, conn domain.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn.ID())
}

func (r *fakeRegistry) LocalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *fakeRegistry) totalSeen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.msgs...)
}

type fakeCounter struct {
	value int64
	err   error
}

func (c *fakeCounter) Increment(context.Context) (int64, error) { c.value++; return c.value, c.err }
func (c *fakeCounter) Decrement(context.Context) (int64, error) { c.value--; return c.value, c.err }
func (c *fakeCounter) Get(context.Context) (int64, error)       { return c.value, c.err }

type fakeLifecycle struct {
	mu    sync.Mutex
	state domain.ShutdownState
}

func (l *fakeLifecycle) State() domain.ShutdownState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *fakeLifecycle) set(s domain.ShutdownState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

type testServer struct {
	*Server
	registry  *fakeRegistry
	publisher *fakePublisher
	counter   *fakeCounter
	lifecycle *fakeLifecycle
	clock     *clockwork.FakeClock
	wsMetrics *metrics.WebSocketMetrics
}

type testOption func(*config.Config, *Deps)

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(_ *config.Config, d *Deps) { d.HealthChecks = checks }
}

func withRateLimit(perSecond float64, burst int) testOption {
	return func(c *config.Config, _ *Deps) {
		c.PublishRateLimit = perSecond
		c.PublishRateBurst = burst
	}
}

func withConnectionLimits(total int64, perIP int) testOption {
	return func(c *config.Config, _ *Deps) {
		c.MaxConnections = total
		c.MaxConnectionsPerIP = perIP
	}
}

func newTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()

	m := metrics.NewSet()
	ts := &testServer{
		registry:  newFakeRegistry(),
		publisher: &fakePublisher{},
		counter:   &fakeCounter{},
		lifecycle: &fakeLifecycle{state: domain.StateRunning},
		clock:     clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		wsMetrics: m.WebSocket,
	}

	cfg := &config.Config{
		AppEnv:           "development",
		Port:             "0",
		InstanceID:       "relay-test",
		PublishRateLimit: 100,
		PublishRateBurst: 100,

		MaxConnections:      100,
		MaxConnectionsPerIP: 100,
		ConnectRateLimit:    100,
		ConnectRateBurst:    100,
	}
	deps := Deps{
		Registry:         ts.registry,
		Publisher:        ts.publisher,
		Counter:          ts.counter,
		Lifecycle:        ts.lifecycle,
		Upgrader:         wsadapter.NewUpgrader(func(*http.Request) bool { return true }),
		Clock:            ts.clock,
		MetricsHandler:   m.Handler(),
		HTTPMetrics:      m.HTTP,
		WebSocketMetrics: ts.wsMetrics,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	ts.Server = NewServer(cfg, deps)
	return ts
}
