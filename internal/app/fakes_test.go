package app

import (
	"context"
	"sync"

	"github.com/pscheid92/relay/internal/domain"
)

type fakeCounter struct {
	mu     sync.Mutex
	value  int64
	gets   int
	getErr error
	incErr error
	decErr error
	casErr error
}

func (c *fakeCounter) Increment(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incErr != nil {
		return 0, c.incErr
	}
	c.value++
	return c.value, nil
}

func (c *fakeCounter) Decrement(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decErr != nil {
		return 0, c.decErr
	}
	c.value--
	return c.value, nil
}

func (c *fakeCounter) Get(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return 0, c.getErr
	}
	return c.value, nil
}

func (c *fakeCounter) CompareAndSet(_ context.Context, expected, value int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.casErr != nil {
		return false, c.casErr
	}
	if c.value != expected {
		return false, nil
	}
	c.value = value
	return true, nil
}

func (c *fakeCounter) set(v int64) {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
}

func (c *fakeCounter) load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *fakeCounter) getCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

func (c *fakeCounter) failGets(err error) {
	c.mu.Lock()
	c.getErr = err
	c.mu.Unlock()
}

type fakeConn struct {
	id string

	mu          sync.Mutex
	sent        []string
	sendErr     error
	closed      bool
	closeReason string
	closeGate   chan struct{}
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) domain.ReceiveResult {
	<-ctx.Done()
	return domain.Disconnected()
}

func (c *fakeConn) Close(reason string) error {
	if c.closeGate != nil {
		<-c.closeGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeReason = reason
	return nil
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) isClosed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}

type fakePublisher struct {
	mu     sync.Mutex
	sent   []string
	err    error
	onSend func(string)
}

func (p *fakePublisher) Publish(_ context.Context, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, message)
	if p.onSend != nil {
		p.onSend(message)
	}
	return nil
}

func (p *fakePublisher) messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	copy(out, p.sent)
	return out
}

// memBus is an in-process stand-in for the shared pub/sub store.
type memBus struct {
	mu   sync.Mutex
	subs map[string][]chan domain.Event
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[string][]chan domain.Event)}
}

func (b *memBus) channel(name string) *memChannel {
	return &memChannel{bus: b, name: name}
}

type memChannel struct {
	bus  *memBus
	name string
}

func (c *memChannel) Publish(_ context.Context, message string) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	for _, ch := range c.bus.subs[c.name] {
		select {
		case ch <- domain.MessageEvent(c.name, message):
		default:
		}
	}
	return nil
}

func (c *memChannel) Subscribe(ctx context.Context) <-chan domain.Event {
	ch := make(chan domain.Event, 256)
	ch <- domain.SubscribedEvent(c.name)

	c.bus.mu.Lock()
	c.bus.subs[c.name] = append(c.bus.subs[c.name], ch)
	c.bus.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.bus.mu.Lock()
		defer c.bus.mu.Unlock()
		subs := c.bus.subs[c.name]
		for i, s := range subs {
			if s == ch {
				c.bus.subs[c.name] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (b *memBus) subscribers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[name])
}

// scriptedSubscriber replays a fixed list of events and then waits for ctx.
type scriptedSubscriber struct {
	events []domain.Event
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context) <-chan domain.Event {
	ch := make(chan domain.Event)
	go func() {
		defer close(ch)
		for _, ev := range s.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return ch
}

type fakeDirectory struct {
	mu      sync.Mutex
	records map[string]domain.InstanceInfo
	listErr error
	beatErr error
	beats   int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{records: make(map[string]domain.InstanceInfo)}
}

func (d *fakeDirectory) Heartbeat(_ context.Context, info domain.InstanceInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beats++
	if d.beatErr != nil {
		return d.beatErr
	}
	d.records[info.InstanceID] = info
	return nil
}

func (d *fakeDirectory) Remove(_ context.Context, ids ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		delete(d.records, id)
	}
	return nil
}

func (d *fakeDirectory) List(_ context.Context) ([]domain.InstanceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	out := make([]domain.InstanceInfo, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, r)
	}
	return out, nil
}

func (d *fakeDirectory) get(id string) (domain.InstanceInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.records[id]
	return r, ok
}

func (d *fakeDirectory) beatCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.beats
}

type fakeLeader struct {
	mu       sync.Mutex
	grant    bool
	renewErr error
	released bool
	acquires int
}

func (l *fakeLeader) TryAcquire(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	return l.grant, nil
}

func (l *fakeLeader) Renew(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.renewErr
}

func (l *fakeLeader) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func (l *fakeLeader) wasReleased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

type recordingTrigger struct {
	mu      sync.Mutex
	sources []string
}

func (r *recordingTrigger) Trigger(source string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	return len(r.sources) == 1
}

func (r *recordingTrigger) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sources...)
}
