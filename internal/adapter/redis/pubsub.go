package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/relay/internal/adapter/metrics"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// healthCheckInterval is how long Receive may stay silent before the
	// subscription connection is probed with a PING.
	healthCheckInterval = 30 * time.Second
	eventBufferSize     = 64
)

// PubSub publishes to and subscribes on a single Redis channel.
//
// A lost subscription is re-established with unbounded exponential backoff.
// Every failed attempt is logged, and the consumer sees EventUnsubscribed
// followed by EventSubscribed once the channel is back.
type PubSub struct {
	rdb     *goredis.Client
	channel string
	clock   clockwork.Clock
	metrics *metrics.PubSubMetrics

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var (
	_ domain.Publisher  = (*PubSub)(nil)
	_ domain.Subscriber = (*PubSub)(nil)
)

type PubSubOption func(*PubSub)

func WithPubSubMetrics(m *metrics.PubSubMetrics) PubSubOption {
	return func(p *PubSub) { p.metrics = m }
}

func WithClock(clock clockwork.Clock) PubSubOption {
	return func(p *PubSub) { p.clock = clock }
}

func WithBackoff(initial, maximum time.Duration) PubSubOption {
	return func(p *PubSub) {
		p.initialBackoff = initial
		p.maxBackoff = maximum
	}
}

func NewPubSub(rdb *goredis.Client, channel string, opts ...PubSubOption) *PubSub {
	p := &PubSub{
		rdb:            rdb,
		channel:        channel,
		clock:          clockwork.NewRealClock(),
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends message to every current subscriber of the channel.
func (p *PubSub) Publish(ctx context.Context, message string) error {
	if err := p.rdb.Publish(ctx, p.channel, message).Err(); err != nil {
		if p.metrics != nil {
			p.metrics.PublishErrors.WithLabelValues(p.channel).Inc()
		}
		return fmt.Errorf("failed to publish on %s: %w", p.channel, err)
	}
	if p.metrics != nil {
		p.metrics.Published.WithLabelValues(p.channel).Inc()
	}
	return nil
}

// Subscribe starts a background receive loop. The returned channel is closed
// once ctx is cancelled and the loop has released its connection.
func (p *PubSub) Subscribe(ctx context.Context) <-chan domain.Event {
	events := make(chan domain.Event, eventBufferSize)
	go func() {
		defer close(events)
		p.run(ctx, events)
	}()
	return events
}

func (p *PubSub) run(ctx context.Context, events chan<- domain.Event) {
	for {
		sub, err := p.connect(ctx)
		if err != nil {
			// only ctx cancellation ends an unbounded retry
			return
		}

		err = p.receive(ctx, sub, events)
		_ = sub.Close()
		p.setActive(false)

		if ctx.Err() != nil {
			return
		}

		slog.Warn("Subscription lost, reconnecting", "channel", p.channel, "error", err)
		if !p.emit(ctx, events, domain.ErrorEvent(p.channel, err)) {
			return
		}
		if !p.emit(ctx, events, domain.UnsubscribedEvent(p.channel)) {
			return
		}
	}
}

// connect subscribes and waits for the server's confirmation, retrying forever.
func (p *PubSub) connect(ctx context.Context) (*goredis.PubSub, error) {
	policy := retry.Policy{
		MaxAttempts:    retry.Unbounded,
		InitialBackoff: p.initialBackoff,
		MaxBackoff:     p.maxBackoff,
		Clock:          p.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			if p.metrics != nil {
				p.metrics.Reconnects.WithLabelValues(p.channel).Inc()
			}
			slog.Warn("Subscribe failed, retrying",
				"channel", p.channel,
				"attempt", attempt,
				"backoff", backoff,
				"error", err)
		},
	}

	return retry.Do(ctx, policy, retry.Always, func(ctx context.Context) (*goredis.PubSub, error) {
		sub := p.rdb.Subscribe(ctx, p.channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, err
		}
		return sub, nil
	})
}

// receive pumps one subscription until it fails or ctx ends. The confirmation
// consumed by connect is reported here as EventSubscribed.
func (p *PubSub) receive(ctx context.Context, sub *goredis.PubSub, events chan<- domain.Event) error {
	p.setActive(true)
	slog.Info("Subscribed", "channel", p.channel)
	if !p.emit(ctx, events, domain.SubscribedEvent(p.channel)) {
		return ctx.Err()
	}

	for {
		msg, err := sub.ReceiveTimeout(ctx, healthCheckInterval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isTimeout(err) {
				if err := sub.Ping(ctx); err != nil {
					return fmt.Errorf("health check: %w", err)
				}
				continue
			}
			return err
		}

		switch m := msg.(type) {
		case *goredis.Message:
			if p.metrics != nil {
				p.metrics.Received.WithLabelValues(p.channel).Inc()
			}
			if !p.emit(ctx, events, domain.MessageEvent(m.Channel, m.Payload)) {
				return ctx.Err()
			}
		case *goredis.Subscription:
			if m.Kind == "unsubscribe" {
				return errors.New("unsubscribed by server")
			}
		case *goredis.Pong:
		}
	}
}

func (p *PubSub) emit(ctx context.Context, events chan<- domain.Event, ev domain.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *PubSub) setActive(active bool) {
	if p.metrics == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	p.metrics.SubscriptionActive.WithLabelValues(p.channel).Set(v)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
