package domain

import (
	"context"
	"strings"
)

// Counter is the fleet-wide connection counter kept in the shared store.
// Increment and Decrement are atomic in the store; Get on a missing key returns 0.
type Counter interface {
	Increment(ctx context.Context) (int64, error)
	Decrement(ctx context.Context) (int64, error)
	Get(ctx context.Context) (int64, error)
}

// Publisher sends a message on one shared channel. It returns once the store
// acknowledged the publish, not once subscribers processed it.
type Publisher interface {
	Publish(ctx context.Context, message string) error
}

// Subscriber yields the events of one shared channel until ctx is cancelled.
// The returned channel is closed only after ctx is done; connection loss is
// reported as EventError/EventUnsubscribed and followed by a resubscribe.
type Subscriber interface {
	Subscribe(ctx context.Context) <-chan Event
}

type EventKind int

const (
	EventMessage EventKind = iota
	EventSubscribed
	EventUnsubscribed
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event separates real broadcast payloads from subscription lifecycle notices.
type Event struct {
	Kind    EventKind
	Channel string
	Payload string
	Err     error
}

func MessageEvent(channel, payload string) Event {
	return Event{Kind: EventMessage, Channel: channel, Payload: payload}
}

func SubscribedEvent(channel string) Event {
	return Event{Kind: EventSubscribed, Channel: channel}
}

func UnsubscribedEvent(channel string) Event {
	return Event{Kind: EventUnsubscribed, Channel: channel}
}

func ErrorEvent(channel string, err error) Event {
	return Event{Kind: EventError, Channel: channel, Err: err}
}

// ValidateBroadcast rejects payloads that are empty after trimming whitespace.
// The payload itself is published untrimmed.
func ValidateBroadcast(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	return nil
}
