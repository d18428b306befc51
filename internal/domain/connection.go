package domain

import "context"

// Connection is one client session, valid only on the instance that accepted it.
type Connection interface {
	ID() string
	// Send queues a text frame. A non-nil error means this frame was not delivered;
	// it does not by itself remove the connection from any registry.
	Send(ctx context.Context, text string) error
	// Receive blocks until the next inbound frame or the end of the session.
	Receive(ctx context.Context) ReceiveResult
	// Close ends the session with a human readable reason.
	Close(reason string) error
}

type ReceiveKind int

const (
	ReceiveData ReceiveKind = iota
	ReceiveDisconnected
	ReceiveError
)

func (k ReceiveKind) String() string {
	switch k {
	case ReceiveData:
		return "data"
	case ReceiveDisconnected:
		return "disconnected"
	case ReceiveError:
		return "error"
	default:
		return "unknown"
	}
}

// ReceiveResult is what a read from a Connection produced.
// Payload is set only for ReceiveData, Err only for ReceiveError.
type ReceiveResult struct {
	Kind    ReceiveKind
	Payload string
	Err     error
}

func Data(payload string) ReceiveResult {
	return ReceiveResult{Kind: ReceiveData, Payload: payload}
}

func Disconnected() ReceiveResult {
	return ReceiveResult{Kind: ReceiveDisconnected}
}

func ReceiveFailed(err error) ReceiveResult {
	return ReceiveResult{Kind: ReceiveError, Err: err}
}

// Done reports whether the session has ended and the read loop should exit.
func (r ReceiveResult) Done() bool {
	return r.Kind != ReceiveData
}
