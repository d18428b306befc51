package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/relay/internal/domain"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	maxMessageSize    = 64 * 1024
	messageBufferSize = 16
)

// NewUpgrader returns a gorilla upgrader using checkOrigin.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

// Conn adapts a gorilla connection to domain.Connection.
//
// All writes go through one writer goroutine, so frames from broadcasts,
// echo replies and pings never interleave. Send never blocks: a full
// buffer is reported as a failed delivery.
type Conn struct {
	id    string
	ws    *websocket.Conn
	clock clockwork.Clock

	send      chan []byte
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ domain.Connection = (*Conn)(nil)

func NewConn(ws *websocket.Conn, clock clockwork.Clock) *Conn {
	c := &Conn{
		id:    uuid.NewString(),
		ws:    ws,
		clock: clock,
		send:  make(chan []byte, messageBufferSize),
		done:  make(chan struct{}),
	}
	ws.SetReadLimit(maxMessageSize)
	c.configurePongHandler()

	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Send(ctx context.Context, text string) error {
	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- []byte(text):
		return nil
	case <-c.done:
		return domain.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return domain.ErrSendBufferFull
	}
}

// Receive returns the next text frame. Binary frames are skipped.
func (c *Conn) Receive(ctx context.Context) domain.ReceiveResult {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ReceiveFailed(err)
		}

		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return c.classify(err)
		}
		if kind == websocket.TextMessage {
			return domain.Data(string(data))
		}
	}
}

// classify separates a client going away from a broken session.
func (c *Conn) classify(err error) domain.ReceiveResult {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		return domain.Disconnected()
	case c.stopped(), errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return domain.Disconnected()
	default:
		return domain.ReceiveFailed(err)
	}
}

// Close flushes queued frames, sends a close frame carrying reason and closes the socket.
func (c *Conn) Close(reason string) error {
	first := false
	c.stopOnce.Do(func() {
		close(c.done)
		first = true
	})
	// the writer must be gone before this goroutine touches the socket
	c.wg.Wait()

	if first {
		c.flush()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		c.updateWriteDeadline()
		_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
	}
	return c.closeSocket()
}

func (c *Conn) run() {
	defer c.wg.Done()
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.abort()
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.abort()
				return
			}
		case <-c.done:
			return
		}
	}
}

// flush writes whatever is still queued. Only called once the writer has exited.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// abort is the writer's exit on a failed write; closing the socket unblocks Receive.
func (c *Conn) abort() {
	c.stopOnce.Do(func() { close(c.done) })
	_ = c.closeSocket()
}

func (c *Conn) closeSocket() error {
	var err error
	c.closeOnce.Do(func() { err = c.ws.Close() })
	return err
}

func (c *Conn) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) configurePongHandler() {
	c.updateReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

// Socket deadlines are compared against wall time by the runtime, so they
// never use the injected clock.
func (c *Conn) updateWriteDeadline() {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
}

func (c *Conn) updateReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongDeadline))
}
