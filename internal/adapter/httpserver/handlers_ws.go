package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	wsadapter "github.com/pscheid92/relay/internal/adapter/websocket"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/correlation"
	apperrors "github.com/pscheid92/relay/internal/platform/errors"
)

const echoPrefix = "Echo: "

// handleWebSocket upgrades the request, registers the session and echoes
// every text frame back until the client leaves.
func (s *Server) handleWebSocket(c echo.Context) error {
	if s.lifecycle.State() != domain.StateRunning {
		s.countRejected(reasonDraining)
		return apperrors.UnavailableError("server is shutting down", domain.ErrShutdownInProgress)
	}

	ip := c.RealIP()
	if ok, reason := s.limits.acquire(ip); !ok {
		s.countRejected(reason)
		if reason == reasonCapacity {
			return apperrors.UnavailableError("connection capacity reached", nil)
		}
		return apperrors.RateLimitedError("too many connections").WithField("reason", string(reason))
	}
	defer s.limits.release(ip)

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		return nil
	}

	conn := wsadapter.NewConn(ws, s.clock)
	ctx := correlation.WithConnection(c.Request().Context(), conn.ID())
	s.registry.Connect(ctx, conn)
	defer func() {
		s.registry.Disconnect(ctx, conn)
		_ = conn.Close("")
	}()

	for {
		res := conn.Receive(ctx)
		switch res.Kind {
		case domain.ReceiveData:
			if err := conn.Send(ctx, echoPrefix+res.Payload); err != nil {
				slog.DebugContext(ctx, "Echo reply dropped", "error", err)
				continue
			}
			if s.wsMetrics != nil {
				s.wsMetrics.EchoReplies.Inc()
			}
		case domain.ReceiveDisconnected:
			return nil
		case domain.ReceiveError:
			slog.WarnContext(ctx, "WebSocket session failed", "error", res.Err)
			return nil
		}
	}
}

func (s *Server) countRejected(reason limitReason) {
	if s.wsMetrics != nil {
		s.wsMetrics.Rejected.WithLabelValues(string(reason)).Inc()
	}
}
