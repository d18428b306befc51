package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const statusCounterTimeout = 2 * time.Second

type statusResponse struct {
	InstanceID        string  `json:"instance_id"`
	State             string  `json:"state"`
	LocalConnections  int     `json:"local_connections"`
	GlobalConnections *int64  `json:"global_connections"`
	Uptime            float64 `json:"uptime"`
}

// handleStatus reports this instance's view of the fleet. The global count is
// null when the shared store cannot be read.
func (s *Server) handleStatus(c echo.Context) error {
	resp := statusResponse{
		InstanceID:       s.config.InstanceID,
		State:            s.lifecycle.State().String(),
		LocalConnections: s.registry.LocalCount(),
		Uptime:           s.clock.Since(s.startTime).Seconds(),
	}

	ctx := c.Request().Context()
	if global, err := s.readGlobalCount(ctx); err != nil {
		slog.WarnContext(ctx, "Status: counter read failed", "error", err)
	} else {
		resp.GlobalConnections = &global
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write status response: %w", err)
	}
	return nil
}

// readGlobalCount collapses concurrent status polls into one counter read.
// The shared read is detached from any single caller, so a poller that goes
// away does not fail the others; each caller still stops waiting on its own ctx.
func (s *Server) readGlobalCount(ctx context.Context) (int64, error) {
	results := s.statusReads.DoChan("global", func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusCounterTimeout)
		defer cancel()
		return s.counter.Get(readCtx)
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int64), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
