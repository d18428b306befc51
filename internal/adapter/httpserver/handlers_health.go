package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck is a named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type checkResult struct {
	Status  string  `json:"status"`
	Latency float64 `json:"latency_ms"`
	Error   string  `json:"error,omitempty"`
}

type probeResponse struct {
	Status      string                 `json:"status"`
	State       string                 `json:"state"`
	FailedCheck string                 `json:"failed_check,omitempty"`
	Checks      map[string]checkResult `json:"checks,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleStartup only looks at dependencies; a draining instance has started.
func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	return s.writeProbe(c, s.probe(ctx))
}

// handleLiveness never touches Redis. A stuck store must not get the
// process restarted while clients are still attached.
func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// handleReadiness turns unready as soon as draining starts, so load balancers
// stop routing new clients here before the notice goes out.
func (s *Server) handleReadiness(c echo.Context) error {
	state := s.lifecycle.State()
	if state != domain.StateRunning {
		return s.writeProbe(c, probeResponse{Status: state.String(), State: state.String()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	return s.writeProbe(c, s.probe(ctx))
}

// probe runs every check, reporting the first failure by name.
func (s *Server) probe(ctx context.Context) probeResponse {
	resp := probeResponse{
		Status: "ready",
		State:  s.lifecycle.State().String(),
		Checks: make(map[string]checkResult, len(s.healthChecks)),
	}

	for _, hc := range s.healthChecks {
		start := s.clock.Now()
		err := hc.Check(ctx)
		result := checkResult{
			Status:  "ok",
			Latency: float64(s.clock.Since(start).Microseconds()) / 1000,
		}
		if err != nil {
			result.Status = "failed"
			result.Error = err.Error()
			if resp.FailedCheck == "" {
				resp.Status = "unhealthy"
				resp.FailedCheck = hc.Name
			}
		}
		resp.Checks[hc.Name] = result
	}
	return resp
}

func (s *Server) writeProbe(c echo.Context, resp probeResponse) error {
	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to send probe response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
