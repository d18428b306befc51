package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/relay/internal/adapter/metrics"
	"github.com/pscheid92/relay/internal/domain"
	"github.com/pscheid92/relay/internal/platform/config"
	"golang.org/x/sync/singleflight"
)

type connectionRegistry interface {
	Connect(ctx context.Context, conn domain.Connection)
	Disconnect(ctx context.Context, conn domain.Connection)
	LocalCount() int
}

type lifecycle interface {
	State() domain.ShutdownState
}

// Deps are the collaborators the HTTP layer drives. Metric fields may be nil.
type Deps struct {
	Registry     connectionRegistry
	Publisher    domain.Publisher
	Counter      domain.Counter
	Lifecycle    lifecycle
	Upgrader     *websocket.Upgrader
	Clock        clockwork.Clock
	HealthChecks []HealthCheck

	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics
	WebSocketMetrics *metrics.WebSocketMetrics
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	registry     connectionRegistry
	publisher    domain.Publisher
	counter      domain.Counter
	lifecycle    lifecycle
	upgrader     *websocket.Upgrader
	clock        clockwork.Clock
	healthChecks []HealthCheck
	limits       *admissionLimits
	statusReads  singleflight.Group

	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics
	wsMetrics      *metrics.WebSocketMetrics

	startTime time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:           e,
		config:         cfg,
		registry:       deps.Registry,
		publisher:      deps.Publisher,
		counter:        deps.Counter,
		lifecycle:      deps.Lifecycle,
		upgrader:       deps.Upgrader,
		clock:          clock,
		healthChecks:   deps.HealthChecks,
		limits:         newAdmissionLimits(clock, cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectRateLimit, cfg.ConnectRateBurst),
		metricsHandler: deps.MetricsHandler,
		httpMetrics:    deps.HTTPMetrics,
		wsMetrics:      deps.WebSocketMetrics,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start serves on the configured port until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.echo.Listener = ln
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Upgraded
// WebSocket sessions are not tracked by the HTTP server and must be closed
// through the registry.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
