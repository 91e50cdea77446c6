package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/ordertrack/internal/broadcast"
	"github.com/pscheid92/ordertrack/internal/config"
	apperrors "github.com/pscheid92/ordertrack/internal/errors"
	"github.com/pscheid92/ordertrack/internal/mux"
	"github.com/pscheid92/ordertrack/internal/registry"
)

// healthCheck probes one backing dependency for the readiness endpoint.
type healthCheck struct {
	name string
	fn   func(context.Context) error
}

type Server struct {
	echo         *echo.Echo
	config       *config.Config
	registry     *registry.Registry
	subs         *mux.Multiplexer
	dispatcher   *broadcast.Dispatcher
	clock        clockwork.Clock
	startTime    time.Time
	healthChecks []healthCheck
}

func NewServer(cfg *config.Config, reg *registry.Registry, subs *mux.Multiplexer, dispatcher *broadcast.Dispatcher, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:       e,
		config:     cfg,
		registry:   reg,
		subs:       subs,
		dispatcher: dispatcher,
		clock:      clock,
		startTime:  clock.Now(),
	}

	// Register routes
	srv.registerRoutes()

	return srv
}

// AddHealthCheck registers a dependency probe for the readiness endpoint.
func (s *Server) AddHealthCheck(name string, fn func(context.Context) error) {
	s.healthChecks = append(s.healthChecks, healthCheck{name: name, fn: fn})
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
