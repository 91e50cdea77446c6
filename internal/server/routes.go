package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Collaborator API (restaurant systems, courier apps) - token protected
	api := s.echo.Group("/api", s.requireToken)
	api.POST("/orders", s.handleCreateOrder)
	api.GET("/orders/:id", s.handleGetOrder)
	api.PATCH("/orders/:id/status", s.handleUpdateStatus)
	api.PATCH("/orders/:id/location", s.handleUpdateLocation)

	// Customer-facing subscription socket - per-order authorization happens
	// inside the multiplexer, not here
	s.echo.GET("/ws", s.handleWebSocket)
}
