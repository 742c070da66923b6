// Package diagnostics exposes a local-only HTTP surface for operational
// visibility into the agent: connection state, queue depth, breakpoint
// count. Modeled on ingress/internal/http/server.go's echo-based internal
// server, scaled down to the agent's read-only status needs.
package diagnostics

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// StatusSource supplies the live values the diagnostics surface reports.
// Satisfied by a thin adapter over *transport.Controller and
// *breakpoint.Registry so this package need not import either.
type StatusSource interface {
	Authenticated() bool
	QueueDepth() int
	BreakpointCount() int
	AgentID() string
}

// Server is the agent's local diagnostics HTTP server.
type Server struct {
	echo   *echo.Echo
	status StatusSource
}

// NewServer constructs a diagnostics server backed by status.
func NewServer(status StatusSource) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{echo: e, status: status}

	e.GET("/health", s.handleHealth)
	e.GET("/status", s.handleStatus)

	return s
}

// Start begins serving on addr. Blocks until Shutdown is called or an
// unrecoverable error occurs.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agent_id":        s.status.AgentID(),
		"authenticated":   s.status.Authenticated(),
		"queue_depth":     s.status.QueueDepth(),
		"breakpoint_count": s.status.BreakpointCount(),
	})
}
