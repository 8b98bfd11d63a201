// Package debugapi exposes a minimal operability HTTP surface:
// /healthz and a read-only /debug/positions snapshot dump. This is
// explicitly NOT the external control-plane API spec.md §1 places out
// of scope — it exists only so an operator (or a liveness probe) can
// check the engine is up and see what it currently manages.
package debugapi

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/health"
	"clp-rebalancer/internal/position"
)

// PositionSource is the read-only view debugapi needs — satisfied by
// *rebalance.Engine.
type PositionSource interface {
	GetManagedPositions() []position.ManagedPosition
}

// Server runs the debug HTTP surface.
type Server struct {
	app     *fiber.App
	source  PositionSource
	checker *health.Checker
	host    string
	port    int
	started time.Time
}

// NewServer builds a Server backed by source. checker is optional —
// when nil, /healthz reports only process liveness, not downstream
// endpoint reachability.
func NewServer(host string, port int, source PositionSource, checker *health.Checker) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:     app,
		source:  source,
		checker: checker,
		host:    host,
		port:    port,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.handleHealthz)
	s.app.Get("/debug/positions", s.handlePositions)
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":     "ok",
		"uptime_sec": int(time.Since(s.started).Seconds()),
		"time":       time.Now().Unix(),
	}
	if s.checker != nil {
		statuses := s.checker.GetStatuses()
		body["dependencies"] = statuses
		for _, st := range statuses {
			if !st.Healthy {
				body["status"] = "degraded"
			}
		}
	}
	return c.JSON(body)
}

func (s *Server) handlePositions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"positions": s.source.GetManagedPositions(),
	})
}

// Start begins serving, blocking until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("starting debug http surface")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
