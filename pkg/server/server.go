package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/db"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/i18n"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/migrate"
	"github.com/cuemby/burrow/pkg/router"
)

// Server owns the HTTP listener and the request pipeline. It wires the
// router set, the event bus, the tenant-scoped connection pool and the
// migration runner into one request lifecycle.
type Server struct {
	cfg       *config.Config
	pool      *db.Pool
	bus       *events.Bus
	runner    *migrate.Runner
	routes    *router.Set
	catalogue *i18n.Catalogue
	limiter   *RateLimiter

	httpServer *http.Server
}

// New assembles a server. Duplicate route templates across the given
// routers are reported at construction time.
func New(cfg *config.Config, pool *db.Pool, bus *events.Bus, runner *migrate.Runner, catalogue *i18n.Catalogue, routers ...*router.Router) *Server {
	s := &Server{
		cfg:       cfg,
		pool:      pool,
		bus:       bus,
		runner:    runner,
		routes:    router.NewSet(routers...),
		catalogue: catalogue,
		limiter:   NewRateLimiter(cfg.RateLimit, time.Duration(cfg.RateWindowSeconds)*time.Second),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	mux.HandleFunc("/", s.handle)
	return mux
}

// Start brings up the event bus, announces startup on it, and serves until
// the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.bus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	metrics.RegisterComponent("events", true, "")
	metrics.RegisterComponent("database", true, "")

	if startup, err := events.New(events.Startup, nil); err == nil {
		s.bus.Dispatch(startup)
	}
	if tick, err := events.New("OnScheduledEvent", nil); err == nil {
		s.bus.Schedule(tick, 10*time.Second)
	}

	log.WithComponent("server").Info().Str("addr", s.cfg.Addr()).Msg("Serving")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listener failed: %w", err)
	}
	return nil
}

// Shutdown announces shutdown on the bus, stops accepting requests, and
// drains the bus, persisting scheduled events.
func (s *Server) Shutdown(ctx context.Context) error {
	if shutdown, err := events.New(events.Shutdown, nil); err == nil {
		s.bus.Dispatch(shutdown)
	}
	err := s.httpServer.Shutdown(ctx)
	s.bus.Stop(ctx)
	metrics.UpdateComponent("events", false, "stopped")
	return err
}
