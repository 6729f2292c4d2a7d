package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaydev/clauder/internal/executor"
	"github.com/relaydev/clauder/internal/logging"
	"github.com/relaydev/clauder/internal/permission"
	"github.com/relaydev/clauder/internal/prompt"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:4517",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout, /v1/events streams
	}
}

// Deps are the shared components the handlers read from. Any of them
// may be nil; the corresponding endpoints then serve empty or 404
// responses.
type Deps struct {
	History  *executor.History
	Store    *permission.Store
	Hub      *prompt.Hub
	Gatherer prometheus.Gatherer
}

// Server is the HTTP status server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server

	history  *executor.History
	store    *permission.Store
	hub      *prompt.Hub
	gatherer prometheus.Gatherer

	tracker *runTracker
	detach  func()
}

// New creates a Server wired to the given components and subscribes its
// run tracker to the event bus.
func New(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		history:  deps.History,
		store:    deps.Store,
		hub:      deps.Hub,
		gatherer: deps.Gatherer,
		tracker:  newRunTracker(),
	}
	s.detach = s.tracker.Attach()

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// requestLogger logs requests through zerolog. Stdout carries the MCP
// transport in serve mode, so chi's stdout logger is not an option.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	logging.Info().Str("addr", s.config.Addr).Msg("status server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server and detaches the run
// tracker from the event bus.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
