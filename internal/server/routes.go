package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs", s.listRuns)

		r.Route("/permissions", func(r chi.Router) {
			r.Get("/", s.listPermissions)
			r.Delete("/", s.clearPermissions)
			r.Delete("/{fingerprint}", s.removePermission)
		})

		r.Route("/asks", func(r chi.Router) {
			r.Get("/", s.listAsks)
			r.Post("/{askID}", s.answerAsk)
		})

		// Event streaming (SSE)
		r.Get("/events", s.streamEvents)
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}
