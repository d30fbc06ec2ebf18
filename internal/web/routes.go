package web

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", s.health)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.analyze)
		r.Get("/sessions/{id}", s.sessionStatus)
		r.Delete("/sessions/{id}", s.cancelSession)
		r.Get("/products", s.products)
	})
}
