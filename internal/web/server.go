package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	undertone "github.com/menta2k/undertone-analyzer"
	"github.com/menta2k/undertone-analyzer/internal/config"
)

// Server represents the web server
type Server struct {
	config   *config.Config
	analyzer *undertone.Analyzer
	router   *chi.Mux
	server   *http.Server
	sessions *sessionStore
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, analyzer *undertone.Analyzer) *Server {
	s := &Server{
		config:   cfg,
		analyzer: analyzer,
		router:   chi.NewRouter(),
		sessions: newSessionStore(analyzer, sessionTTL),
	}

	requestTimeout := time.Duration(cfg.Server.RequestTimeoutS) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = time.Minute
	}

	s.router.Use(chiMiddleware.RequestID)
	s.router.Use(chiMiddleware.RealIP)
	s.router.Use(chiMiddleware.Logger)
	s.router.Use(chiMiddleware.Recoverer)
	s.router.Use(chiMiddleware.Timeout(requestTimeout))

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the web server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown cancels every running analysis and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessions.closeAll()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
