// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
)

// Asker answers questions within sessions.
type Asker interface {
	Ask(ctx context.Context, question, sessionID string) (*models.AskResponse, error)
}

// Index is the index manager as seen by the API.
type Index interface {
	SearchText(ctx context.Context, text string, k int) ([]indexer.Hit, error)
	Refresh(ctx context.Context) (int, error)
	Ready() bool
	Stats() indexer.Stats
}

// Catalog is the catalog store as seen by the API.
type Catalog interface {
	CountItems(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Sessions reports the number of live sessions.
type Sessions interface {
	Count(ctx context.Context) (int, error)
}

// Deps are the components behind the API.
type Deps struct {
	QA       Asker
	Index    Index
	Catalog  Catalog
	Sessions Sessions
	// DiskPaths are summed for the status disk usage.
	DiskPaths []string
	Version   string
}

// Server is the HTTP server for the Kotae API.
type Server struct {
	deps   Deps
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, config: cfg, logger: logger}
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/qa", s.handleAsk)
		r.Get("/search", s.handleSearch)
		r.Post("/index/refresh", s.handleRefresh)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
