// Package server provides the HTTP API for kensaku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hikawa/kensaku/internal/config"
	"github.com/hikawa/kensaku/internal/docstore"
	"github.com/hikawa/kensaku/internal/ingest"
	"github.com/hikawa/kensaku/internal/pipeline"
	"github.com/hikawa/kensaku/internal/vector"
)

// Server is the HTTP server for the kensaku API.
type Server struct {
	pipeline *pipeline.Pipeline
	builder  *pipeline.Builder
	ingester *ingest.Ingester
	store    docstore.Store
	ref      *vector.Ref
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	p *pipeline.Pipeline,
	builder *pipeline.Builder,
	ingester *ingest.Ingester,
	store docstore.Store,
	ref *vector.Ref,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline: p,
		builder:  builder,
		ingester: ingester,
		store:    store,
		ref:      ref,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/documents", s.handleAddDocument)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Post("/api/v1/rebuild", s.handleRebuild)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
