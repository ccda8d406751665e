// Package server provides the HTTP API for WTM.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/wtm/internal/catalog"
	"github.com/hyperjump/wtm/internal/config"
	"github.com/hyperjump/wtm/internal/keyword"
	"github.com/hyperjump/wtm/internal/matcher"
	"github.com/hyperjump/wtm/internal/ocr"
	"github.com/hyperjump/wtm/internal/storage"
)

// Catalog is the similarity catalog as the server sees it.
type Catalog interface {
	catalog.Index
	catalog.Refresher
	catalog.StatsReporter
}

// ModelInfo describes the embedding model for status output.
type ModelInfo interface {
	ModelID() string
	Loaded() bool
}

// Deps are the server's collaborators. Embedder, Model, Names and Suggester
// are optional.
type Deps struct {
	Store      storage.Storage
	Resolver   *matcher.Resolver
	Catalog    Catalog
	Backfiller *catalog.Backfiller
	Embedder   catalog.TextEmbedder
	Model      ModelInfo
	Names      keyword.NameIndex
	Suggester  *keyword.Suggester
	Extractor  *ocr.Extractor
	Config     *config.Config
	Logger     *zap.Logger
}

// Server is the HTTP server for the WTM API.
type Server struct {
	Deps
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Extractor == nil {
		deps.Extractor = ocr.NewExtractor(ocr.WithLogger(deps.Logger))
	}
	return &Server{Deps: deps}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if timeout := s.Config.Server.RequestTimeout(); timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/match", s.handleMatch)

		r.Route("/menus", func(r chi.Router) {
			r.Post("/", s.handleCreateMenu)
			r.Get("/", s.handleListMenus)
			r.Get("/{id}", s.handleGetMenu)
			r.Put("/{id}", s.handleUpdateMenu)
			r.Delete("/{id}", s.handleDeleteMenu)
			r.Get("/{id}/foods", s.handleListMenuFoods)
			r.Get("/{id}/matches", s.handleMenuMatches)
		})

		r.Route("/foods", func(r chi.Router) {
			r.Post("/", s.handleCreateFood)
			r.Get("/", s.handleListFoods)
			r.Get("/search", s.handleSearchFoods)
			r.Get("/{id}", s.handleGetFood)
			r.Put("/{id}", s.handleUpdateFood)
			r.Delete("/{id}", s.handleDeleteFood)
		})

		r.Post("/catalog/backfill", s.handleBackfill)
		r.Post("/catalog/refresh", s.handleRefresh)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.Logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
