// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
)

// OwnerHeader carries the caller's owner id. Every /api route requires it.
const OwnerHeader = "X-Owner-ID"

// Server is the HTTP server for the kotae API.
type Server struct {
	indexer  *indexer.Indexer
	rag      *rag.Service
	storage  storage.Storage
	sessions *session.Registry
	metrics  *metrics.Metrics
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. m may be nil, in which case
// /metrics responds 404.
func NewServer(
	idx *indexer.Indexer,
	svc *rag.Service,
	store storage.Storage,
	sessions *session.Registry,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		indexer:  idx,
		rag:      svc,
		storage:  store,
		sessions: sessions,
		metrics:  m,
		config:   cfg,
		logger:   logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if t := s.config.Server.RequestTimeout; t > 0 {
			r.Use(middleware.Timeout(t))
		}
		r.Use(s.requireOwner)

		r.Post("/ask", s.handleAsk)
		r.Get("/status", s.handleStatus)
		r.Get("/collections", s.handleListCollections)
		r.Route("/collections/{name}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteCollection)
			r.Post("/load", s.handleLoadCollection)
			r.Post("/documents", s.handleIngest)
			r.Get("/documents/{filename}", s.handleGetDocument)
			r.Get("/files", s.handleListFiles)
			r.Get("/chunks", s.handlePreviewChunks)
			r.Get("/messages", s.handleListMessages)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
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

type ownerKey struct{}

func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(OwnerHeader)
		if owner == "" {
			s.respondError(w, http.StatusUnauthorized, OwnerHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}
