// Package api serves the postal code lookup HTTP API.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/postal-cli/internal/enrich"
	"github.com/sells-group/postal-cli/internal/store"
)

// List shapes for GET /postal-codes.
const (
	// ShapeMap renders {"<code>": [concelho, distrito]}.
	ShapeMap = "map"
	// ShapeList renders [{postal_code, concelho, distrito}].
	ShapeList = "list"
)

// Updater runs a bulk update of incomplete records.
type Updater interface {
	BulkUpdate(ctx context.Context, apiKey string) (enrich.UpdateResult, error)
}

// Options configures the server.
type Options struct {
	ListShape string
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	store   store.Store
	updater Updater
	opts    Options
}

// NewServer creates a Server. An empty ListShape defaults to ShapeMap.
func NewServer(st store.Store, updater Updater, opts Options) *Server {
	if opts.ListShape == "" {
		opts.ListShape = ShapeMap
	}
	return &Server{store: st, updater: updater, opts: opts}
}

// Router returns the HTTP handler for the API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/postal-codes", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/update", s.handleUpdate)
		r.Get("/{code}", s.handleGet)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
