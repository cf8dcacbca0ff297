// Package api exposes a read-only HTTP view of the registration store.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgt-data/matriculas/internal/config"
	"github.com/dgt-data/matriculas/internal/storage/sqlite"
	"github.com/dgt-data/matriculas/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(store *sqlite.RegistrationStorage, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(store, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", r.handler.GetHealth)
		router.Get("/registrations", r.handler.GetRegistrations)
		router.Get("/registrations/{bastidor}", r.handler.GetRegistrationsByBastidor)
		router.Get("/stats", r.handler.GetStats)
	})

	return router
}
