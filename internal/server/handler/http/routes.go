package http

import (
	"net/http"
	"strings"

	"github.com/atinyakov/gvagate/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// NewRouter constructs and returns an HTTP handler that serves the
// directory mock API.
//
// Parameters:
//
//	directoryHandler - handler for group, login and authenticate endpoints
//	logger           - structured logger for request logging middleware
//	allowedOrigins   - comma-separated CORS origins; empty disables CORS
//
// Routes:
//
//	GET  /get_group, /get_groups            → ListGroups
//	GET  /login                             → Login
//	POST /api/v1/login, /authenticate, /    → Authenticate
//
// Middleware chain (applied in order):
//  1. RequestID                  : assigns X-Request-ID
//  2. WithRequestLogging(logger) : logs each request without its query
//  3. Recoverer                  : turns panics into 500
//  4. CORS                       : only when origins are configured
func NewRouter(
	directoryHandler *DirectoryHandler,
	logger *zap.Logger,
	allowedOrigins string,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(chiMiddleware.Recoverer)

	if origins := splitOrigins(allowedOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		}).Handler)
	}

	r.Get("/get_group", directoryHandler.ListGroups)
	r.Get("/get_groups", directoryHandler.ListGroups)
	r.Get("/login", directoryHandler.Login)

	r.Post("/api/v1/login", directoryHandler.Authenticate)
	r.Post("/authenticate", directoryHandler.Authenticate)
	r.Post("/", directoryHandler.Authenticate)

	return r
}

func splitOrigins(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
