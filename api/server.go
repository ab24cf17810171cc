/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:      Request logging
  2. Recoverer:   Panic recovery (500 instead of crash)
  3. RequestID:   Unique ID per request for tracing
  4. CORS:        Cross-origin requests for frontend (credentialed)
  5. requireAuth: Session check on everything below /api except auth

ROUTE GROUPS:
  /api/register, /api/login, /api/logout   Session lifecycle (public)
  /api/me                                  Current user
  /api/upload                              CSV ingestion
  /api/datasets/*                          Dataset queries and export

SEE ALSO:
  - handlers.go: Handler implementations
  - session.go:  requireAuth middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// corsOrigins lists the frontend origins allowed to send credentials.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Session lifecycle, no auth required
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		// Everything else requires a session
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/me", h.Me)
			r.Post("/upload", h.Upload)

			r.Route("/datasets", func(r chi.Router) {
				r.Get("/", h.ListDatasets)
				r.Get("/{id}", h.DatasetDetail)
				r.Get("/{id}/status", h.DatasetStatus)
				r.Get("/{id}/export", h.ExportDataset)
				r.Delete("/{id}", h.DeleteDataset)
			})
		})
	})

	return r
}
