/**
 * @description
 * HTTP router for the pledge-service.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and standard middleware.
 * - github.com/go-chi/cors: CORS handling for the mobile and web clients.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the pledge-service router.
func NewRouter(h *Handler, auth AuthConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(auth))

		r.Route("/pledges", func(r chi.Router) {
			r.Get("/", h.handleListPledges)
			r.Post("/", h.handleCreatePledge)
			r.Post("/check", h.handleRecordFix)
			r.Get("/{pledgeID}", h.handleGetPledge)
			r.Patch("/{pledgeID}", h.handleUpdatePledge)
			r.Get("/{pledgeID}/checks", h.handleListChecks)
		})
	})

	return r
}
