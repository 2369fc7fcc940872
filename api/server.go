/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for internal tools

SECURITY NOTE:
  No authentication middleware currently. The service is meant to sit
  behind the company gateway; audit identity arrives via X-Actor-* headers.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-Id", "X-Actor-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/stats", h.GetMonthlyStats)
			r.Post("/{id}/requests", h.SubmitRequest)
		})

		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Put("/{id}", h.EditPolicy)
			r.Delete("/{id}", h.RetirePolicy)
			r.Post("/{id}/assign", h.AssignPolicy)
		})

		// Usage routes
		r.Route("/usages", func(r chi.Router) {
			r.Post("/", h.RegisterUsage)
			r.Delete("/{id}", h.DeleteUsage)
		})

		// Approval request routes
		r.Route("/requests", func(r chi.Router) {
			r.Get("/pending", h.ListPendingRequests)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/decisions", h.DecideRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/grants", h.ManualGrant)
			r.Get("/scheduler/runs", h.ListSchedulerRuns)
			r.Post("/scheduler/run", h.TriggerScheduler)
		})
	})

	return r
}
