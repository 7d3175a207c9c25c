/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /health                   Liveness
  /api/owners/{ownerID}/*   Projections and budget health
  /api/budgets/{budgetID}/* Alert triggers
  /api/alerts/*             Alert evaluation

SECURITY NOTE:
  No authentication middleware. Deploy behind an authenticating proxy.

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

// NewRouter creates a new router with all routes configured. An empty
// allowedOrigins falls back to the local dashboard origins.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Owner dashboards
		r.Route("/owners/{ownerID}", func(r chi.Router) {
			r.Get("/projections", h.GetProjections)
			r.Get("/budgets/summary", h.GetBudgetSummaries)
			r.Get("/budgets/categories", h.GetCategoryConsumption)
		})

		// Budget alert history
		r.Get("/budgets/{budgetID}/triggers", h.ListTriggers)

		// Alert evaluation
		r.Route("/alerts", func(r chi.Router) {
			r.Post("/evaluate", h.EvaluateAlerts)
		})
	})

	return r
}
