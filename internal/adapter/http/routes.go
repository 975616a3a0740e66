package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/muhammad-robitulloh/vareon/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. Everything
// under /api/v1 is owner-scoped via API key; /health stays open for probes.
func MountRoutes(r chi.Router, h *Handlers, owners middleware.OwnerLookup) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(owners))

		// Agents
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Put("/agents/{id}", h.UpdateAgent)
		r.Delete("/agents/{id}", h.DeleteAgent)

		// Jobs (nested under agents)
		r.Post("/agents/{id}/jobs", h.CreateJob)
		r.Get("/agents/{id}/jobs", h.ListJobs)

		// Jobs (direct access)
		r.Get("/jobs/{id}", h.GetJob)
		r.Get("/jobs/{id}/logs", h.GetJobLogs)
		r.Post("/jobs/{id}/input", h.SubmitHumanInput)
		r.Get("/jobs/{id}/events", h.StreamJobEvents)

		// Routing rules
		r.Post("/rules", h.CreateRule)
		r.Get("/rules", h.ListRules)
		r.Get("/rules/{id}", h.GetRule)
		r.Put("/rules/{id}", h.UpdateRule)
		r.Delete("/rules/{id}", h.DeleteRule)

		// Model catalog
		r.Post("/models", h.CreateModel)
		r.Get("/models", h.ListModels)
		r.Delete("/models/{id}", h.DeleteModel)
	})
}
