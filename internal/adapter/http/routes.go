package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/ws", h.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Action gatekeeping
		r.Post("/actions/evaluate", h.EvaluateAction)
		r.Post("/gate", h.Gate)

		// Operational controls
		r.Post("/controls", h.SetControlMode)
		r.Get("/controls", h.ListControls)
		r.Get("/controls/effective", h.GetEffectiveMode)

		// Policy envelopes
		r.Post("/policies/envelopes", h.CreateEnvelope)
		r.Get("/policies/envelopes", h.ListEnvelopes)
		r.Get("/policies/envelopes/{id}", h.GetEnvelope)
		r.Put("/policies/envelopes/{id}", h.UpdateEnvelope)
		r.Delete("/policies/envelopes/{id}", h.DeleteEnvelope)

		// Agent registry
		r.Post("/agents/resolve", h.ResolveAgent)
		r.Post("/versions/{id}/status", h.AdvanceVersionStatus)
		r.Get("/instances/{id}", h.GetInstance)
		r.Post("/instances/{id}/status", h.SetInstanceStatus)

		// Tasks
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/transition", h.TransitionTask)
		r.Get("/tasks/{id}/events", h.ListTaskEvents)

		// Deployments
		r.Post("/deployments", h.CreateDeployment)
		r.Get("/deployments", h.ListDeployments)
		r.Get("/deployments/{id}", h.GetDeployment)
		r.Post("/deployments/{id}/activate", h.ActivateDeployment)
		r.Post("/deployments/{id}/rollback", h.RollbackDeployment)
		r.Get("/deployments/{id}/history", h.DeploymentHistory)

		// Approvals
		r.Get("/approvals", h.ListOpenApprovals)
		r.Get("/approvals/{id}", h.GetApproval)
		r.Post("/approvals/{id}/decide", h.DecideApproval)

		// Migration
		r.Post("/migrations/backfill", h.RunBackfill)
		r.Get("/migrations/health", h.MigrationHealth)

		// Tenants
		r.Post("/tenants", h.CreateTenant)
		r.Get("/tenants", h.ListTenants)
		r.Get("/tenants/{id}", h.GetTenant)
		r.Put("/tenants/{id}", h.UpdateTenant)
	})
}
