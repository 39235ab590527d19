package http

import (
	"net/http"

	"github.com/wardenhq/warden/internal/domain/deployment"
)

// CreateDeployment handles POST /api/v1/deployments.
func (h *Handlers) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[deployment.CreateRequest](w, r)
	if !ok {
		return
	}

	d, err := h.Deployments.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "deployment creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GetDeployment handles GET /api/v1/deployments/{id}.
func (h *Handlers) GetDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := h.Deployments.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListDeployments handles GET /api/v1/deployments?environment_id=...
func (h *Handlers) ListDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := h.Deployments.List(r.Context(), r.URL.Query().Get("environment_id"))
	if err != nil {
		writeDomainError(w, err, "deployment list failed")
		return
	}
	if deployments == nil {
		deployments = []deployment.Deployment{}
	}
	writeJSON(w, http.StatusOK, deployments)
}

type deploymentActorRequest struct {
	ActorID string `json:"actor_id,omitempty"`
}

// ActivateDeployment handles POST /api/v1/deployments/{id}/activate.
// Activation retires any other active deployment in the same environment.
func (h *Handlers) ActivateDeployment(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSONOptional[deploymentActorRequest](w, r)
	if !ok {
		return
	}

	d, err := h.Deployments.Activate(r.Context(), urlParam(r, "id"), req.ActorID)
	if err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RollbackDeployment handles POST /api/v1/deployments/{id}/rollback.
func (h *Handlers) RollbackDeployment(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSONOptional[deploymentActorRequest](w, r)
	if !ok {
		return
	}

	d, err := h.Deployments.Rollback(r.Context(), urlParam(r, "id"), req.ActorID)
	if err != nil {
		writeDomainError(w, err, "deployment not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeploymentHistory handles GET /api/v1/deployments/{id}/history.
func (h *Handlers) DeploymentHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Deployments.History(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "deployment history lookup failed")
		return
	}
	if history == nil {
		history = []deployment.ChangeRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}
