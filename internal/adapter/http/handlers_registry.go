package http

import (
	"net/http"

	"github.com/wardenhq/warden/internal/domain/registry"
	"github.com/wardenhq/warden/internal/service"
)

// ResolveAgent handles POST /api/v1/agents/resolve. It maps any agent
// reference (instance ID or legacy agent ID) to its registry triple,
// materializing records on first sight when create_if_missing is set.
func (h *Handlers) ResolveAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.ResolveRequest](w, r)
	if !ok {
		return
	}
	if req.InstanceID == "" && req.LegacyAgentID == "" {
		writeError(w, http.StatusBadRequest, "instance_id or legacy_agent_id is required")
		return
	}

	triple, err := h.Registry.Resolve(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, triple)
}

type versionStatusRequest struct {
	Status string `json:"status"`
}

// AdvanceVersionStatus handles POST /api/v1/versions/{id}/status.
func (h *Handlers) AdvanceVersionStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[versionStatusRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Status, "status") {
		return
	}

	ver, err := h.Registry.AdvanceVersionStatus(r.Context(), urlParam(r, "id"), registry.VersionStatus(req.Status))
	if err != nil {
		writeDomainError(w, err, "version not found")
		return
	}
	writeJSON(w, http.StatusOK, ver)
}

// GetInstance handles GET /api/v1/instances/{id}.
func (h *Handlers) GetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.Registry.GetInstance(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type instanceStatusRequest struct {
	Status string `json:"status"`
}

// SetInstanceStatus handles POST /api/v1/instances/{id}/status.
func (h *Handlers) SetInstanceStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[instanceStatusRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Status, "status") {
		return
	}

	inst, err := h.Registry.SetInstanceStatus(r.Context(), urlParam(r, "id"), registry.InstanceStatus(req.Status))
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}
