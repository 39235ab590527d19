package http

import (
	"net/http"

	"github.com/wardenhq/warden/internal/domain/policy"
)

// CreateEnvelope handles POST /api/v1/policies/envelopes.
func (h *Handlers) CreateEnvelope(w http.ResponseWriter, r *http.Request) {
	env, ok := readJSON[policy.Envelope](w, r)
	if !ok {
		return
	}

	if err := h.Policies.CreateEnvelope(r.Context(), &env); err != nil {
		writeDomainError(w, err, "envelope creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

// GetEnvelope handles GET /api/v1/policies/envelopes/{id}.
func (h *Handlers) GetEnvelope(w http.ResponseWriter, r *http.Request) {
	env, err := h.Policies.GetEnvelope(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "envelope not found")
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// ListEnvelopes handles GET /api/v1/policies/envelopes?scope_kind=&scope_id=
func (h *Handlers) ListEnvelopes(w http.ResponseWriter, r *http.Request) {
	ref := policy.ScopeRef{
		Kind: policy.ScopeKind(r.URL.Query().Get("scope_kind")),
		ID:   r.URL.Query().Get("scope_id"),
	}
	if ref.Kind == "" || ref.ID == "" {
		writeError(w, http.StatusBadRequest, "scope_kind and scope_id are required")
		return
	}

	envelopes, err := h.Policies.ListEnvelopes(r.Context(), ref)
	if err != nil {
		writeDomainError(w, err, "envelope list failed")
		return
	}
	if envelopes == nil {
		envelopes = []policy.Envelope{}
	}
	writeJSON(w, http.StatusOK, envelopes)
}

// UpdateEnvelope handles PUT /api/v1/policies/envelopes/{id}.
func (h *Handlers) UpdateEnvelope(w http.ResponseWriter, r *http.Request) {
	env, ok := readJSON[policy.Envelope](w, r)
	if !ok {
		return
	}
	env.ID = urlParam(r, "id")

	if err := h.Policies.UpdateEnvelope(r.Context(), &env); err != nil {
		writeDomainError(w, err, "envelope not found")
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// DeleteEnvelope handles DELETE /api/v1/policies/envelopes/{id}.
func (h *Handlers) DeleteEnvelope(w http.ResponseWriter, r *http.Request) {
	if err := h.Policies.DeleteEnvelope(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "envelope not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
