package http

import (
	"net/http"

	"github.com/wardenhq/warden/internal/domain/approval"
)

// ListOpenApprovals handles GET /api/v1/approvals?project_id=...
// Stale PENDING approvals are expired on read.
func (h *Handlers) ListOpenApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := h.Approvals.ListOpen(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		writeDomainError(w, err, "approval list failed")
		return
	}
	if approvals == nil {
		approvals = []approval.Approval{}
	}
	writeJSON(w, http.StatusOK, approvals)
}

// GetApproval handles GET /api/v1/approvals/{id}.
func (h *Handlers) GetApproval(w http.ResponseWriter, r *http.Request) {
	a, err := h.Approvals.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type decideApprovalRequest struct {
	Decision  string `json:"decision"`
	DecidedBy string `json:"decided_by"`
	Note      string `json:"note,omitempty"`
}

// DecideApproval handles POST /api/v1/approvals/{id}/decide. Deciding a
// request twice returns 409; a decision on an expired request records
// the expiry instead.
func (h *Handlers) DecideApproval(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decideApprovalRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Decision, "decision") || !requireField(w, req.DecidedBy, "decided_by") {
		return
	}

	a, err := h.Approvals.Decide(r.Context(), urlParam(r, "id"), approval.Decision(req.Decision), req.DecidedBy, req.Note)
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}
