package http

import (
	"net/http"

	"github.com/wardenhq/warden/internal/domain/control"
	"github.com/wardenhq/warden/internal/service"
)

// EvaluateAction handles POST /api/v1/actions/evaluate.
func (h *Handlers) EvaluateAction(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.ActionRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Tool, "tool") {
		return
	}
	if req.InstanceID == "" && req.LegacyAgentID == "" {
		writeError(w, http.StatusBadRequest, "instance_id or legacy_agent_id is required")
		return
	}

	verdict, err := h.Gatekeeper.EvaluateAction(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type gateRequest struct {
	ProjectID string `json:"project_id,omitempty"`
	ActorType string `json:"actor_type"`
	Operation string `json:"operation"`
}

// Gate handles POST /api/v1/gate: a dry-run gate check with no side
// effects, used by agent runtimes before starting work.
func (h *Handlers) Gate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[gateRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.ActorType, "actor_type") || !requireField(w, req.Operation, "operation") {
		return
	}

	var actor control.ActorKind
	switch control.ActorKind(req.ActorType) {
	case control.ActorAgent, control.ActorHuman, control.ActorSystem:
		actor = control.ActorKind(req.ActorType)
	default:
		writeError(w, http.StatusBadRequest, "actor_type must be AGENT, HUMAN, or SYSTEM")
		return
	}

	var op control.Operation
	switch control.Operation(req.Operation) {
	case control.OpRunStart, control.OpTransition, control.OpToolCall:
		op = control.Operation(req.Operation)
	default:
		writeError(w, http.StatusBadRequest, "operation must be RUN_START, TRANSITION, or TOOL_CALL")
		return
	}

	verdict, err := h.Controls.Gate(r.Context(), req.ProjectID, actor, op)
	if err != nil {
		writeDomainError(w, err, "gate check failed")
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}
