package http

import (
	"net/http"

	"github.com/wardenhq/warden/internal/domain/event"
	"github.com/wardenhq/warden/internal/domain/task"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/service"
)

// CreateTask handles POST /api/v1/tasks.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Tasks.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "task creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTasks handles GET /api/v1/tasks?project_id=...
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Tasks.List(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		writeDomainError(w, err, "task list failed")
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// TransitionTask handles POST /api/v1/tasks/{id}/transition. The
// Idempotency-Key header (or the body field) makes retries safe. A
// transition held for approval answers 202 with the approval ID.
func (h *Handlers) TransitionTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.TransitionRequest](w, r)
	if !ok {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(middleware.IdempotencyKeyHeader)
	}

	res, err := h.Tasks.Transition(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	status := http.StatusOK
	if res.ApprovalID != "" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// ListTaskEvents handles GET /api/v1/tasks/{id}/events.
func (h *Handlers) ListTaskEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Tasks.ListEvents(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "event list failed")
		return
	}
	if events == nil {
		events = []event.TaskEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
