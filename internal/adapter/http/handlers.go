package http

import (
	"net/http"

	"github.com/wardenhq/warden/internal/adapter/ws"
	"github.com/wardenhq/warden/internal/port/messagequeue"
	"github.com/wardenhq/warden/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Gatekeeper  *service.GatekeeperService
	Controls    *service.ControlService
	Policies    *service.PolicyService
	Registry    *service.RegistryService
	Tasks       *service.TaskService
	Deployments *service.DeploymentService
	Approvals   *service.ApprovalService
	Backfill    *service.BackfillService
	Tenants     *service.TenantService
	Hub         *ws.Hub
	Queue       messagequeue.Queue
}

// Health handles GET /health. It reports degraded when the message bus
// connection is down; the database is implicitly covered by serving
// traffic at all.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.Queue != nil && !h.Queue.IsConnected() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// HandleWS handles GET /ws, upgrading to the event-stream websocket.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		writeError(w, http.StatusNotImplemented, "websocket hub not configured")
		return
	}
	h.Hub.HandleWS(w, r)
}
