package http

import (
	"net/http"

	"github.com/wardenhq/warden/internal/service"
)

// RunBackfill handles POST /api/v1/migrations/backfill. Each call
// processes one chunk; callers loop, feeding the returned offsets back,
// until done is true.
func (h *Handlers) RunBackfill(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.BackfillRequest](w, r)
	if !ok {
		return
	}

	result, err := h.Backfill.Run(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "backfill run failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// MigrationHealth handles GET /api/v1/migrations/health, reporting the
// number of rows still missing dual-write identity fields.
func (h *Handlers) MigrationHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.Backfill.Health(r.Context())
	if err != nil {
		writeDomainError(w, err, "migration health check failed")
		return
	}
	writeJSON(w, http.StatusOK, health)
}
