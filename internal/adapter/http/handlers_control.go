package http

import (
	"net/http"
	"strconv"

	"github.com/wardenhq/warden/internal/domain/control"
)

type setModeRequest struct {
	ProjectID string `json:"project_id,omitempty"`
	Mode      string `json:"mode"`
	Reason    string `json:"reason,omitempty"`
	SetBy     string `json:"set_by"`
}

// SetControlMode handles POST /api/v1/controls.
func (h *Handlers) SetControlMode(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[setModeRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Mode, "mode") {
		return
	}

	rec, err := h.Controls.SetMode(r.Context(), req.ProjectID, control.Mode(req.Mode), req.Reason, req.SetBy)
	if err != nil {
		writeDomainError(w, err, "control update failed")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GetEffectiveMode handles GET /api/v1/controls/effective?project_id=...
func (h *Handlers) GetEffectiveMode(w http.ResponseWriter, r *http.Request) {
	eff, err := h.Controls.EffectiveMode(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		writeDomainError(w, err, "effective mode lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, eff)
}

// ListControls handles GET /api/v1/controls?limit=N (mode-change history,
// newest first).
func (h *Handlers) ListControls(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := h.Controls.History(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err, "control history lookup failed")
		return
	}
	if records == nil {
		records = []control.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}
