package api

import (
	"encoding/json"
	"net/http"

	"clusterd/internal/execd"
	"clusterd/internal/ids"
)

// ExecdHandler exposes component B's submit/cancel tasks over the local IPC
// HTTP surface, mirroring AttrdHandler's shape.
type ExecdHandler struct {
	loop *execd.Loop
}

// NewExecdHandler builds a handler backed by loop.
func NewExecdHandler(loop *execd.Loop) *ExecdHandler {
	return &ExecdHandler{loop: loop}
}

// submitRequest is the wire shape of a §4.2 operation submission.
type submitRequest struct {
	RscID      string            `json:"rsc_id"`
	Class      string            `json:"class"`
	Provider   string            `json:"provider"`
	Agent      string            `json:"agent"`
	Operation  string            `json:"operation"`
	Interval   string            `json:"interval"`
	Timeout    string            `json:"timeout"`
	Parameters map[string]string `json:"parameters"`
}

// Submit handles POST /api/execd/submit.
func (h *ExecdHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	intervalMs, err := ids.ParseDuration(req.Interval)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid interval", err)
		return
	}
	timeoutMs, err := ids.ParseDuration(req.Timeout)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid timeout", err)
		return
	}

	a := &execd.Action{
		Identity: execd.Identity{
			RscID:      req.RscID,
			Operation:  req.Operation,
			IntervalMs: intervalMs,
		},
		Class:      execd.Class{Kind: execd.ClassKind(req.Class), Provider: req.Provider},
		Agent:      req.Agent,
		Parameters: req.Parameters,
		TimeoutMs:  timeoutMs,
	}

	if err := h.loop.Submit(a); err != nil {
		respondError(w, http.StatusBadRequest, "submission rejected", err)
		return
	}
	ack(w)
}

// cancelRequest is the wire shape of a §4.2 cancellation targeting an
// identity (§6.5).
type cancelRequest struct {
	RscID     string `json:"rsc_id"`
	Operation string `json:"operation"`
	Interval  string `json:"interval"`
}

// Cancel handles POST /api/execd/cancel.
func (h *ExecdHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	intervalMs, err := ids.ParseDuration(req.Interval)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid interval", err)
		return
	}

	ok := h.loop.Cancel(execd.Identity{RscID: req.RscID, Operation: req.Operation, IntervalMs: intervalMs})
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": ok})
}
