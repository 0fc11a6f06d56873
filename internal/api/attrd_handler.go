package api

import (
	"encoding/json"
	"net/http"

	"clusterd/internal/attrd"
	"clusterd/internal/ids"
)

// AttrdHandler exposes component A's update/refresh/peer-remove/clear-failure
// tasks (§6.1) over the local IPC HTTP surface: one struct per component,
// one exported method per endpoint.
type AttrdHandler struct {
	engine *attrd.Engine
}

// NewAttrdHandler builds a handler backed by engine.
func NewAttrdHandler(engine *attrd.Engine) *AttrdHandler {
	return &AttrdHandler{engine: engine}
}

// attrdRequest is the wire shape of a §6.1 client request; fields not
// relevant to a given task are simply left zero.
type attrdRequest struct {
	Attribute     string  `json:"attribute"`
	Regex         string  `json:"regex"`
	Value         *string `json:"value"` // absent ⇒ delete
	Set           string  `json:"set"`
	Section       string  `json:"section"`
	Dampen        string  `json:"dampen"`
	Host          string  `json:"host"`
	IsRemote      bool    `json:"is_remote"`
	User          string  `json:"user"`
	Resource      string  `json:"resource"`
	Operation     string  `json:"operation"`
	Interval      string  `json:"interval"`
	IgnoreLocally bool    `json:"ignore-locally"`
}

// Update handles POST /api/attrd/update.
func (h *AttrdHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req attrdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Attribute == "" {
		respondError(w, http.StatusBadRequest, "attribute is required", nil)
		return
	}

	var err error
	if req.Value == nil {
		err = h.engine.Delete(req.Attribute, req.Dampen, req.Set, req.Section, req.User)
	} else {
		err = h.engine.Update(req.Attribute, *req.Value, req.Dampen, req.Set, req.Section, req.User)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "update rejected", err)
		return
	}
	ack(w)
}

// Refresh handles POST /api/attrd/refresh.
func (h *AttrdHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.engine.Refresh()
	ack(w)
}

// PeerRemove handles POST /api/attrd/peer-remove.
func (h *AttrdHandler) PeerRemove(w http.ResponseWriter, r *http.Request) {
	var req attrdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Host == "" {
		respondError(w, http.StatusBadRequest, "host is required", nil)
		return
	}
	h.engine.PeerRemove(req.Host)
	ack(w)
}

// ClearFailure handles POST /api/attrd/clear-failure.
func (h *AttrdHandler) ClearFailure(w http.ResponseWriter, r *http.Request) {
	var req attrdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	intervalMs, err := ids.ParseDuration(req.Interval)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid interval", err)
		return
	}

	if err := h.engine.ClearFailure(attrd.ClearFailureRequest{
		Resource:   req.Resource,
		Operation:  req.Operation,
		IntervalMs: intervalMs,
		Host:       req.Host,
		ActingUser: req.User,
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "clear-failure failed", err)
		return
	}
	ack(w)
}
