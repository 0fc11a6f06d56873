package api

import (
	"encoding/json"
	"net/http"
	"time"

	"clusterd/internal/execd"
)

// AlertsHandler exposes a trigger endpoint for the event kinds this core
// does not itself originate: node membership and fencing outcomes arrive
// from the main event loop / fencing subsystem, both out-of-scope
// collaborators (§1), so whichever process owns those events drives §4.2
// "Alert dispatch" through this endpoint instead of reaching into component
// B directly.
type AlertsHandler struct {
	engine  *execd.Engine
	entries func() []execd.AlertEntry
}

// NewAlertsHandler builds a handler backed by engine. entries is called on
// every request so a live reconfiguration of the alert entry list (e.g. a
// reload) is picked up without restarting the handler.
func NewAlertsHandler(engine *execd.Engine, entries func() []execd.AlertEntry) *AlertsHandler {
	return &AlertsHandler{engine: engine, entries: entries}
}

// alertDispatchRequest is the wire shape of an external event trigger.
type alertDispatchRequest struct {
	Kind       string            `json:"kind"` // node | attribute | fencing | resource
	Attribute  string            `json:"attribute"`
	Parameters map[string]string `json:"parameters"`
}

var eventKindsByName = map[string]execd.EventKind{
	"node":      execd.KindNode,
	"attribute": execd.KindAttribute,
	"fencing":   execd.KindFencing,
	"resource":  execd.KindResource,
}

// Dispatch handles POST /api/alerts/dispatch.
func (h *AlertsHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req alertDispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	kind, ok := eventKindsByName[req.Kind]
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown event kind", nil)
		return
	}

	outcome := h.engine.DispatchAlerts(r.Context(), kind, req.Attribute, h.entries(), req.Parameters, time.Now(), nil)
	respondJSON(w, http.StatusOK, map[string]interface{}{"outcome": outcome})
}
