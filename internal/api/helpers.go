// Package api exposes the local IPC surface (§6.1) as a gorilla/mux router:
// one handler struct per component (one struct per subsystem, shared
// respondJSON/respondError helpers).
package api

import (
	"encoding/json"
	"net/http"
)

// respondJSON sends a JSON response with the given status code and payload.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

// ack sends a successful no-content reply: status 204 and no body.
func ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
