package api

import (
	"github.com/gorilla/mux"

	"clusterd/internal/attrd"
	"clusterd/internal/execd"
)

// NewRouter builds the local IPC HTTP surface (§6.1), mounting component A
// and B's handlers at /api/attrd/* and /api/execd/* with one mux.Router and
// one method-restricted HandleFunc per endpoint.
//
// execEngine/alertEntries, if non-nil, additionally mount /api/alerts/dispatch
// so node-membership and fencing events (owned by out-of-scope collaborators,
// §1) can drive §4.2 "Alert dispatch" through component B.
func NewRouter(attrdEngine *attrd.Engine, execdLoop *execd.Loop, execEngine *execd.Engine, alertEntries func() []execd.AlertEntry) *mux.Router {
	r := mux.NewRouter()

	a := NewAttrdHandler(attrdEngine)
	r.HandleFunc("/api/attrd/update", a.Update).Methods("POST")
	r.HandleFunc("/api/attrd/refresh", a.Refresh).Methods("POST")
	r.HandleFunc("/api/attrd/peer-remove", a.PeerRemove).Methods("POST")
	r.HandleFunc("/api/attrd/clear-failure", a.ClearFailure).Methods("POST")

	e := NewExecdHandler(execdLoop)
	r.HandleFunc("/api/execd/submit", e.Submit).Methods("POST")
	r.HandleFunc("/api/execd/cancel", e.Cancel).Methods("POST")

	if execEngine != nil && alertEntries != nil {
		al := NewAlertsHandler(execEngine, alertEntries)
		r.HandleFunc("/api/alerts/dispatch", al.Dispatch).Methods("POST")
	}

	return r
}
