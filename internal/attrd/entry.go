// Package attrd implements the attribute-aggregation daemon core (component
// A): a per-node table of named attributes, each converging under a
// dampening timer before being broadcast to peers and committed to the
// configuration store.
package attrd

import "clusterd/internal/clockutil"

// DampenState is an attribute entry's position in the convergence state
// machine (§4.1 "Dampening state machine").
type DampenState string

const (
	StateIdle       DampenState = "idle"
	StateArmed      DampenState = "armed"
	StateCommitting DampenState = "committing"
)

// Entry is one named attribute on the local node (§3 "Attribute entry").
// The engine hosts entries in a map keyed by name; nothing here is a
// package-level global (§9 "Global tables").
type Entry struct {
	Name    string
	Set     string
	Section string
	HostKey string

	CurrentValue   *string // nil means "delete"
	CommittedValue *string
	DampenMs       int64
	ActingUser     string

	State         DampenState
	pendingRefire bool // set when a new value arrives while a commit is in flight
	timer         *clockutil.Timer
}

// valuesEqual reports whether a and b are both nil or both point to equal
// strings — the "value-preserving" comparison §4.1's update() contract uses
// to decide whether to do anything at all.
func valuesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// needsCommit reports whether current_value differs from committed_value
// (§3 invariant: equal implies no outstanding commit required).
func (e *Entry) needsCommit() bool {
	return !valuesEqual(e.CurrentValue, e.CommittedValue)
}
