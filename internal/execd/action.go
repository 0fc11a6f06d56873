package execd

import (
	"time"

	"clusterd/internal/ids"
)

// State is a resource action's lifecycle state (§3).
type State string

const (
	StatePending        State = "pending"
	StateBlocked        State = "blocked"
	StateInFlight       State = "in-flight"
	StateCancelRequested State = "cancel-requested"
	StateCompleted      State = "completed"
)

// Status is the terminal disposition of a completed action (§4.2 "Result
// and error semantics").
type Status string

const (
	StatusDone          Status = "done"
	StatusCancelled     Status = "cancelled"
	StatusTimedOut      Status = "timed-out"
	StatusNotInstalled  Status = "not-installed"
	StatusNotConfigured Status = "not-configured"
	StatusErrorHard     Status = "error-hard"
	StatusErrorGeneric  Status = "error-generic"
	StatusPending       Status = "pending"
)

// Result is populated on completion.
type Result struct {
	ExitCode int
	Status   Status
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
}

// Callback is invoked exactly once, on the terminal transition, per §9
// "Callback lifetime". UserData is opaque to the executor.
type Callback func(a *Action, result Result, userData interface{})

// Identity is the (rsc_id, operation, interval_ms) triple used for
// deduplication and cancellation (§3, §6.5).
type Identity struct {
	RscID      string
	Operation  string
	IntervalMs int64
}

// Key formats the canonical operation identity string (§6.5).
func (id Identity) Key() string {
	return ids.OperationKey(id.RscID, id.Operation, id.IntervalMs)
}

// Action represents one invocation of one operation on one resource (§3).
type Action struct {
	Identity

	Class      Class
	Agent      string
	Parameters map[string]string
	TimeoutMs  int64

	SequenceNo  uint64
	State       State
	Result      Result
	Synchronous bool
	Callback    Callback
	UserData    interface{}

	Cancel bool

	fired      bool               // terminal-state guard (§9 "forbid duplicate firing")
	killFunc   func()             // set by queue.go for every dispatched action; cancels its launch context
}

// fire invokes Callback exactly once and marks the action terminal. The one
// exception is recurring.go's idle cancel, which resets the guard so that a
// recurring action that already completed can report its cancellation.
func (a *Action) fire(result Result) {
	if a.fired {
		return
	}
	a.fired = true
	a.State = StateCompleted
	a.Result = result
	if a.Callback != nil {
		a.Callback(a, result, a.UserData)
	}
}
