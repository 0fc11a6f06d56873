package execd

import (
	"time"

	"clusterd/internal/clockutil"
)

// recurEntry is the recurring-table row for one identity (§3, §9 "Cyclic
// reference (action ↔ recurring table)"). The entry owns the repeat timer
// and the current action; breaking the cycle the original has (action
// pointing back into the table) by keeping the table keyed by identity
// string rather than by pointer.
type recurEntry struct {
	identity Identity
	action   *Action // the currently running or most recently submitted action
	running  bool
	timer    *clockutil.Timer
}

// submitRecurringLocked implements §4.2 "Recurring schedule" duplicate
// handling. Caller holds e.mu.
func (e *Engine) submitRecurringLocked(a *Action) {
	key := a.Identity.Key()
	entry, exists := e.recur[key]
	if !exists {
		entry = &recurEntry{identity: a.Identity, timer: clockutil.NewTimer(e.clock)}
		e.recur[key] = entry
		entry.action = a
		entry.running = true
		e.sequence++
		a.SequenceNo = e.sequence
		e.enqueueLocked(a)
		return
	}

	// Duplicate submission: replace callback/user-data on the existing
	// entry's action; the new descriptor (a) is discarded after the merge.
	wasRunning := entry.running
	entry.action.Callback = a.Callback
	entry.action.UserData = a.UserData
	entry.action.Parameters = a.Parameters
	entry.action.Cancel = false

	if wasRunning {
		// Only the repeat timer is stopped here. The in-flight action's own
		// completion path (onRecurringComplete) re-arms it on the normal
		// interval; no extra one-shot run is scheduled for the duplicate.
		entry.timer.Stop()
	}
	// If idle, no immediate fire needed: the replaced callback takes effect
	// on the next scheduled fire, already armed by the prior completion.
}

// onRecurringComplete implements the re-arm half of §4.2 "Recurring
// schedule": on completion of an action that was not cancelled, arm a timer
// for max(interval_ms, 0) that re-dispatches through the normal submission
// path when it fires.
func (e *Engine) onRecurringComplete(a *Action, result Result) {
	if a.IntervalMs <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := a.Identity.Key()
	entry, ok := e.recur[key]
	if !ok || entry.action != a {
		return
	}
	entry.running = false

	if a.Cancel || result.Status == StatusCancelled {
		delete(e.recur, key)
		return
	}

	interval := time.Duration(a.IntervalMs) * time.Millisecond
	if interval < 0 {
		interval = 0
	}
	entry.timer.Arm(interval, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		current, ok := e.recur[key]
		if !ok || current.action.Cancel {
			return
		}
		next := &Action{
			Identity:   current.action.Identity,
			Class:      current.action.Class,
			Agent:      current.action.Agent,
			Parameters: current.action.Parameters,
			TimeoutMs:  current.action.TimeoutMs,
			Callback:   current.action.Callback,
			UserData:   current.action.UserData,
		}
		current.action = next
		current.running = true
		e.sequence++
		next.SequenceNo = e.sequence
		e.enqueueLocked(next)
	})
}

// cancelRecurring implements §4.2 "Cancellation" for a recurring identity.
func (e *Engine) cancelRecurring(id Identity) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := id.Key()
	entry, ok := e.recur[key]
	if !ok {
		return false
	}

	entry.action.Cancel = true
	entry.timer.Stop()
	delete(e.recur, key)

	a := entry.action
	switch {
	case !entry.running:
		// Idle: synthesize a completion with status cancelled, invoke the
		// callback, free the entry. The action already fired for its last
		// run, so the terminal guard is reset to let this completion through.
		a.fired = false
		a.fire(Result{Status: StatusCancelled})
		return true

	case a.Class.Kind.UsesDirectProcess():
		// A live child process: cancel its context, which os/exec turns
		// into a kill signal to the child; the completion path (queue.go's
		// complete) observes ctx.Err and reports status cancelled once the
		// process actually exits. Reports success conditional on there
		// being a live process to signal.
		if a.killFunc != nil {
			a.killFunc()
			return true
		}
		return false

	default:
		// Service-bus: cannot force termination. Mark and return failure;
		// the in-flight call still completes normally and will report
		// cancelled once it does (Open Question 2, resolved in DESIGN.md).
		return false
	}
}
