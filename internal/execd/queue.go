package execd

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"clusterd/internal/logging"
)

var log = logging.For("execd")

// Engine owns the process-wide tables §9 requires to be hosted explicitly
// rather than as hidden globals: the in-flight list, the blocked list, and
// (via recurring.go) the recurring table: a mutex-guarded map plus explicit
// methods, no package-level state, generalized from a node table to an
// action queue.
type Engine struct {
	mu sync.Mutex

	agentPath func(a *Action) string
	discover  Discoverer
	launcher  Launcher
	busLauncher Launcher
	clock     clockwork.Clock

	inFlight map[string]*Action   // rsc_id -> the one action currently running for it
	blocked  []*Action            // submissions waiting on a busy rsc_id, FIFO
	recur    map[string]*recurEntry // identity key -> recurring entry (recurring.go)

	draining bool // re-entrant drain guard (§9 "Re-entrant blocked-queue drain")

	alertEntries []AlertEntry // auto-notified of every completed resource action (§4.2 "Alert dispatch")

	sequence uint64
}

// NewEngine constructs an Engine. agentPath resolves an action's agent name
// to its on-disk path for direct-process classes; discover answers
// service-alias probes; launcher runs direct-process descriptors; busLauncher
// runs service-bus descriptors.
func NewEngine(agentPath func(a *Action) string, discover Discoverer, launcher, busLauncher Launcher, clock clockwork.Clock) *Engine {
	return &Engine{
		agentPath:   agentPath,
		discover:    discover,
		launcher:    launcher,
		busLauncher: busLauncher,
		clock:       clock,
		inFlight:    make(map[string]*Action),
		recur:       make(map[string]*recurEntry),
	}
}

// SetAlertEntries configures the alert entries automatically notified when
// a resource action completes (§4.2 "Alert dispatch", event kind resource).
// Safe to call at any time; takes effect for completions observed after the
// call returns.
func (e *Engine) SetAlertEntries(entries []AlertEntry) {
	e.mu.Lock()
	e.alertEntries = entries
	e.mu.Unlock()
}

// Submit enqueues a new action per §4.2 "Queueing and serialization". For
// recurring submissions (IntervalMs > 0) dispatch is routed through
// recurring.go's dedup/coalesce rules instead of straight to the queue.
// Validation (§4.2 step 1) runs first and fails fast without mutating any
// table.
func (e *Engine) Submit(a *Action) error {
	if err := a.Validate(); err != nil {
		log.WithField("rsc_id", a.RscID).WithField("operation", a.Operation).Warn("execd: " + err.Error())
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if a.Class.Kind == ClassServiceAlias {
		a.Class.Kind = ResolveAlias(e.discover, a.Agent)
	}

	if a.IntervalMs > 0 {
		e.submitRecurringLocked(a)
		return nil
	}

	e.sequence++
	a.SequenceNo = e.sequence
	e.enqueueLocked(a)
	return nil
}

// enqueueLocked implements the dispatch-or-block decision. Caller holds e.mu.
func (e *Engine) enqueueLocked(a *Action) {
	if a.RscID != "" {
		if _, busy := e.inFlight[a.RscID]; busy {
			a.State = StateBlocked
			e.blocked = append(e.blocked, a)
			return
		}
	}
	e.dispatchLocked(a)
}

// dispatchLocked starts execution of a. Caller holds e.mu.
func (e *Engine) dispatchLocked(a *Action) {
	a.State = StateInFlight
	if a.RscID != "" && !a.Synchronous {
		e.inFlight[a.RscID] = a
	}

	d, err := BuildDescriptor(a, e.agentPath(a))
	if err != nil {
		log.WithField("rsc_id", a.RscID).WithField("operation", a.Operation).Error("execd: " + err.Error())
		go e.complete(a, Result{Status: StatusErrorGeneric, Stderr: err.Error()})
		return
	}

	launcher := e.launcher
	if d.IsBus {
		launcher = e.busLauncher
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.killFunc = cancel

	timeout := time.Duration(a.TimeoutMs) * time.Millisecond
	go func() {
		result := launcher.Launch(ctx, d, timeout)
		cancel()
		e.complete(a, result)
	}()
}

// complete is the child-exit / bus-call-return callback: it fires the
// action's own callback, removes it from the in-flight list, and drains the
// blocked list, then hands off to recurring.go if the action recurs.
func (e *Engine) complete(a *Action, result Result) {
	if a.Cancel && result.Status != StatusTimedOut {
		result.Status = StatusCancelled
	}

	a.fire(result)

	e.mu.Lock()
	if a.RscID != "" {
		if current, ok := e.inFlight[a.RscID]; ok && current == a {
			delete(e.inFlight, a.RscID)
		}
	}
	e.drainBlockedLocked()
	alertEntries := e.alertEntries
	e.mu.Unlock()

	e.onRecurringComplete(a, result)

	// Drive §4.2's resource-operation alert event off every completion
	// except an alert agent's own (Provider=="alert") — that would recurse.
	// Only a monitor carries a ResourceEvent, so only monitors can be
	// suppressed as unremarkable probes.
	if a.Class.Provider != "alert" && len(alertEntries) > 0 {
		var ev *ResourceEvent
		if a.Operation == "monitor" {
			ev = &ResourceEvent{
				IntervalMs:  a.IntervalMs,
				ExpectedRC:  expectedExitCode(a),
				ActualRC:    result.ExitCode,
				OperationOK: result.Status == StatusDone,
			}
		}
		go e.DispatchAlerts(context.Background(), KindResource, "", alertEntries, resourceAlertParams(a, result), e.clock.Now(), ev)
	}
}

// drainBlockedLocked implements the re-entrant-safe scan from §4.2
// "Queueing and serialization" / §9 "Re-entrant blocked-queue drain": find
// the first blocked entry whose rsc_id is no longer in-flight, dispatch it,
// repeat until nothing more can be unblocked. The draining flag makes
// nested calls (a dispatch that completes synchronously and re-enters
// complete before this frame returns) a no-op; the outer frame's loop picks
// up the work instead. Caller holds e.mu.
func (e *Engine) drainBlockedLocked() {
	if e.draining {
		return
	}
	e.draining = true
	defer func() { e.draining = false }()

	for {
		idx := -1
		for i, a := range e.blocked {
			if a.RscID == "" {
				idx = i
				break
			}
			if _, busy := e.inFlight[a.RscID]; !busy {
				idx = i
				break
			}
		}
		if idx == -1 {
			return
		}
		a := e.blocked[idx]
		e.blocked = append(e.blocked[:idx], e.blocked[idx+1:]...)
		e.dispatchLocked(a)
	}
}

// Cancel implements §4.2 "Cancellation". Only identities in the recurring
// table can be cancelled (see recurring.go's cancelRecurring); for any other
// identity nothing is cancelled and Cancel returns false.
func (e *Engine) Cancel(id Identity) bool {
	return e.cancelRecurring(id)
}
