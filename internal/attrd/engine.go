package attrd

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"clusterd/internal/acl"
	"clusterd/internal/bus"
	"clusterd/internal/cib"
	"clusterd/internal/clockutil"
	"clusterd/internal/ids"
	"clusterd/internal/logging"
)

var log = logging.For("attrd")

// Engine hosts the attribute table explicitly (§9 "Global tables": host
// process-wide state on a central engine value passed explicitly, never as
// package globals): a mutex-guarded map plus explicit methods, generalized
// from a node table to an attribute table with per-entry dampening timers.
type Engine struct {
	mu      sync.Mutex
	entries map[string]*Entry

	store   cib.Store
	bus     bus.Bus
	checker acl.Checker
	clock   clockwork.Clock

	hostKey        string
	defaultSection string

	onPeerReap        func(node string)
	onAttributeChange func(attr string, value *string)
}

// Config bundles an Engine's collaborators.
type Config struct {
	Store          cib.Store
	Bus            bus.Bus
	Checker        acl.Checker // may be nil: no access-control gating
	Clock          clockwork.Clock
	HostKey        string
	DefaultSection string
	OnPeerReap     func(node string)

	// OnAttributeChange, if set, is invoked (on its own goroutine) after a
	// successful commit so a caller can drive §4.2 "Alert dispatch"'s
	// attribute-change event without attrd importing execd directly.
	OnAttributeChange func(attr string, value *string)
}

// NewEngine constructs an Engine. It does not subscribe to peer broadcasts:
// remote attribute/flush messages reach the engine only when a caller passes
// them to ReceiveClusterMessage.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		entries:        make(map[string]*Entry),
		store:          cfg.Store,
		bus:            cfg.Bus,
		checker:        cfg.Checker,
		clock:          cfg.Clock,
		hostKey:           cfg.HostKey,
		defaultSection:    cfg.DefaultSection,
		onPeerReap:        cfg.OnPeerReap,
		onAttributeChange: cfg.OnAttributeChange,
	}
	if e.defaultSection == "" {
		e.defaultSection = "status"
	}
	return e
}

// lookupOrCreate returns the entry for name, creating it on first reference
// (§3 "An entry is created on first reference to name and destroyed only at
// shutdown"). Caller holds e.mu.
func (e *Engine) lookupOrCreate(name, set, section string) *Entry {
	entry, ok := e.entries[name]
	if ok {
		return entry
	}
	if section == "" {
		section = e.defaultSection
	}
	entry = &Entry{
		Name:    name,
		Set:     set,
		Section: section,
		HostKey: e.hostKey,
		State:   StateIdle,
		timer:   clockutil.NewTimer(e.clock),
	}
	e.entries[name] = entry
	return entry
}

// Update implements §4.1's update(attr, value, dampen, set, section, user)
// contract.
func (e *Engine) Update(name, value, dampen, set, section, user string) error {
	dampenMs, err := ids.ParseDuration(dampen)
	if err != nil {
		return err
	}
	if err := e.authorize(user, section); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.lookupOrCreate(name, set, section)
	if set != "" {
		entry.Set = set
	}
	if section != "" {
		entry.Section = section
	}
	entry.ActingUser = user
	entry.DampenMs = dampenMs

	expanded := ids.Expand(value, derefOrEmpty(entry.CurrentValue))
	newValue := &expanded

	if valuesEqual(newValue, entry.CurrentValue) && valuesEqual(entry.CurrentValue, entry.CommittedValue) {
		// Idempotent in value: already current and already committed.
		return nil
	}
	if entry.State == StateArmed && valuesEqual(newValue, entry.CurrentValue) {
		// "Subsequent update calls while the timer is armed and producing
		// the same new value are a no-op" — do not push the deadline out.
		return nil
	}

	entry.CurrentValue = newValue

	if dampenMs == 0 {
		e.fireLocked(entry)
		return nil
	}

	entry.State = StateArmed
	entry.timer.Arm(time.Duration(dampenMs)*time.Millisecond, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if entry.State != StateArmed {
			return
		}
		e.fireLocked(entry)
	})
	return nil
}

// Delete implements the "value absent ⇒ delete" half of §6.1's update task:
// the same dampening/authorization path as Update, but setting
// current_value to null instead of a new string.
func (e *Engine) Delete(name, dampen, set, section, user string) error {
	dampenMs, err := ids.ParseDuration(dampen)
	if err != nil {
		return err
	}
	if err := e.authorize(user, section); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.lookupOrCreate(name, set, section)
	if set != "" {
		entry.Set = set
	}
	if section != "" {
		entry.Section = section
	}
	entry.ActingUser = user
	entry.DampenMs = dampenMs

	if entry.CurrentValue == nil && entry.CommittedValue == nil {
		return nil
	}

	entry.CurrentValue = nil
	if dampenMs == 0 {
		e.fireLocked(entry)
		return nil
	}

	entry.State = StateArmed
	entry.timer.Arm(time.Duration(dampenMs)*time.Millisecond, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if entry.State != StateArmed {
			return
		}
		e.fireLocked(entry)
	})
	return nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fireLocked transitions armed -> committing: broadcast, then commit. A
// commit already in flight is never cancelled (§4.1 "a commit in flight
// when a new update arrives does not cancel"); instead the new value is
// marked to enter another dampening cycle once the in-flight commit
// completes. Caller holds e.mu.
func (e *Engine) fireLocked(entry *Entry) {
	if entry.State == StateCommitting {
		entry.pendingRefire = true
		return
	}
	entry.State = StateCommitting
	e.broadcastLocked(entry)
	go e.commit(entry)
}

// commit issues the configuration-store write and handles the
// committing->idle / committing->armed(backoff) transitions (§4.1
// "Dampening state machine").
func (e *Engine) commit(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	key := cib.Key{Section: entry.Section, Host: entry.HostKey, Set: entry.Set, Name: entry.Name}

	var err error
	if entry.CurrentValue == nil {
		err = e.store.Delete(ctx, key, entry.ActingUser)
	} else {
		err = e.store.Update(ctx, key, *entry.CurrentValue, entry.ActingUser)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err == nil {
		entry.CommittedValue = entry.CurrentValue
		entry.State = StateIdle
		if e.onAttributeChange != nil {
			go e.onAttributeChange(entry.Name, entry.CommittedValue)
		}
		if entry.pendingRefire {
			entry.pendingRefire = false
			if entry.needsCommit() {
				e.fireLocked(entry)
			}
		}
		return
	}

	if cib.IsBenign(err) {
		log.WithField("attr", entry.Name).WithField("error", err).Warn("attrd: commit deferred, retrying next converge")
		entry.State = StateArmed
		entry.timer.Arm(time.Second, func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if entry.State != StateArmed {
				return
			}
			e.fireLocked(entry)
		})
		return
	}

	log.WithField("attr", entry.Name).WithField("error", err).Error("attrd: commit failed")
	entry.State = StateArmed
}

// Refresh implements §4.1 refresh(): schedule a broadcast for every entry
// that has a non-null current or committed value.
func (e *Engine) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range e.entries {
		if entry.CurrentValue != nil || entry.CommittedValue != nil {
			e.fireLocked(entry)
		}
	}
}

// PeerRemove implements §4.1 peer_remove(node): broadcast the removal, then
// invoke the cluster-membership reap callback.
func (e *Engine) PeerRemove(node string) {
	if e.bus != nil {
		e.bus.Broadcast(bus.Envelope{Type: "attrd", Origin: e.hostKey, Task: "peer-remove", Body: map[string]string{"node": node}})
	}
	if e.onPeerReap != nil {
		e.onPeerReap(node)
	}
}

// applyRemoteFlush applies a peer's already-converged value directly,
// bypassing dampening (§4.1 "broadcast(attr)": dampen_ms<=0 commits locally
// "without awaiting echo"). This is also the entry point for genuinely
// remote `flush` cluster messages (§6.2).
func (e *Engine) applyRemoteFlush(name, value, set, section string, valueIsNull bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.lookupOrCreate(name, set, section)
	if valueIsNull {
		entry.CurrentValue = nil
	} else {
		entry.CurrentValue = &value
	}
	e.fireLocked(entry)
}
