// Package clockutil wraps jonboulle/clockwork so the dampening and
// recurring-action timers in internal/attrd and internal/execd can be driven
// by a fake clock in tests instead of real sleeps.
package clockutil

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a cancelable, re-armable one-shot timer built on a clockwork.Clock.
// It is the clockwork equivalent of time.AfterFunc: exactly one fire per arm,
// and Stop after fire is a safe no-op.
type Timer struct {
	clock clockwork.Clock

	mu      sync.Mutex
	stopCh  chan struct{}
	armedAt uint64 // generation counter guards against stale fires after Reset
}

// NewTimer creates an unarmed Timer against the given clock.
func NewTimer(clock clockwork.Clock) *Timer {
	return &Timer{clock: clock}
}

// Arm (re)schedules fn to run after d, replacing any previously armed fire.
// fn runs on its own goroutine.
func (t *Timer) Arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopCh != nil {
		close(t.stopCh)
	}
	stopCh := make(chan struct{})
	t.stopCh = stopCh
	t.armedAt++
	generation := t.armedAt

	go func() {
		select {
		case <-t.clock.After(d):
			t.mu.Lock()
			stillCurrent := generation == t.armedAt
			if stillCurrent {
				t.stopCh = nil // fired: nothing is scheduled any more
			}
			t.mu.Unlock()
			if stillCurrent {
				fn()
			}
		case <-stopCh:
		}
	}()
}

// Stop disarms the timer; a pending fire (if any) is suppressed.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
	t.armedAt++
}

// Armed reports whether a fire is currently scheduled.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCh != nil
}
