package execd

import "context"

// command is one unit of work crossing into the engine's serializing loop.
type command struct {
	submit *submitCmd
	cancel *cancelCmd
}

type submitCmd struct {
	action *Action
	result chan error
}

type cancelCmd struct {
	id     Identity
	result chan bool
}

// Loop serializes external Submit/Cancel calls onto a single goroutine, the
// Go expression of the original's single-threaded cooperative event loop
// (§5). Completion callbacks (child-exit, bus-call-return) still run on
// their own goroutines exactly as dispatchLocked starts them — like the
// original, only the bookkeeping tables are loop-owned, not every I/O wait.
// Modeled on a register/unregister/broadcast-channel hub drained by one
// select loop; generalized from three channels to one command struct since
// execd's command set is wider than a hub's three verbs.
type Loop struct {
	engine *Engine
	cmds   chan command
	done   chan struct{}
}

// NewLoop wraps engine with a command channel. Run must be started before
// Submit/Cancel are called.
func NewLoop(engine *Engine) *Loop {
	return &Loop{
		engine: engine,
		cmds:   make(chan command, 64),
		done:   make(chan struct{}),
	}
}

// Run drains the command channel until ctx is cancelled, exactly as
// MonitorHub.Run drains its three channels until its done channel closes.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case cmd := <-l.cmds:
			switch {
			case cmd.submit != nil:
				err := l.engine.Submit(cmd.submit.action)
				cmd.submit.result <- err
			case cmd.cancel != nil:
				ok := l.engine.Cancel(cmd.cancel.id)
				cmd.cancel.result <- ok
			}
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues a onto the loop and blocks only until validation (§4.2
// step 1) has run, so a caller (e.g. internal/api) can report a bad
// submission back synchronously; it does not wait for dispatch or
// completion.
func (l *Loop) Submit(a *Action) error {
	result := make(chan error, 1)
	select {
	case l.cmds <- command{submit: &submitCmd{action: a, result: result}}:
	case <-l.done:
		return context.Canceled
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		return context.Canceled
	}
}

// Cancel targets identity id and blocks for the loop's synchronous answer
// (§4.2 "Cancellation" reports success/failure immediately).
func (l *Loop) Cancel(id Identity) bool {
	result := make(chan bool, 1)
	select {
	case l.cmds <- command{cancel: &cancelCmd{id: id, result: result}}:
	case <-l.done:
		return false
	}
	select {
	case ok := <-result:
		return ok
	case <-l.done:
		return false
	}
}
