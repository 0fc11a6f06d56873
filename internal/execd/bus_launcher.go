package execd

import (
	"context"
	"time"
)

// ServiceBus is the narrow seam between a service-bus class (A or B) and
// whatever system actually owns that unit's lifecycle (init system, service
// manager). The executor only ever calls Call; it never knows what backend
// answers it.
type ServiceBus interface {
	// Call invokes operation against unit with parameters and returns the
	// terminal status plus any output text. A bus call has no stdin/stdout in
	// the os/exec sense, so Result.Stdout/Stderr carry whatever diagnostic
	// text the bus chooses to report.
	Call(ctx context.Context, kind ClassKind, unit, operation string, parameters map[string]string) (Status, string, error)
}

// BusLauncher adapts a ServiceBus to the Launcher interface so queue.go can
// treat service-bus actions identically to direct-process ones.
type BusLauncher struct {
	Bus ServiceBus
}

func (l BusLauncher) Launch(ctx context.Context, d Descriptor, timeout time.Duration) Result {
	start := time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	unit := d.Env["unit"]
	operation := d.Env["operation"]
	status, output, err := l.Bus.Call(runCtx, d.busKind(), unit, operation, d.Env)
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Status: StatusTimedOut, Stderr: output, Elapsed: elapsed}
	}
	if err != nil {
		return Result{Status: StatusErrorGeneric, Stderr: err.Error(), Elapsed: elapsed}
	}
	return Result{Status: status, Stdout: output, Elapsed: elapsed}
}

// busKind is threaded through as an Env entry by BuildDescriptor since Descriptor
// itself carries no class field (it is built from, but decoupled from, the
// Action it came from).
func (d Descriptor) busKind() ClassKind {
	return ClassKind(d.Env["__bus_kind"])
}
