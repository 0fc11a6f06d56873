package execd

import (
	"context"
	"fmt"
)

// UnconfiguredServiceBus is the default ServiceBus wired when no real
// system-service-bus backend is configured: every call fails with a
// not-installed status rather than panicking, since service-bus classes
// are only reachable when an operator actually configures bus units for
// them (§1 "out of scope": the real bus backend is an external
// collaborator this core only depends on through the ServiceBus seam).
type UnconfiguredServiceBus struct{}

func (UnconfiguredServiceBus) Call(ctx context.Context, kind ClassKind, unit, operation string, parameters map[string]string) (Status, string, error) {
	return StatusNotInstalled, fmt.Sprintf("execd: no %s backend configured for unit %s", kind, unit), nil
}

var _ ServiceBus = UnconfiguredServiceBus{}
