package execd

// Class is a closed sum type over the agent transport families §9 asks for,
// replacing the original's string-comparison-plus-conditional-compilation
// dispatch. Each variant below carries only the fields its transport needs;
// BuildDescriptor (descriptor.go) matches on Kind rather than comparing strings. Follows the
// same typed-string-constant idiom used for node roles/states elsewhere in
// this codebase, generalized into a discriminated struct since, unlike a
// node's role, a class also carries per-variant configuration (provider,
// bus name).
type ClassKind string

const (
	ClassScriptInit      ClassKind = "script-init"      // on-disk agent scripts (start/stop/monitor via argv)
	ClassHeartbeatLegacy ClassKind = "heartbeat-legacy"  // positional-parameter legacy agents
	ClassServiceBusA     ClassKind = "service-bus-A"     // first system-service bus backend
	ClassServiceBusB     ClassKind = "service-bus-B"     // second system-service bus backend
	ClassRemoteProbe     ClassKind = "remote-probe"      // Nagios-style remote check
	ClassGeneric         ClassKind = "generic"           // anything not otherwise classified
	ClassServiceAlias    ClassKind = "service-alias"     // resolved via Discoverer before dispatch
)

// Class fully describes one resource action's transport.
type Class struct {
	Kind     ClassKind
	Provider string // required for ClassScriptInit; ignored otherwise
}

// RequiresProvider reports whether Kind needs a non-empty Provider (§4.2 step 1).
func (k ClassKind) RequiresProvider() bool {
	return k == ClassScriptInit
}

// UsesDirectProcess reports whether actions of this class execute as a
// direct child process (vs. a system-service-bus call). Direct-process
// classes are the ones the at-most-one-in-flight-per-rsc_id invariant binds
// (§3 Resource action invariants).
func (k ClassKind) UsesDirectProcess() bool {
	switch k {
	case ClassServiceBusA, ClassServiceBusB:
		return false
	default:
		return true
	}
}

// Discoverer answers "does this class's bus/filesystem backend advertise
// this agent", used to resolve ClassServiceAlias (§4.2 step 2).
type Discoverer interface {
	// HasScriptAgent reports whether a script-init agent with this name
	// exists on disk for the given provider-less, class-less lookup.
	HasScriptAgent(agent string) bool
	// HasBusAgent reports whether the given service-bus backend advertises
	// agent as a known unit/service name.
	HasBusAgent(bus ClassKind, agent string) bool
}

// ResolveAlias implements the service-alias probe order from §4.2 step 2:
// script-init (cheap filesystem test) before the bus backends (network
// round-trip), defaulting to script-init when nothing matches (Open
// Question 1, resolved in DESIGN.md: default is intentional).
func ResolveAlias(d Discoverer, agent string) ClassKind {
	if d.HasScriptAgent(agent) {
		return ClassScriptInit
	}
	if d.HasBusAgent(ClassServiceBusA, agent) {
		return ClassServiceBusA
	}
	if d.HasBusAgent(ClassServiceBusB, agent) {
		return ClassServiceBusB
	}
	return ClassScriptInit
}
