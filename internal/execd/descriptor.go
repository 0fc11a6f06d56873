package execd

import (
	"fmt"
	"sort"
	"strconv"
)

// Descriptor is the canonical execution plan built from a submission (§4.2
// step 4): what to run and with what arguments/environment, independent of
// how it is actually launched (direct process vs service bus).
type Descriptor struct {
	ExecPath string
	Args     []string
	Env      map[string]string
	IsBus    bool // true for service-bus classes: ExecPath is a sentinel, not a real path
}

// busSentinel marks a descriptor whose ExecPath is not a real filesystem
// path but a tag identifying which bus backend handles it.
const busSentinel = "<service-bus>"

// metaParameters are never forwarded as --key value pairs to a remote-probe
// agent; they are consumed by the executor itself (§4.2 step 4, remote-probe).
var metaParameters = map[string]bool{
	"crm_meta_timeout":  true,
	"crm_meta_interval": true,
	"crm_meta_name":     true,
}

// canonicalOperation implements §4.2 step 3: "monitor" becomes "status" for
// legacy script classes.
func canonicalOperation(kind ClassKind, operation string) string {
	if kind == ClassHeartbeatLegacy && operation == "monitor" {
		return "status"
	}
	return operation
}

// BuildDescriptor constructs the execution descriptor for a (validated)
// action, per the per-class rules of §4.2 step 4.
func BuildDescriptor(a *Action, agentPath string) (Descriptor, error) {
	op := canonicalOperation(a.Class.Kind, a.Operation)

	switch a.Class.Kind {
	case ClassScriptInit:
		if a.Class.Provider == "alert" {
			// Alert agents take no argv; everything is environment (§4.2
			// "Alert dispatch" step 3). Agent already holds the entry's
			// absolute path, so agentPath is not consulted.
			return Descriptor{ExecPath: a.Agent, Env: a.Parameters}, nil
		}
		return Descriptor{
			ExecPath: agentPath,
			Args:     []string{op},
			Env:      envFromParameters(a.Parameters),
		}, nil

	case ClassHeartbeatLegacy:
		return Descriptor{
			ExecPath: agentPath,
			Args:     append(positionalArgs(a.Parameters), op),
		}, nil

	case ClassServiceBusA, ClassServiceBusB:
		env := make(map[string]string, len(a.Parameters)+3)
		for k, v := range a.Parameters {
			env[k] = v
		}
		env["unit"] = a.Agent
		env["operation"] = op
		env["__bus_kind"] = string(a.Class.Kind)
		return Descriptor{
			ExecPath: busSentinel,
			Args:     nil,
			Env:      env,
			IsBus:    true,
		}, nil

	case ClassRemoteProbe:
		if op == "monitor" && a.IntervalMs == 0 {
			return Descriptor{ExecPath: agentPath, Args: []string{"--version"}}, nil
		}
		return Descriptor{ExecPath: agentPath, Args: keyValueArgs(a.Parameters)}, nil

	default:
		return Descriptor{}, fmt.Errorf("execd: class %q has no descriptor rule", a.Class.Kind)
	}
}

func envFromParameters(params map[string]string) map[string]string {
	env := make(map[string]string, len(params))
	for k, v := range params {
		env["OCF_RESKEY_"+k] = v
	}
	return env
}

// positionalArgs draws parameters keyed by the decimal strings "1".."N" in
// numeric order, per the heartbeat-legacy rule in §4.2 step 4.
func positionalArgs(params map[string]string) []string {
	keys := make([]int, 0, len(params))
	for k := range params {
		if n, err := strconv.Atoi(k); err == nil {
			keys = append(keys, n)
		}
	}
	sort.Ints(keys)
	out := make([]string, 0, len(keys))
	for _, n := range keys {
		out = append(out, params[strconv.Itoa(n)])
	}
	return out
}

// keyValueArgs renders parameters as "--key value" pairs in a stable order,
// skipping known meta-parameters (§4.2 step 4, remote-probe).
func keyValueArgs(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if metaParameters[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, "--"+k, params[k])
	}
	return out
}
