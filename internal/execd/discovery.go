package execd

import "os"

// FileDiscoverer answers service-alias probes (§4.2 step 2) against a
// real filesystem agent directory for the script-init check, and a
// configurable set of known unit names for each service-bus backend — the
// minimal concrete Discoverer the on-disk script/unit discovery logic
// (declared out of scope by §1) still needs a stand-in for so
// ResolveAlias has something real to probe in cmd/clusterd.
type FileDiscoverer struct {
	ScriptDir string
	BusAUnits map[string]bool
	BusBUnits map[string]bool
}

func (d FileDiscoverer) HasScriptAgent(agent string) bool {
	if d.ScriptDir == "" || agent == "" {
		return false
	}
	_, err := os.Stat(d.ScriptDir + "/" + agent)
	return err == nil
}

func (d FileDiscoverer) HasBusAgent(bus ClassKind, agent string) bool {
	switch bus {
	case ClassServiceBusA:
		return d.BusAUnits[agent]
	case ClassServiceBusB:
		return d.BusBUnits[agent]
	default:
		return false
	}
}

var _ Discoverer = FileDiscoverer{}
