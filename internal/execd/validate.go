package execd

import "fmt"

// Validate implements §4.2 step 1: fail fast on a malformed submission
// without mutating any table. Called before Submit does anything else.
func (a *Action) Validate() error {
	// Alert actions (§4.2 "Alert dispatch" step 3) are submitted through the
	// same queue but describe no resource, so the rsc_id requirement below
	// does not apply to them.
	if a.RscID == "" && a.Class.Provider != "alert" {
		return fmt.Errorf("execd: rsc_id is required")
	}
	if a.Class.Kind == "" {
		return fmt.Errorf("execd: class is required")
	}
	if a.Operation == "" {
		return fmt.Errorf("execd: operation is required")
	}
	if a.Agent == "" {
		return fmt.Errorf("execd: agent is required")
	}
	if a.Class.Kind.RequiresProvider() && a.Class.Provider == "" {
		return fmt.Errorf("execd: class %q requires a provider", a.Class.Kind)
	}
	return nil
}
