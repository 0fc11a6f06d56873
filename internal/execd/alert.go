package execd

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// EventKind is a bitmask identifying what kind of cluster event an alert
// entry wants to hear about (§4.2 "Alert dispatch").
type EventKind uint8

const (
	KindNode EventKind = 1 << iota
	KindAttribute
	KindFencing
	KindResource
)

// AlertEntry is one configured alert agent, generalizing a single
// hardcoded notification sink into an arbitrary executable invoked through
// component B, per §9's closed-class executor model rather than a
// dedicated HTTP client.
type AlertEntry struct {
	Path            string
	TimeoutMs       int64
	Kinds           EventKind
	AttributeAllow  []string // empty means "all attributes"
	Recipient       string
	TimestampFormat string
	Env             map[string]string
}

// DispatchOutcome is the aggregated result of fanning an event out to every
// matching alert entry.
type DispatchOutcome string

const (
	DispatchAllOK      DispatchOutcome = "all-ok"
	DispatchSomeFailed DispatchOutcome = "some-failed"
	DispatchAllFailed  DispatchOutcome = "all-failed"
)

// ResourceEvent carries the extra fields §4.2 step 4 needs to decide
// whether a resource-operation alert is noteworthy.
type ResourceEvent struct {
	IntervalMs     int64
	ExpectedRC     int
	ActualRC       int
	OperationOK    bool
}

// suppressed reports whether a resource-operation event describes a
// successful zero-interval monitor matching its expected return code — such
// probes finding the resource in its expected state are not noteworthy
// (§4.2 step 4).
func (r *ResourceEvent) suppressed() bool {
	return r != nil && r.IntervalMs == 0 && r.OperationOK && r.ActualRC == r.ExpectedRC
}

func (k EventKind) matches(want EventKind) bool { return k&want != 0 }

func matchesAttribute(entry AlertEntry, attribute string) bool {
	if len(entry.AttributeAllow) == 0 {
		return true
	}
	for _, a := range entry.AttributeAllow {
		if a == attribute {
			return true
		}
	}
	return false
}

// DispatchAlerts implements §4.2 "Alert dispatch" in full: augments the base
// parameter set, filters entries by kind/attribute, builds a per-entry
// environment, submits each as an execd action, and aggregates the result.
func (e *Engine) DispatchAlerts(ctx context.Context, kind EventKind, attribute string, entries []AlertEntry, baseParams map[string]string, now time.Time, resourceEvent *ResourceEvent) DispatchOutcome {
	if kind.matches(KindResource) && resourceEvent.suppressed() {
		return DispatchAllOK
	}

	matching := make([]AlertEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Kinds.matches(kind) {
			continue
		}
		if kind.matches(KindAttribute) && !matchesAttribute(entry, attribute) {
			continue
		}
		matching = append(matching, entry)
	}
	if len(matching) == 0 {
		return DispatchAllOK
	}

	base := make(map[string]string, len(baseParams)+2)
	for k, v := range baseParams {
		base[k] = v
	}
	base["CRM_alert_kind"] = kindName(kind)
	if attribute != "" {
		base["CRM_alert_attribute_name"] = attribute
	}
	base["CRM_alert_version"] = alertVersion

	var (
		wg                        sync.WaitGroup
		mu                        sync.Mutex
		succeeded, failed         int
	)
	for i, entry := range matching {
		wg.Add(1)
		go func(entry AlertEntry, seq int) {
			defer wg.Done()
			params := make(map[string]string, len(base)+len(entry.Env)+2)
			for k, v := range base {
				params[k] = v
			}
			params["CRM_alert_recipient"] = entry.Recipient
			if entry.TimestampFormat != "" {
				params["CRM_alert_timestamp"] = now.Format(entry.TimestampFormat)
			}
			for k, v := range entry.Env {
				params[k] = v
			}

			// Provider "alert" is a sentinel BuildDescriptor special-cases:
			// entry.Path is already an absolute executable path and is used
			// as the exec path directly, not resolved against an agent
			// directory.
			done := make(chan Result, 1)
			a := &Action{
				Identity:   Identity{RscID: "", Operation: "alert", IntervalMs: 0},
				Class:      Class{Kind: ClassScriptInit, Provider: "alert"},
				Agent:      entry.Path,
				Parameters: params,
				TimeoutMs:  entry.TimeoutMs,
				Callback: func(_ *Action, result Result, _ interface{}) {
					done <- result
				},
			}
			e.Submit(a)

			select {
			case result := <-done:
				mu.Lock()
				if result.Status == StatusDone {
					succeeded++
				} else {
					failed++
				}
				mu.Unlock()
			case <-ctx.Done():
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(entry, i)
	}
	wg.Wait()

	switch {
	case failed == 0:
		return DispatchAllOK
	case succeeded == 0:
		return DispatchAllFailed
	default:
		return DispatchSomeFailed
	}
}

const alertVersion = "1"

// Pacemaker-style OCF return codes the spec's "per-operation target" rule
// (§4.2 "Result and error semantics") compares exit_code against.
const (
	ocfSuccess    = 0
	ocfNotRunning = 7
)

// expectedExitCode implements "for monitors: target defaults to ok for
// start/running resources, not-running for stop/probe".
func expectedExitCode(a *Action) int {
	switch a.Operation {
	case "stop", "probe":
		return ocfNotRunning
	default:
		return ocfSuccess
	}
}

// resourceAlertParams builds the resource-specific base parameters a
// completed (non-alert) action's auto-fired resource-operation alert
// carries; DispatchAlerts adds the common CRM_alert_kind/version/recipient
// fields on top of these.
func resourceAlertParams(a *Action, result Result) map[string]string {
	return map[string]string{
		"CRM_alert_rsc":      a.RscID,
		"CRM_alert_task":     a.Operation,
		"CRM_alert_interval": strconv.FormatInt(a.IntervalMs, 10),
		"CRM_alert_rc":       strconv.Itoa(result.ExitCode),
		"CRM_alert_status":   string(result.Status),
	}
}

func kindName(k EventKind) string {
	switch k {
	case KindNode:
		return "node"
	case KindAttribute:
		return "attribute"
	case KindFencing:
		return "fencing"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}
