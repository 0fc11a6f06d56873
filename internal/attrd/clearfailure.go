package attrd

import (
	"context"
	"fmt"
	"regexp"

	"clusterd/internal/bus"
	"clusterd/internal/cib"
)

// ClearFailureRequest is §4.1's clear_failure(resource?, operation?,
// interval?, host?) contract.
type ClearFailureRequest struct {
	Resource   string
	Operation  string
	IntervalMs int64
	Host       string
	ActingUser string
}

// ClearFailure routes a clear-failure request to the right mechanism:
// local bulk clear, peer relay, or configuration-store xpath delete for a
// remote (non-cluster) node (§4.1 clear_failure).
func (e *Engine) ClearFailure(req ClearFailureRequest) error {
	re, err := clearFailurePattern(req.Resource, req.Operation, req.IntervalMs)
	if err != nil {
		return err
	}

	if req.Host == "" || req.Host == e.hostKey {
		return e.clearLocal(re, req.ActingUser)
	}
	if e.isKnownPeer(req.Host) {
		return e.relayToPeer(req)
	}
	return e.clearRemoteXPath(req)
}

// clearFailurePattern builds the regular expression over per-node attribute
// names matching fail-count-<rsc> / last-failure-<rsc>, optionally narrowed
// by #op_interval (§4.1).
func clearFailurePattern(resource, operation string, intervalMs int64) (*regexp.Regexp, error) {
	rsc := regexp.QuoteMeta(resource)
	if rsc == "" {
		rsc = ".*"
	}
	suffix := ""
	if operation != "" {
		suffix = fmt.Sprintf("#%s", regexp.QuoteMeta(operation))
		if intervalMs > 0 {
			suffix += fmt.Sprintf("_%d", intervalMs)
		}
	}
	pattern := fmt.Sprintf(`^(fail-count|last-failure)-%s%s$`, rsc, suffix)
	return regexp.Compile(pattern)
}

// clearLocal applies the bulk update-to-null locally: every matching entry
// already tracked in-memory is updated to a null current_value (so it
// converges and commits through the normal dampening path), and any
// matching key the store knows about but this table doesn't is deleted
// directly.
func (e *Engine) clearLocal(re *regexp.Regexp, actingUser string) error {
	e.mu.Lock()
	matched := make([]*Entry, 0)
	for _, entry := range e.entries {
		if re.MatchString(entry.Name) {
			entry.CurrentValue = nil
			entry.ActingUser = actingUser
			e.fireLocked(entry)
			matched = append(matched, entry)
		}
	}
	e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	ctx := context.Background()
	_, err := e.store.DeleteMatching(ctx, e.defaultSection, e.hostKey, cibMatcher{re}, actingUser)
	if err != nil && !cib.IsBenign(err) {
		return err
	}
	return nil
}

type cibMatcher struct{ re *regexp.Regexp }

func (m cibMatcher) MatchString(s string) bool { return m.re.MatchString(s) }

// relayToPeer forwards the original request unchanged to the named peer
// (§4.1: "If host names a known peer, relay the original request to that
// peer").
func (e *Engine) relayToPeer(req ClearFailureRequest) error {
	if e.bus == nil {
		return fmt.Errorf("attrd: no bus configured, cannot relay clear-failure to peer %s", req.Host)
	}
	return e.bus.SendTo(req.Host, bus.Envelope{
		Type:   attrdMessageType,
		Origin: e.hostKey,
		Task:   "clear-failure",
		Body: map[string]string{
			"resource":  req.Resource,
			"operation": req.Operation,
			"interval":  fmtInterval(req.IntervalMs),
			"host":      req.Host,
			"user":      req.ActingUser,
		},
	})
}

// clearRemoteXPath translates the request into a configuration-store xpath
// delete for a remote (non-cluster) node, since such a node has no attrd of
// its own to relay to (§4.1).
func (e *Engine) clearRemoteXPath(req ClearFailureRequest) error {
	if e.store == nil {
		return fmt.Errorf("attrd: no configuration store configured")
	}
	re, err := clearFailurePattern(req.Resource, req.Operation, req.IntervalMs)
	if err != nil {
		return err
	}
	ctx := context.Background()
	_, err = e.store.DeleteMatching(ctx, e.defaultSection, req.Host, cibMatcher{re}, req.ActingUser)
	if err != nil && !cib.IsBenign(err) {
		return err
	}
	return nil
}

func (e *Engine) isKnownPeer(host string) bool {
	if e.bus == nil {
		return false
	}
	for _, p := range e.bus.Peers() {
		if p == host {
			return true
		}
	}
	return false
}

func fmtInterval(ms int64) string {
	if ms == 0 {
		return ""
	}
	return fmt.Sprintf("%d", ms)
}
