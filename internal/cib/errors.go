package cib

import "github.com/gravitational/trace"

// Error codes the core must handle specifically (§6.3, §7). Built on
// gravitational/trace so internal/attrd's commit-result handling can branch
// on trace.Is*(err) instead of matching error strings.
var (
	// ErrNotFound wraps trace.NotFound: the key does not exist.
	ErrNotFound = trace.NotFound("cib: not found")

	// ErrDiffFailed is a benign, retryable conflict — another writer raced
	// the same section. Modeled as trace.CompareFailed since trace has no
	// dedicated "diff failed" kind and CompareFailed is its closest analogue
	// (an optimistic-concurrency mismatch).
	ErrDiffFailed = trace.CompareFailed("cib: diff failed")

	// ErrNotConnected is transport-transient (§7): the store is unreachable.
	ErrNotConnected = trace.ConnectionProblem(nil, "cib: not connected")

	// ErrTimedOut is the fixed request-correlation timeout firing (§5, commonly 120s).
	ErrTimedOut = trace.LimitExceeded("cib: timed out")
)

// IsBenign reports whether err is one of the "log and retry on next
// converge" kinds (§4.1 commit(attr)): diff-failed, election-in-progress
// (modeled as ErrNotConnected), or missing-section (modeled as ErrNotFound).
func IsBenign(err error) bool {
	if err == nil {
		return false
	}
	return trace.IsCompareFailed(err) || trace.IsConnectionProblem(err) || trace.IsNotFound(err)
}

// IsTransportPermanent reports whether err is a hard rejection the core
// should surface to the caller rather than silently retry (§7).
func IsTransportPermanent(err error) bool {
	if err == nil {
		return false
	}
	return !IsBenign(err) && !trace.IsLimitExceeded(err)
}
