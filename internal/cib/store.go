// Package cib models the cluster configuration database as an opaque,
// asynchronous transactional store (§6.3). The stateful coordination engine
// in internal/attrd depends only on the Store interface defined here; the
// SQLite-backed implementation in sqlite_store.go is an out-of-scope
// collaborator provided for completeness and for integration-style tests.
package cib

import "context"

// Key identifies one attribute slot in the configuration store's namespace.
type Key struct {
	Section string
	Host    string
	Set     string
	Name    string
}

// ChangeEvent is delivered to subscribers on diff/replace notifications.
type ChangeEvent struct {
	Key   Key
	Value string // empty + Deleted=true means the value was removed
	Deleted bool
}

// Store is the narrow surface the core depends on. Update always writes a
// value; removing a value is the separate Delete call.
type Store interface {
	// Update upserts value under key, committing on behalf of actingUser.
	Update(ctx context.Context, key Key, value string, actingUser string) error

	// Delete removes key, committing on behalf of actingUser.
	Delete(ctx context.Context, key Key, actingUser string) error

	// Query reads the current value, if any, exposed asynchronously via the
	// returned channel to mirror the store's async query/call_id contract.
	Query(ctx context.Context, key Key) (<-chan QueryResult, error)

	// DeleteMatching deletes every key in section/host whose Name matches re,
	// used by clear_failure's bulk path (§4.1).
	DeleteMatching(ctx context.Context, section, host string, re Matcher, actingUser string) ([]Key, error)

	// Subscribe registers fn to be called on every diff/replace change
	// notification. The returned func unsubscribes.
	Subscribe(fn func(ChangeEvent)) (unsubscribe func())
}

// Matcher abstracts the regexp.Regexp dependency so callers outside this
// package don't need to import regexp just to call DeleteMatching.
type Matcher interface {
	MatchString(s string) bool
}

// QueryResult is delivered on the channel Query returns.
type QueryResult struct {
	Value string
	Found bool
	Err   error
}
