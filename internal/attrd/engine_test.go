package attrd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"clusterd/internal/bus"
	"clusterd/internal/cib"
)

type fakeStore struct {
	mu      sync.Mutex
	updates []cib.Key
	values  map[cib.Key]string
	deletes []cib.Key
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[cib.Key]string)}
}

func (s *fakeStore) Update(ctx context.Context, key cib.Key, value string, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, key)
	s.values[key] = value
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, key cib.Key, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, key)
	delete(s.values, key)
	return nil
}

func (s *fakeStore) Query(ctx context.Context, key cib.Key) (<-chan cib.QueryResult, error) {
	ch := make(chan cib.QueryResult, 1)
	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	ch <- cib.QueryResult{Value: v, Found: ok}
	close(ch)
	return ch, nil
}

func (s *fakeStore) DeleteMatching(ctx context.Context, section, host string, re cib.Matcher, user string) ([]cib.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []cib.Key
	for k := range s.values {
		if k.Section == section && k.Host == host && re.MatchString(k.Name) {
			out = append(out, k)
			delete(s.values, k)
		}
	}
	return out, nil
}

func (s *fakeStore) Subscribe(fn func(cib.ChangeEvent)) func() { return func() {} }

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

type fakeBus struct {
	mu        sync.Mutex
	broadcast []bus.Envelope
}

func (b *fakeBus) Broadcast(env bus.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast = append(b.broadcast, env)
	return nil
}
func (b *fakeBus) SendTo(node string, env bus.Envelope) error { return nil }
func (b *fakeBus) OnMembershipChange(fn func(node string, joined bool)) {}
func (b *fakeBus) Peers() []string                                      { return nil }

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.broadcast)
}

func newTestAttrdEngine(clock clockwork.Clock) (*Engine, *fakeStore, *fakeBus) {
	store := newFakeStore()
	b := &fakeBus{}
	e := NewEngine(Config{Store: store, Bus: b, Clock: clock, HostKey: "node1"})
	return e, store, b
}

// TestUpdate_DampenedConvergence covers S1: value-preserving update at
// t=200ms does not push the deadline; broadcast+commit happen once, at
// t=500ms, with committed_value becoming "3".
func TestUpdate_DampenedConvergence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e, store, b := newTestAttrdEngine(clock)

	require.NoError(t, e.Update("load", "3", "500ms", "", "status", ""))
	clock.BlockUntil(1)

	clock.Advance(200 * time.Millisecond)
	require.NoError(t, e.Update("load", "3", "500ms", "", "status", ""))

	clock.Advance(300 * time.Millisecond) // total 500ms from first arm

	require.Eventually(t, func() bool { return store.updateCount() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 1, b.count())

	e.mu.Lock()
	committed := *e.entries["load"].CommittedValue
	e.mu.Unlock()
	require.Equal(t, "3", committed)
}

// TestUpdate_ValueCollapsing covers property 2: update(v), update(w),
// update(v) within the window results in one broadcast of v.
func TestUpdate_ValueCollapsing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e, store, b := newTestAttrdEngine(clock)

	require.NoError(t, e.Update("load", "1", "500ms", "", "status", ""))
	clock.BlockUntil(1)
	require.NoError(t, e.Update("load", "2", "500ms", "", "status", ""))
	require.NoError(t, e.Update("load", "1", "500ms", "", "status", ""))

	clock.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool { return store.updateCount() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 1, b.count())
	require.Equal(t, "1", store.values[cib.Key{Section: "status", Host: "node1", Name: "load"}])
}

// TestUpdate_ZeroDampenFiresImmediately covers dampen=0 ("0 means no
// dampening") committing without waiting on any timer.
func TestUpdate_ZeroDampenFiresImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e, store, _ := newTestAttrdEngine(clock)

	require.NoError(t, e.Update("role", "primary", "0", "", "status", ""))
	require.Eventually(t, func() bool { return store.updateCount() == 1 }, time.Second, time.Millisecond)
}

// TestClearFailure_Local covers S2: clearing resource X nulls
// fail-count-X/last-failure-X and leaves Y untouched.
func TestClearFailure_Local(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e, store, _ := newTestAttrdEngine(clock)

	for _, seed := range []struct{ name, value string }{
		{"fail-count-X", "5"}, {"fail-count-Y", "2"}, {"last-failure-X", "abc"},
	} {
		require.NoError(t, e.Update(seed.name, seed.value, "0", "", "status", ""))
	}
	require.Eventually(t, func() bool { return store.updateCount() == 3 }, time.Second, time.Millisecond)

	require.NoError(t, e.ClearFailure(ClearFailureRequest{Resource: "X"}))

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.entries["fail-count-X"].CurrentValue == nil && e.entries["last-failure-X"].CurrentValue == nil
	}, time.Second, time.Millisecond)

	e.mu.Lock()
	yValue := *e.entries["fail-count-Y"].CurrentValue
	e.mu.Unlock()
	require.Equal(t, "2", yValue)
}

func TestExpand_IncrementAndAssign(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e, store, _ := newTestAttrdEngine(clock)

	require.NoError(t, e.Update("counter", "++", "0", "", "status", ""))
	require.Eventually(t, func() bool { return store.updateCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, e.Update("counter", "+=5", "0", "", "status", ""))
	require.Eventually(t, func() bool { return store.updateCount() == 2 }, time.Second, time.Millisecond)

	e.mu.Lock()
	got := *e.entries["counter"].CommittedValue
	e.mu.Unlock()
	require.Equal(t, "6", got)
}

// TestDelete_ZeroDampenClearsImmediately covers §6.1's "value absent ⇒
// delete" contract reaching the store with no dampening.
func TestDelete_ZeroDampenClearsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e, store, _ := newTestAttrdEngine(clock)

	require.NoError(t, e.Update("role", "primary", "0", "", "status", ""))
	require.Eventually(t, func() bool { return store.updateCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, e.Delete("role", "0", "", "status", ""))

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.entries["role"].CurrentValue == nil
	}, time.Second, time.Millisecond)
	require.Equal(t, 1, len(store.deletes))
}

// TestDelete_DampenedConvergence mirrors TestUpdate_DampenedConvergence but
// for the delete path: the timer fires once, at the dampen deadline.
func TestDelete_DampenedConvergence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e, store, _ := newTestAttrdEngine(clock)

	require.NoError(t, e.Update("role", "primary", "0", "", "status", ""))
	require.Eventually(t, func() bool { return store.updateCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, e.Delete("role", "500ms", "", "status", ""))
	e.mu.Lock()
	require.Equal(t, StateArmed, e.entries["role"].State)
	e.mu.Unlock()

	clock.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool { return len(store.deletes) == 1 }, time.Second, time.Millisecond)
}

// TestDelete_AlreadyAbsentIsNoop covers deleting an attribute that has no
// current or committed value: no store call, no error.
func TestDelete_AlreadyAbsentIsNoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e, store, _ := newTestAttrdEngine(clock)

	require.NoError(t, e.Delete("never-set", "0", "", "status", ""))
	require.Equal(t, 0, store.updateCount())
	require.Equal(t, 0, len(store.deletes))
}
