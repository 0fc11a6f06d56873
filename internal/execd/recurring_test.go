package execd

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// TestRecurring_SchedulesNextAfterInterval covers S3's tail: the first
// monitor completion schedules the next execution at +interval.
func TestRecurring_SchedulesNextAfterInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	launcher := &scriptedLauncher{result: Result{Status: StatusDone}}
	e := NewEngine(func(a *Action) string { return "/bin/" + a.Agent }, fakeDiscoverer{}, launcher, launcher, clock)

	var mu sync.Mutex
	fires := 0
	a := &Action{
		Identity: Identity{RscID: "r", Operation: "monitor", IntervalMs: 5000},
		Class:    Class{Kind: ClassScriptInit, Provider: "test"},
		Agent:    "monitor-agent",
		Callback: func(a *Action, r Result, _ interface{}) {
			mu.Lock()
			fires++
			mu.Unlock()
		},
	}
	e.Submit(a)

	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return fires == 1 }, time.Second, time.Millisecond)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return fires == 2 }, time.Second, time.Millisecond)
}

// TestRecurring_SerializesBehindBlockingAction covers S3: monitor is
// blocked until a prior start on the same rsc_id completes.
func TestRecurring_SerializesBehindBlockingAction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	launcher := &scriptedLauncher{release: release, result: Result{Status: StatusDone}}
	e := NewEngine(func(a *Action) string { return "/bin/" + a.Agent }, fakeDiscoverer{}, launcher, launcher, clock)

	start := &Action{Identity: Identity{RscID: "r", Operation: "start"}, Class: Class{Kind: ClassScriptInit, Provider: "test"}, Agent: "a"}
	e.Submit(start)
	require.Eventually(t, func() bool { return start.State == StateInFlight }, time.Second, time.Millisecond)

	var mu sync.Mutex
	monitored := false
	monitor := &Action{
		Identity: Identity{RscID: "r", Operation: "monitor", IntervalMs: 5000},
		Class:    Class{Kind: ClassScriptInit, Provider: "test"},
		Agent:    "a",
		Callback: func(a *Action, r Result, _ interface{}) { mu.Lock(); monitored = true; mu.Unlock() },
	}
	e.Submit(monitor)
	require.Equal(t, StateBlocked, monitor.State)

	close(release)
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return monitored }, time.Second, time.Millisecond)
}

// TestRecurring_DuplicateSubmissionReplacesCallback covers §4.2's
// "Duplicate submission" idle case: the callback is swapped, no immediate
// re-fire happens.
func TestRecurring_DuplicateSubmissionReplacesCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	launcher := &scriptedLauncher{result: Result{Status: StatusDone}}
	e := NewEngine(func(a *Action) string { return "/bin/" + a.Agent }, fakeDiscoverer{}, launcher, launcher, clock)

	var mu sync.Mutex
	firstFired, secondFired := 0, 0
	id := Identity{RscID: "r", Operation: "monitor", IntervalMs: 5000}

	a1 := &Action{Identity: id, Class: Class{Kind: ClassScriptInit, Provider: "test"}, Agent: "a",
		Callback: func(a *Action, r Result, _ interface{}) { mu.Lock(); firstFired++; mu.Unlock() }}
	e.Submit(a1)
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return firstFired == 1 }, time.Second, time.Millisecond)

	a2 := &Action{Identity: id, Class: Class{Kind: ClassScriptInit, Provider: "test"}, Agent: "a",
		Callback: func(a *Action, r Result, _ interface{}) { mu.Lock(); secondFired++; mu.Unlock() }}
	e.Submit(a2)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return secondFired == 1 }, time.Second, time.Millisecond)
	mu.Lock()
	require.Equal(t, 1, firstFired)
	mu.Unlock()
}

// TestCancel_StopsIdleEntryImmediately covers §4.2 Cancellation's idle case:
// synthesize a cancelled completion.
func TestCancel_StopsIdleEntryImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	launcher := &scriptedLauncher{result: Result{Status: StatusDone}}
	e := NewEngine(func(a *Action) string { return "/bin/" + a.Agent }, fakeDiscoverer{}, launcher, launcher, clock)

	var mu sync.Mutex
	var gotStatus Status
	id := Identity{RscID: "r", Operation: "monitor", IntervalMs: 5000}
	a := &Action{Identity: id, Class: Class{Kind: ClassScriptInit, Provider: "test"}, Agent: "a",
		Callback: func(a *Action, r Result, _ interface{}) { mu.Lock(); gotStatus = r.Status; mu.Unlock() }}
	e.Submit(a)
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return gotStatus == StatusDone }, time.Second, time.Millisecond)

	ok := e.Cancel(id)
	require.True(t, ok)
	mu.Lock()
	require.Equal(t, StatusCancelled, gotStatus)
	mu.Unlock()

	require.False(t, e.Cancel(id))
}

// TestCancel_ServiceBusReportsFailure covers Open Question 2's resolution:
// cancelling an in-flight service-bus action reports failure but the
// in-flight call still completes and reports cancelled.
func TestCancel_ServiceBusReportsFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	launcher := &scriptedLauncher{release: release, result: Result{Status: StatusDone}}
	e := NewEngine(func(a *Action) string { return "" }, fakeDiscoverer{}, launcher, launcher, clock)

	var mu sync.Mutex
	var gotStatus Status
	id := Identity{RscID: "r", Operation: "start", IntervalMs: 5000}
	a := &Action{Identity: id, Class: Class{Kind: ClassServiceBusA}, Agent: "nginx.service",
		Callback: func(a *Action, r Result, _ interface{}) { mu.Lock(); gotStatus = r.Status; mu.Unlock() }}
	e.Submit(a)
	require.Eventually(t, func() bool { return a.State == StateInFlight }, time.Second, time.Millisecond)

	ok := e.Cancel(id)
	require.False(t, ok)

	close(release)
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return gotStatus == StatusCancelled }, time.Second, time.Millisecond)
}
