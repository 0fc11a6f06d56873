package execd

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// TestDispatchAlerts_AttributeAllowList covers S4: only the entry whose
// allow-list matches (or is empty) is invoked for an attribute event.
func TestDispatchAlerts_AttributeAllowList(t *testing.T) {
	launcher := &scriptedLauncher{result: Result{Status: StatusDone}}
	e := newTestEngine(launcher)

	entries := []AlertEntry{
		{Path: "/etc/alerts/a1.sh", Kinds: KindAttribute, AttributeAllow: []string{"foo"}},
		{Path: "/etc/alerts/a2.sh", Kinds: KindAttribute, AttributeAllow: nil},
	}

	outcome := e.DispatchAlerts(context.Background(), KindAttribute, "bar", entries, map[string]string{}, time.Now(), nil)
	require.Equal(t, DispatchAllOK, outcome)

	require.Len(t, launcher.seen, 1)
	require.Equal(t, "/etc/alerts/a2.sh", launcher.seen[0].ExecPath)
	require.Equal(t, "attribute", launcher.seen[0].Env["CRM_alert_kind"])
	require.Equal(t, "bar", launcher.seen[0].Env["CRM_alert_attribute_name"])
}

func TestDispatchAlerts_SuppressesSuccessfulZeroIntervalMonitor(t *testing.T) {
	launcher := &scriptedLauncher{result: Result{Status: StatusDone}}
	e := newTestEngine(launcher)

	entries := []AlertEntry{{Path: "/etc/alerts/a1.sh", Kinds: KindResource}}
	ev := &ResourceEvent{IntervalMs: 0, ExpectedRC: 0, ActualRC: 0, OperationOK: true}

	outcome := e.DispatchAlerts(context.Background(), KindResource, "", entries, nil, time.Now(), ev)
	require.Equal(t, DispatchAllOK, outcome)
	require.Empty(t, launcher.seen)
}

func TestDispatchAlerts_AggregatesAllOKAndAllFailed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_ = clock
	good := &scriptedLauncher{result: Result{Status: StatusDone}}
	e := newTestEngine(good)

	entries := []AlertEntry{
		{Path: "/etc/alerts/ok.sh", Kinds: KindNode},
	}
	outcome := e.DispatchAlerts(context.Background(), KindNode, "", entries, nil, time.Now(), nil)
	require.Equal(t, DispatchAllOK, outcome)

	bad := &scriptedLauncher{result: Result{Status: StatusErrorGeneric}}
	e2 := newTestEngine(bad)
	outcome2 := e2.DispatchAlerts(context.Background(), KindNode, "", entries, nil, time.Now(), nil)
	require.Equal(t, DispatchAllFailed, outcome2)
}
