package execd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDiscoverer struct {
	scripts map[string]bool
	busA    map[string]bool
	busB    map[string]bool
}

func (f fakeDiscoverer) HasScriptAgent(agent string) bool { return f.scripts[agent] }
func (f fakeDiscoverer) HasBusAgent(bus ClassKind, agent string) bool {
	switch bus {
	case ClassServiceBusA:
		return f.busA[agent]
	case ClassServiceBusB:
		return f.busB[agent]
	}
	return false
}

// TestResolveAlias_ScriptFirst covers S6: script-init on disk wins even if
// a same-named bus unit also exists.
func TestResolveAlias_ScriptFirst(t *testing.T) {
	d := fakeDiscoverer{scripts: map[string]bool{"foo": true}, busA: map[string]bool{"foo": true}}
	require.Equal(t, ClassScriptInit, ResolveAlias(d, "foo"))
}

func TestResolveAlias_BusAThenBusB(t *testing.T) {
	d := fakeDiscoverer{busB: map[string]bool{"foo": true}}
	require.Equal(t, ClassServiceBusB, ResolveAlias(d, "foo"))

	d2 := fakeDiscoverer{busA: map[string]bool{"foo": true}, busB: map[string]bool{"foo": true}}
	require.Equal(t, ClassServiceBusA, ResolveAlias(d2, "foo"))
}

// TestResolveAlias_DefaultsScriptInit covers the Open Question 1 decision:
// nothing matches -> default to script-init.
func TestResolveAlias_DefaultsScriptInit(t *testing.T) {
	d := fakeDiscoverer{}
	require.Equal(t, ClassScriptInit, ResolveAlias(d, "unknown"))
}

func TestClassKind_RequiresProvider(t *testing.T) {
	require.True(t, ClassScriptInit.RequiresProvider())
	require.False(t, ClassHeartbeatLegacy.RequiresProvider())
}

func TestClassKind_UsesDirectProcess(t *testing.T) {
	require.False(t, ClassServiceBusA.UsesDirectProcess())
	require.False(t, ClassServiceBusB.UsesDirectProcess())
	require.True(t, ClassScriptInit.UsesDirectProcess())
	require.True(t, ClassRemoteProbe.UsesDirectProcess())
}
