package execd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalOperation_LegacyMonitorToStatus(t *testing.T) {
	require.Equal(t, "status", canonicalOperation(ClassHeartbeatLegacy, "monitor"))
	require.Equal(t, "start", canonicalOperation(ClassHeartbeatLegacy, "start"))
	require.Equal(t, "monitor", canonicalOperation(ClassScriptInit, "monitor"))
}

func TestBuildDescriptor_ScriptInit(t *testing.T) {
	a := &Action{
		Identity:   Identity{RscID: "r1", Operation: "start"},
		Class:      Class{Kind: ClassScriptInit, Provider: "heartbeat"},
		Parameters: map[string]string{"ip": "10.0.0.1"},
	}
	d, err := BuildDescriptor(a, "/usr/lib/ocf/resource.d/heartbeat/IPaddr2")
	require.NoError(t, err)
	require.Equal(t, "/usr/lib/ocf/resource.d/heartbeat/IPaddr2", d.ExecPath)
	require.Equal(t, []string{"start"}, d.Args)
	require.Equal(t, "10.0.0.1", d.Env["OCF_RESKEY_ip"])
}

func TestBuildDescriptor_HeartbeatLegacyPositional(t *testing.T) {
	a := &Action{
		Identity:   Identity{RscID: "r1", Operation: "monitor"},
		Class:      Class{Kind: ClassHeartbeatLegacy},
		Parameters: map[string]string{"2": "eth0", "1": "10.0.0.1"},
	}
	d, err := BuildDescriptor(a, "/etc/ha.d/resource.d/IPaddr")
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1", "eth0", "status"}, d.Args)
}

func TestBuildDescriptor_ServiceBus(t *testing.T) {
	a := &Action{
		Identity: Identity{Operation: "start"},
		Class:    Class{Kind: ClassServiceBusA},
		Agent:    "nginx.service",
	}
	d, err := BuildDescriptor(a, "")
	require.NoError(t, err)
	require.True(t, d.IsBus)
	require.Equal(t, busSentinel, d.ExecPath)
	require.Equal(t, "nginx.service", d.Env["unit"])
	require.Equal(t, "start", d.Env["operation"])
	require.Equal(t, string(ClassServiceBusA), d.Env["__bus_kind"])
}

func TestBuildDescriptor_RemoteProbeZeroIntervalMonitor(t *testing.T) {
	a := &Action{
		Identity: Identity{Operation: "monitor", IntervalMs: 0},
		Class:    Class{Kind: ClassRemoteProbe},
	}
	d, err := BuildDescriptor(a, "/usr/lib/nagios/plugins/check_http")
	require.NoError(t, err)
	require.Equal(t, []string{"--version"}, d.Args)
}

func TestBuildDescriptor_RemoteProbeKeyValue(t *testing.T) {
	a := &Action{
		Identity:   Identity{Operation: "monitor", IntervalMs: 10000},
		Class:      Class{Kind: ClassRemoteProbe},
		Parameters: map[string]string{"hostname": "db1", "crm_meta_timeout": "30000"},
	}
	d, err := BuildDescriptor(a, "/usr/lib/nagios/plugins/check_http")
	require.NoError(t, err)
	require.Equal(t, []string{"--hostname", "db1"}, d.Args)
}

func TestBuildDescriptor_AlertNoArgv(t *testing.T) {
	a := &Action{
		Identity:   Identity{Operation: "alert"},
		Class:      Class{Kind: ClassScriptInit, Provider: "alert"},
		Parameters: map[string]string{"CRM_alert_kind": "node"},
	}
	d, err := BuildDescriptor(a, "/etc/clusterd/alerts.d/notify.sh")
	require.NoError(t, err)
	require.Nil(t, d.Args)
	require.Equal(t, "node", d.Env["CRM_alert_kind"])
}
