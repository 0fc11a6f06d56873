package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"

	"clusterd/internal/acl"
	"clusterd/internal/api"
	"clusterd/internal/attrd"
	"clusterd/internal/bus"
	"clusterd/internal/cib"
	"clusterd/internal/execd"
	"clusterd/internal/logging"
	"clusterd/internal/proxy"
)

const Version = "1.0.0"

var log = logging.For("main")

func main() {
	listenAddr := flag.String("listen", "127.0.0.1:9000", "Listen address")
	dbPath := flag.String("db", "/var/lib/clusterd/clusterd.db", "Path to SQLite configuration store")
	selfNode := flag.String("node-id", "", "Unique ID for this cluster node (default: hostname)")
	hostKey := flag.String("host-key", "", "Attribute host key this node writes under (default: node-id)")
	defaultSection := flag.String("default-section", "status", "Default section for attributes/actions with no explicit section")
	scriptDir := flag.String("script-dir", "/usr/lib/cluster/agents", "Directory holding script-init agents")
	busAUnits := flag.String("bus-a-units", "", "Comma-separated unit names the first service-bus backend advertises")
	busBUnits := flag.String("bus-b-units", "", "Comma-separated unit names the second service-bus backend advertises")
	alertAgent := flag.String("alert-agent", "", "Path to an alert agent executable notified of node/attribute/fencing/resource events (optional; empty disables alert dispatch)")
	alertTimeout := flag.Duration("alert-timeout", 30*time.Second, "Timeout for the configured alert agent")

	serfRPCAddr := flag.String("serf-rpc-addr", "", "Serf RPC address for peer membership/messaging (optional; empty disables clustering)")

	ldapServer := flag.String("ldap-server", "", "LDAP server for acting_user group resolution (optional; empty disables ACL gating)")
	ldapPort := flag.Int("ldap-port", 389, "LDAP server port")
	ldapBindDN := flag.String("ldap-bind-dn", "", "LDAP bind DN")
	ldapBindPassword := flag.String("ldap-bind-password", "", "LDAP bind password")
	ldapBaseDN := flag.String("ldap-base-dn", "", "LDAP base DN for group search")
	ldapGroupFilter := flag.String("ldap-group-filter", "(member={user})", "LDAP group search filter, {user} substituted with the username being resolved")
	ldapDefaultRole := flag.String("ldap-default-role", "readonly", "Role granted when no group mapping matches")
	flag.Parse()

	node := *selfNode
	if node == "" {
		if h, err := os.Hostname(); err == nil {
			node = h
		} else {
			node = "node1"
		}
	}
	host := *hostKey
	if host == "" {
		host = node
	}

	store, err := cib.OpenSQLiteStore(*dbPath)
	if err != nil {
		log.WithField("db", *dbPath).WithField("error", err).Fatal("clusterd: failed to open configuration store")
	}

	// Peer messaging is optional: a single-node deployment runs with no bus
	// configured, and attrd/proxy degrade to local-only behavior (§5, §7).
	var clusterBus bus.Bus
	if *serfRPCAddr != "" {
		serfBus, err := bus.DialSerfBus(*serfRPCAddr, node)
		if err != nil {
			log.WithField("serf-rpc-addr", *serfRPCAddr).WithField("error", err).Fatal("clusterd: failed to dial peer bus")
		}
		clusterBus = serfBus
	}

	// ACL gating is optional: with no LDAP server configured, every
	// acting_user is allowed (acl.Checker stays nil, §1).
	var checker acl.Checker
	if *ldapServer != "" {
		resolver := acl.NewLDAPResolver(acl.LDAPConfig{
			Server:          *ldapServer,
			Port:            *ldapPort,
			BindDN:          *ldapBindDN,
			BindPassword:    *ldapBindPassword,
			BaseDN:          *ldapBaseDN,
			GroupBaseDN:     *ldapBaseDN,
			GroupFilter:     *ldapGroupFilter,
			GroupMemberAttr: "memberOf",
			DefaultRole:     *ldapDefaultRole,
			TimeoutSeconds:  10,
		})
		checker = acl.NewCache(resolver, acl.SectionPolicy{})
	}

	clock := clockwork.NewRealClock()

	discoverer := execd.FileDiscoverer{
		ScriptDir: *scriptDir,
		BusAUnits: splitSet(*busAUnits),
		BusBUnits: splitSet(*busBUnits),
	}
	execEngine := execd.NewEngine(
		func(a *execd.Action) string {
			if a.Class.Provider == "alert" {
				// entry.Path is already an absolute executable path
				// (§4.2 "Alert dispatch" step 3); resolving it against
				// scriptDir would double up the path.
				return a.Agent
			}
			return *scriptDir + "/" + a.Agent
		},
		discoverer,
		execd.ProcessLauncher{},
		execd.BusLauncher{Bus: execd.UnconfiguredServiceBus{}},
		clock,
	)
	execLoop := execd.NewLoop(execEngine)

	// Alert dispatch (§4.2 "Alert dispatch") is optional: with no agent
	// configured, the node/attribute/resource event hooks below still fire
	// but DispatchAlerts has nothing to notify and returns immediately.
	var alertEntries []execd.AlertEntry
	if *alertAgent != "" {
		alertEntries = []execd.AlertEntry{{
			Path:      *alertAgent,
			TimeoutMs: alertTimeout.Milliseconds(),
			Kinds:     execd.KindNode | execd.KindAttribute | execd.KindFencing | execd.KindResource,
		}}
	}
	execEngine.SetAlertEntries(alertEntries)
	alertEntriesFn := func() []execd.AlertEntry { return alertEntries }

	attrdEngine := attrd.NewEngine(attrd.Config{
		Store:          store,
		Bus:            clusterBus,
		Checker:        checker,
		Clock:          clock,
		HostKey:        host,
		DefaultSection: *defaultSection,
		OnAttributeChange: func(attr string, value *string) {
			if len(alertEntries) == 0 {
				return
			}
			params := map[string]string{}
			if value != nil {
				params["CRM_alert_attribute_value"] = *value
			}
			execEngine.DispatchAlerts(context.Background(), execd.KindAttribute, attr, alertEntries, params, clock.Now(), nil)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go execLoop.Run(ctx)

	registry := proxy.NewRegistry(node, func(channel, dialNode string) (proxy.LocalConn, error) {
		return proxy.DialHTTPLocalConn("http://"+*listenAddr, channel)
	})
	hub := proxy.NewHub(registry)

	r := api.NewRouter(attrdEngine, execLoop, execEngine, alertEntriesFn)
	r.HandleFunc("/api/proxy/tunnel/{node}", func(w http.ResponseWriter, req *http.Request) {
		hub.ServeHTTP(mux.Vars(req)["node"], w, req)
	})

	srv := &http.Server{
		Addr:         *listenAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("listen", *listenAddr).Info("clusterd: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Fatal("clusterd: server failed")
		}
	}()

	log.WithField("version", Version).WithField("node", node).Info("clusterd: started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("clusterd: shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("clusterd: server shutdown error")
	}

	cancel()
	log.Info("clusterd: stopped")
}

func splitSet(csv string) map[string]bool {
	set := make(map[string]bool)
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = true
		}
	}
	return set
}
