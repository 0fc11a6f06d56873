package acl

import (
	"fmt"
	"strings"
	"time"

	ldap "github.com/go-ldap/ldap/v3"

	"clusterd/internal/logging"
)

var log = logging.For("acl")

// GroupMapping maps one LDAP group DN/name to the role it confers, trimmed
// to the two fields acl.Resolver needs.
type GroupMapping struct {
	LDAPGroup string
	Role      string
}

// LDAPConfig carries the fields a group lookup (not full user
// authentication) needs.
type LDAPConfig struct {
	Server          string
	Port            int
	BindDN          string
	BindPassword    string
	BaseDN          string
	GroupBaseDN     string
	GroupFilter     string // "{user}" is substituted with the escaped username being resolved
	GroupMemberAttr string
	GroupMappings   []GroupMapping
	DefaultRole     string
	TimeoutSeconds  int
}

// LDAPResolver implements acl.Resolver against a directory server with a
// Connect/Bind/Search sequence, narrowed from "authenticate a user and
// fetch their profile" to "given a username, which groups and therefore
// which role".
type LDAPResolver struct {
	cfg LDAPConfig
}

// NewLDAPResolver constructs a resolver for cfg. It does not connect
// eagerly — dial happens per lookup (connect/defer close per call), since
// this is a low-frequency, not-hot-path operation (attribute commits, not
// request serving).
func NewLDAPResolver(cfg LDAPConfig) *LDAPResolver {
	return &LDAPResolver{cfg: cfg}
}

func (r *LDAPResolver) dial() (*ldap.Conn, error) {
	addr := fmt.Sprintf("%s:%d", r.cfg.Server, r.cfg.Port)
	conn, err := ldap.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("acl: dial ldap %s: %w", addr, err)
	}
	if r.cfg.TimeoutSeconds > 0 {
		conn.SetTimeout(time.Duration(r.cfg.TimeoutSeconds) * time.Second)
	}
	if err := conn.Bind(r.cfg.BindDN, r.cfg.BindPassword); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acl: bind as service account: %w", err)
	}
	return conn, nil
}

// LookupGroups resolves the groups the given username belongs to.
func (r *LDAPResolver) LookupGroups(username string) ([]string, error) {
	conn, err := r.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	filter := strings.ReplaceAll(r.cfg.GroupFilter, "{user}", ldap.EscapeFilter(username))
	req := ldap.NewSearchRequest(
		r.cfg.GroupBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		[]string{"cn"},
		nil,
	)
	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("acl: group search for %s: %w", username, err)
	}

	groups := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		groups = append(groups, entry.GetAttributeValue("cn"))
	}
	log.WithField("user", username).WithField("groups", groups).Debug("acl: resolved groups")
	return groups, nil
}

// RoleForGroups maps resolved groups to a role using the configured
// mappings, falling back to DefaultRole when nothing matches.
func (r *LDAPResolver) RoleForGroups(groups []string) string {
	for _, g := range groups {
		for _, mapping := range r.cfg.GroupMappings {
			if strings.EqualFold(mapping.LDAPGroup, g) {
				return mapping.Role
			}
		}
	}
	return r.cfg.DefaultRole
}

var _ Resolver = (*LDAPResolver)(nil)
