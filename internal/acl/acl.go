// Package acl resolves an acting_user / caller-node identity to the groups
// and role the rest of the core gates writes on. It is the one narrow
// authorization hook internal/attrd calls into before a commit
// (internal/proxy does not call it); the policy deciding which sections/channels require which role
// is configuration, not something this spec defines.
package acl

import (
	"sync"
	"time"
)

// Identity is the resolved form of an acting_user/caller-node string.
type Identity struct {
	Name string
	Groups []string
	Role   string
}

// Checker answers "is this identity allowed to write this section/channel".
type Checker interface {
	Resolve(user string) (Identity, error)
	Allowed(identity Identity, section string) bool
}

// SectionPolicy maps a protected section name to the minimum role required
// to write it. Sections absent from this map are unrestricted.
type SectionPolicy map[string]string

// cacheEntry is a TTL-cached resolution: a map plus per-key lastUpdate
// against a fixed ttl.
type cacheEntry struct {
	identity Identity
	at       time.Time
}

// Cache wraps a Resolver with a 5-minute TTL permission-cache idiom so an
// LDAP outage degrades to stale-but-available resolutions instead of
// blocking every commit (§7 transport-transient).
type Cache struct {
	resolver Resolver
	policy   SectionPolicy
	ttl      time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// Resolver performs the actual group lookup (LDAP, static config, ...).
type Resolver interface {
	LookupGroups(user string) ([]string, error)
	RoleForGroups(groups []string) string
}

// NewCache builds a Checker backed by resolver, with a 5-minute cache TTL.
func NewCache(resolver Resolver, policy SectionPolicy) *Cache {
	return &Cache{
		resolver: resolver,
		policy:   policy,
		ttl:      5 * time.Minute,
		entries:  make(map[string]cacheEntry),
	}
}

func (c *Cache) Resolve(user string) (Identity, error) {
	c.mu.RLock()
	entry, ok := c.entries[user]
	c.mu.RUnlock()
	if ok && time.Since(entry.at) < c.ttl {
		return entry.identity, nil
	}

	groups, err := c.resolver.LookupGroups(user)
	if err != nil {
		if ok {
			// Degrade to the stale cached identity rather than deny outright
			// (§7: configuration-store-adjacent transport errors are
			// transient, logged, and do not block the pending commit).
			return entry.identity, nil
		}
		return Identity{}, err
	}

	id := Identity{Name: user, Groups: groups, Role: c.resolver.RoleForGroups(groups)}
	c.mu.Lock()
	c.entries[user] = cacheEntry{identity: id, at: time.Now()}
	c.mu.Unlock()
	return id, nil
}

func (c *Cache) Allowed(identity Identity, section string) bool {
	required, restricted := c.policy[section]
	if !restricted {
		return true
	}
	return identity.Role == required || identity.Role == "admin"
}

var _ Checker = (*Cache)(nil)
