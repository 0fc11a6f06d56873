package attrd

// authorize resolves actingUser (if the engine has a Checker configured)
// and checks whether the resolved identity may write section. A nil
// Checker (the common case: access control is an out-of-scope collaborator
// per §1) always allows. Wired as the one hook internal/attrd calls before
// a commit, per SPEC_FULL.md's "acl.Checker update() contract" addition.
func (e *Engine) authorize(actingUser, section string) error {
	if e.checker == nil || actingUser == "" {
		return nil
	}
	identity, err := e.checker.Resolve(actingUser)
	if err != nil {
		// §7: an LDAP/ACL-store outage is transport-transient, not a reason
		// to block a pending commit; acl.Cache already degrades to a stale
		// cached identity on its own, so an error here means no identity
		// was ever resolvable — log and allow rather than wedge the table.
		log.WithField("user", actingUser).WithField("error", err).Warn("attrd: acl resolve failed, allowing by default")
		return nil
	}
	if !e.checker.Allowed(identity, section) {
		return errUnauthorized{user: actingUser, section: section}
	}
	return nil
}

type errUnauthorized struct {
	user    string
	section string
}

func (e errUnauthorized) Error() string {
	return "attrd: user " + e.user + " is not authorized to write section " + e.section
}
