package schema

import (
	"strings"

	"github.com/blogpad/launchpad/internal/identity"
)

// Scope is the logical key a record is stored under, independent of the
// storage medium.
type Scope string

// Fixed scopes.
const (
	ScopeNotes      Scope = "notes"
	ScopeOnboarding Scope = "onboarding"
	// ScopePending holds remote writes that failed and still need pushing.
	ScopePending Scope = "pending"
)

const guidePrefix = "guide:"

// GuideScope returns the scope of one guide's progress.
func GuideScope(guideID string) Scope {
	return Scope(guidePrefix + guideID)
}

// GuideID returns the guide id of a guide scope.
func (s Scope) GuideID() (string, bool) {
	return strings.CutPrefix(string(s), guidePrefix)
}

// LocalKey combines identity and scope into a local storage key. Anonymous
// and authenticated keys live in disjoint namespaces.
func LocalKey(id identity.Identity, scope Scope) string {
	return IdentityPrefix(id) + string(scope)
}

// IdentityPrefix is the key prefix shared by every scope of one identity.
func IdentityPrefix(id identity.Identity) string {
	return id.String() + "/"
}
