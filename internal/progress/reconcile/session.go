package reconcile

import (
	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

// State is the observable part of the session.
type State struct {
	Identity identity.Identity
	// Degraded is set when a remote call failed in this session and cleared
	// by the next successful remote read with nothing left to push.
	Degraded bool
	// Generation increases on every identity change.
	Generation uint64
}

// session is the engine's mutable context. It is reset on identity change.
type session struct {
	id       identity.Identity
	degraded bool
	gen      uint64

	// last merged views for the current identity
	notes      schema.NoteSet
	onboarding *schema.OnboardingRecord
	guides     map[string]schema.GuideProgress
}

func newSession(id identity.Identity, gen uint64) *session {
	return &session{
		id:     id,
		gen:    gen,
		guides: make(map[string]schema.GuideProgress),
	}
}

func (s *session) state() State {
	return State{Identity: s.id, Degraded: s.degraded, Generation: s.gen}
}
