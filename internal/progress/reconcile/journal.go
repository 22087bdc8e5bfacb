package reconcile

import (
	"context"

	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

// journal holds remote writes that failed for one user.
type journal struct {
	// NotesReset means the user's remote notes must be deleted and replaced
	// by the local notes.
	NotesReset bool                            `json:"notes_reset,omitempty"`
	Notes      map[string]schema.NoteRecord    `json:"notes,omitempty"`
	Onboarding *schema.OnboardingRecord        `json:"onboarding,omitempty"`
	Guides     map[string]schema.GuideProgress `json:"guides,omitempty"`
}

func (j *journal) empty() bool {
	return !j.NotesReset && len(j.Notes) == 0 && j.Onboarding == nil && len(j.Guides) == 0
}

func (j *journal) notesPending() bool {
	return j.NotesReset || len(j.Notes) > 0
}

// loadJournal reads the journal of id. Caller holds e.mu.
func (e *Engine) loadJournal(ctx context.Context, id identity.Identity) *journal {
	var j journal
	e.local.Load(ctx, schema.LocalKey(id, schema.ScopePending), &j)
	return &j
}

// saveJournal writes (or clears) the journal of id. Caller holds e.mu.
func (e *Engine) saveJournal(ctx context.Context, id identity.Identity, j *journal) {
	key := schema.LocalKey(id, schema.ScopePending)
	var err error
	if j.empty() {
		err = e.local.Clear(ctx, key)
	} else {
		err = e.local.Save(ctx, key, j)
	}
	if err != nil {
		e.logStorage("pending journal", err)
	}
}

// PendingCount returns how many journaled deltas wait to be pushed for the
// current user.
func (e *Engine) PendingCount(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.id.IsAnonymous() {
		return 0
	}
	j := e.loadJournal(ctx, e.sess.id)
	n := len(j.Notes) + len(j.Guides)
	if j.NotesReset {
		n++
	}
	if j.Onboarding != nil {
		n++
	}
	return n
}
