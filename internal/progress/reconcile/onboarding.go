package reconcile

import (
	"context"
	"fmt"

	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

// Onboarding returns the onboarding answers of the current identity. A user
// who never answered anything gets an empty record.
func (e *Engine) Onboarding(ctx context.Context) (schema.OnboardingRecord, error) {
	id, gen := e.begin()

	if !e.usesRemote(id) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.current(gen) {
			return schema.OnboardingRecord{}, ErrIdentityChanged
		}
		rec := e.loadLocalOnboarding(ctx, id)
		e.cacheOnboarding(rec)
		return rec, nil
	}

	stored, err := e.remote.LoadOnboarding(ctx, id.UserID)
	if err != nil {
		e.logRemote("load onboarding", id, err)
		e.mu.Lock()
		if !e.current(gen) {
			e.mu.Unlock()
			return schema.OnboardingRecord{}, ErrIdentityChanged
		}
		rec := e.loadLocalOnboarding(ctx, id)
		e.cacheOnboarding(rec)
		e.mu.Unlock()

		e.setDegraded(gen, true)
		return rec, err
	}

	var view schema.OnboardingRecord
	if stored != nil {
		view = stored.Clone()
	}
	view = e.replayOnboarding(ctx, id, view)

	e.mu.Lock()
	if !e.current(gen) {
		e.mu.Unlock()
		return schema.OnboardingRecord{}, ErrIdentityChanged
	}
	if err := e.local.Save(ctx, schema.LocalKey(id, schema.ScopeOnboarding), view); err != nil {
		e.logStorage("onboarding mirror", err)
	}
	e.cacheOnboarding(view)
	e.mu.Unlock()

	e.afterRead(ctx, id, gen)
	return view, nil
}

// SaveOnboarding merges the answered fields of patch into the current
// identity's record. An invalid patch is rejected before anything is written.
func (e *Engine) SaveOnboarding(ctx context.Context, patch schema.OnboardingRecord) error {
	return e.saveOnboarding(ctx, nil, patch)
}

// SaveOnboardingFor is SaveOnboarding for answers given in session
// generation gen. When the session has moved on nothing is written and
// ErrIdentityChanged is returned.
func (e *Engine) SaveOnboardingFor(ctx context.Context, gen uint64, patch schema.OnboardingRecord) error {
	return e.saveOnboarding(ctx, &gen, patch)
}

func (e *Engine) saveOnboarding(ctx context.Context, want *uint64, patch schema.OnboardingRecord) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", schema.ErrValidationFailed, err)
	}

	e.mu.Lock()
	id, gen := e.sess.id, e.sess.gen
	if want != nil && *want != gen {
		e.mu.Unlock()
		return ErrIdentityChanged
	}
	rec := e.loadLocalOnboarding(ctx, id)
	rec.Merge(patch)
	if err := e.local.Save(ctx, schema.LocalKey(id, schema.ScopeOnboarding), rec); err != nil {
		e.logStorage("onboarding", err)
	}
	e.cacheOnboarding(rec)
	e.mu.Unlock()

	if !e.usesRemote(id) {
		return nil
	}

	if err := e.remote.UpsertOnboarding(ctx, id.UserID, patch); err != nil {
		e.logRemote("upsert onboarding", id, err)
		e.mu.Lock()
		j := e.loadJournal(ctx, id)
		if j.Onboarding == nil {
			j.Onboarding = &schema.OnboardingRecord{}
		}
		j.Onboarding.Merge(patch)
		e.saveJournal(ctx, id, j)
		e.mu.Unlock()

		e.setDegraded(gen, true)
		return err
	}

	e.mu.Lock()
	j := e.loadJournal(ctx, id)
	if j.Onboarding != nil {
		// fields just written are no longer pending
		for _, name := range schema.OnboardingFields {
			if _, ok := patch.Get(name); ok {
				*j.Onboarding.Field(name) = nil
			}
		}
		if j.Onboarding.IsEmpty() {
			j.Onboarding = nil
		}
		e.saveJournal(ctx, id, j)
	}
	e.mu.Unlock()
	return nil
}

// replayOnboarding pushes the journaled onboarding patch and lays it over
// the remote view.
func (e *Engine) replayOnboarding(ctx context.Context, id identity.Identity, view schema.OnboardingRecord) schema.OnboardingRecord {
	e.mu.Lock()
	j := e.loadJournal(ctx, id)
	e.mu.Unlock()

	if j.Onboarding == nil {
		return view
	}
	pending := j.Onboarding.Clone()
	view.Merge(pending)

	if err := e.remote.UpsertOnboarding(ctx, id.UserID, pending); err != nil {
		e.logRemote("replay onboarding", id, err)
		return view
	}

	e.mu.Lock()
	cur := e.loadJournal(ctx, id)
	if cur.Onboarding != nil && sameOnboarding(*cur.Onboarding, pending) {
		cur.Onboarding = nil
		e.saveJournal(ctx, id, cur)
	}
	e.mu.Unlock()
	return view
}

// loadLocalOnboarding reads the onboarding scope of id. Caller holds e.mu.
func (e *Engine) loadLocalOnboarding(ctx context.Context, id identity.Identity) schema.OnboardingRecord {
	var rec schema.OnboardingRecord
	e.local.Load(ctx, schema.LocalKey(id, schema.ScopeOnboarding), &rec)
	return rec
}

// cacheOnboarding keeps a copy of rec as the session's view. Caller holds
// e.mu.
func (e *Engine) cacheOnboarding(rec schema.OnboardingRecord) {
	c := rec.Clone()
	e.sess.onboarding = &c
}

func sameOnboarding(a, b schema.OnboardingRecord) bool {
	for _, name := range schema.OnboardingFields {
		av, aok := a.Get(name)
		bv, bok := b.Get(name)
		if aok != bok || av != bv {
			return false
		}
	}
	return true
}
