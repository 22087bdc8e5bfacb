package reconcile

import (
	"context"

	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

// Guide returns the current identity's progress through a guide. A guide
// never started has no responses and section 0 unlocked.
func (e *Engine) Guide(ctx context.Context, guideID string) (schema.GuideProgress, error) {
	id, gen := e.begin()
	scope := schema.GuideScope(guideID)

	if !e.usesRemote(id) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.current(gen) {
			return schema.GuideProgress{}, ErrIdentityChanged
		}
		p := e.loadLocalGuide(ctx, id, scope)
		e.sess.guides[guideID] = p.Clone()
		return p, nil
	}

	stored, err := e.remote.LoadGuide(ctx, id.UserID, guideID)
	if err != nil {
		e.logRemote("load guide", id, err)
		e.mu.Lock()
		if !e.current(gen) {
			e.mu.Unlock()
			return schema.GuideProgress{}, ErrIdentityChanged
		}
		p := e.loadLocalGuide(ctx, id, scope)
		e.sess.guides[guideID] = p.Clone()
		e.mu.Unlock()

		e.setDegraded(gen, true)
		return p, err
	}

	view := schema.NewGuideProgress()
	if stored != nil {
		view = stored.Clone()
		view.UnlockedSections = view.UnlockedSections.Add(0)
	}
	view = e.replayGuide(ctx, id, guideID, view)

	e.mu.Lock()
	if !e.current(gen) {
		e.mu.Unlock()
		return schema.GuideProgress{}, ErrIdentityChanged
	}
	if err := e.local.Save(ctx, schema.LocalKey(id, scope), view); err != nil {
		e.logStorage(string(scope)+" mirror", err)
	}
	e.sess.guides[guideID] = view.Clone()
	e.mu.Unlock()

	e.afterRead(ctx, id, gen)
	return view, nil
}

// SaveGuide writes the full progress of a guide for the current identity.
func (e *Engine) SaveGuide(ctx context.Context, guideID string, p schema.GuideProgress) error {
	scope := schema.GuideScope(guideID)
	p = p.Clone()

	e.mu.Lock()
	id, gen := e.sess.id, e.sess.gen
	if err := e.local.Save(ctx, schema.LocalKey(id, scope), p); err != nil {
		e.logStorage(string(scope), err)
	}
	e.sess.guides[guideID] = p.Clone()
	e.mu.Unlock()

	if !e.usesRemote(id) {
		return nil
	}

	if err := e.remote.UpsertGuide(ctx, id.UserID, guideID, p); err != nil {
		e.logRemote("upsert guide", id, err)
		e.mu.Lock()
		j := e.loadJournal(ctx, id)
		if j.Guides == nil {
			j.Guides = make(map[string]schema.GuideProgress)
		}
		j.Guides[guideID] = p
		e.saveJournal(ctx, id, j)
		e.mu.Unlock()

		e.setDegraded(gen, true)
		return err
	}

	e.mu.Lock()
	j := e.loadJournal(ctx, id)
	if _, ok := j.Guides[guideID]; ok {
		delete(j.Guides, guideID)
		e.saveJournal(ctx, id, j)
	}
	e.mu.Unlock()
	return nil
}

// replayGuide pushes a journaled guide write. The pending write replaces
// the remote responses; unlocked sections are the union of both, so nothing
// re-locks.
func (e *Engine) replayGuide(ctx context.Context, id identity.Identity, guideID string, view schema.GuideProgress) schema.GuideProgress {
	e.mu.Lock()
	j := e.loadJournal(ctx, id)
	e.mu.Unlock()

	pending, ok := j.Guides[guideID]
	if !ok {
		return view
	}
	merged := pending.Clone()
	merged.UnlockedSections = merged.UnlockedSections.Union(view.UnlockedSections).Add(0)

	if err := e.remote.UpsertGuide(ctx, id.UserID, guideID, merged); err != nil {
		e.logRemote("replay guide", id, err)
		return merged
	}

	e.mu.Lock()
	cur := e.loadJournal(ctx, id)
	if p, ok := cur.Guides[guideID]; ok && sameGuide(p, pending) {
		delete(cur.Guides, guideID)
		e.saveJournal(ctx, id, cur)
	}
	e.mu.Unlock()
	return merged
}

// loadLocalGuide reads one guide scope of id. Caller holds e.mu.
func (e *Engine) loadLocalGuide(ctx context.Context, id identity.Identity, scope schema.Scope) schema.GuideProgress {
	var p schema.GuideProgress
	if !e.local.Load(ctx, schema.LocalKey(id, scope), &p) {
		return schema.NewGuideProgress()
	}
	if p.Responses == nil {
		p.Responses = map[string]string{}
	}
	p.UnlockedSections = p.UnlockedSections.Add(0)
	return p
}

func sameGuide(a, b schema.GuideProgress) bool {
	if len(a.Responses) != len(b.Responses) || len(a.UnlockedSections) != len(b.UnlockedSections) {
		return false
	}
	for k, v := range a.Responses {
		if bv, ok := b.Responses[k]; !ok || bv != v {
			return false
		}
	}
	return a.UnlockedSections.Contains(b.UnlockedSections)
}
