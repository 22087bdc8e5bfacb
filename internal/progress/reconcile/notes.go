package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

// Notes returns the task notes of the current identity. The returned set is
// always usable; an error wrapping schema.ErrRemoteUnavailable means it came
// from the local store.
func (e *Engine) Notes(ctx context.Context) (schema.NoteSet, error) {
	id, gen := e.begin()

	if !e.usesRemote(id) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.current(gen) {
			return nil, ErrIdentityChanged
		}
		notes := e.loadLocalNotes(ctx, id)
		e.sess.notes = notes.Clone()
		return notes, nil
	}

	remoteNotes, err := e.remote.LoadNotes(ctx, id.UserID)
	if err != nil {
		e.logRemote("load notes", id, err)
		e.mu.Lock()
		if !e.current(gen) {
			e.mu.Unlock()
			return nil, ErrIdentityChanged
		}
		notes := e.loadLocalNotes(ctx, id)
		e.sess.notes = notes.Clone()
		e.mu.Unlock()

		e.setDegraded(gen, true)
		return notes, err
	}

	view := e.replayNotes(ctx, id, remoteNotes)

	e.mu.Lock()
	if !e.current(gen) {
		e.mu.Unlock()
		return nil, ErrIdentityChanged
	}
	if err := e.local.Save(ctx, schema.LocalKey(id, schema.ScopeNotes), view); err != nil {
		e.logStorage("notes mirror", err)
	}
	e.sess.notes = view.Clone()
	e.mu.Unlock()

	e.afterRead(ctx, id, gen)
	return view, nil
}

// CachedNotes returns the last notes view of this session without touching
// storage.
func (e *Engine) CachedNotes() (schema.NoteSet, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.notes == nil {
		return nil, false
	}
	return e.sess.notes.Clone(), true
}

// SaveNote writes one task note locally and, for a signed-in user, to the
// remote store. A remote failure is returned after the local write is kept
// and the delta journaled.
func (e *Engine) SaveNote(ctx context.Context, taskID string, rec schema.NoteRecord) error {
	return e.saveNote(ctx, nil, taskID, rec)
}

// SaveNoteFor is SaveNote for an edit made in session generation gen. When
// the session has moved on nothing is written and ErrIdentityChanged is
// returned.
func (e *Engine) SaveNoteFor(ctx context.Context, gen uint64, taskID string, rec schema.NoteRecord) error {
	return e.saveNote(ctx, &gen, taskID, rec)
}

func (e *Engine) saveNote(ctx context.Context, want *uint64, taskID string, rec schema.NoteRecord) error {
	e.mu.Lock()
	id, gen := e.sess.id, e.sess.gen
	if want != nil && *want != gen {
		e.mu.Unlock()
		return ErrIdentityChanged
	}
	notes := e.loadLocalNotes(ctx, id)
	notes[taskID] = rec
	if err := e.local.Save(ctx, schema.LocalKey(id, schema.ScopeNotes), notes); err != nil {
		e.logStorage("notes", err)
	}
	if e.sess.notes != nil {
		e.sess.notes[taskID] = rec
	}
	e.mu.Unlock()

	if !e.usesRemote(id) {
		return nil
	}

	if err := e.remote.UpsertNote(ctx, id.UserID, taskID, rec); err != nil {
		e.logRemote("upsert note", id, err)
		e.mu.Lock()
		j := e.loadJournal(ctx, id)
		if j.Notes == nil {
			j.Notes = make(map[string]schema.NoteRecord)
		}
		j.Notes[taskID] = rec
		e.saveJournal(ctx, id, j)
		e.mu.Unlock()

		e.setDegraded(gen, true)
		return err
	}

	e.mu.Lock()
	j := e.loadJournal(ctx, id)
	if _, ok := j.Notes[taskID]; ok {
		delete(j.Notes, taskID)
		e.saveJournal(ctx, id, j)
	}
	e.mu.Unlock()
	return nil
}

// ResetProgress clears every task note of the current identity on both
// tiers. Onboarding and guide progress are kept.
func (e *Engine) ResetProgress(ctx context.Context) error {
	e.mu.Lock()
	id, gen := e.sess.id, e.sess.gen
	if err := e.local.Clear(ctx, schema.LocalKey(id, schema.ScopeNotes)); err != nil {
		e.logStorage("notes", err)
	}
	e.sess.notes = schema.NoteSet{}
	e.mu.Unlock()

	if !e.usesRemote(id) {
		return nil
	}

	err := e.remote.DeleteNotes(ctx, id.UserID)

	e.mu.Lock()
	j := e.loadJournal(ctx, id)
	j.Notes = nil
	j.NotesReset = err != nil
	e.saveJournal(ctx, id, j)
	e.mu.Unlock()

	if err != nil {
		e.logRemote("delete notes", id, err)
		e.setDegraded(gen, true)
		return err
	}
	return nil
}

// replayNotes pushes journaled note deltas and returns the remote view with
// whatever is still pending laid over it.
func (e *Engine) replayNotes(ctx context.Context, id identity.Identity, remoteNotes schema.NoteSet) schema.NoteSet {
	e.mu.Lock()
	j := e.loadJournal(ctx, id)
	localNotes := e.loadLocalNotes(ctx, id)
	e.mu.Unlock()

	view := remoteNotes.Clone()
	if !j.notesPending() {
		return view
	}

	toPush := j.Notes
	if j.NotesReset {
		if err := e.remote.DeleteNotes(ctx, id.UserID); err != nil {
			e.logRemote("replay reset", id, err)
			return localNotes
		}
		view = schema.NoteSet{}
		toPush = localNotes
	}

	failed := make(map[string]schema.NoteRecord)
	for taskID, rec := range toPush {
		view[taskID] = rec
		if err := e.remote.UpsertNote(ctx, id.UserID, taskID, rec); err != nil {
			e.logRemote("replay note", id, err)
			failed[taskID] = rec
		}
	}

	e.mu.Lock()
	cur := e.loadJournal(ctx, id)
	if j.NotesReset {
		cur.NotesReset = false
	}
	for taskID, rec := range toPush {
		if _, stillFailing := failed[taskID]; stillFailing {
			continue
		}
		if pending, ok := cur.Notes[taskID]; ok && pending == rec {
			delete(cur.Notes, taskID)
		}
	}
	for taskID, rec := range failed {
		if cur.Notes == nil {
			cur.Notes = make(map[string]schema.NoteRecord)
		}
		if _, newer := cur.Notes[taskID]; !newer {
			cur.Notes[taskID] = rec
		}
	}
	e.saveJournal(ctx, id, cur)
	e.mu.Unlock()

	e.logger.Info("replayed pending notes",
		zap.Stringer("identity", id),
		zap.Int("pushed", len(toPush)-len(failed)),
		zap.Int("failed", len(failed)))
	return view
}

// loadLocalNotes reads the notes scope of id. Caller holds e.mu.
func (e *Engine) loadLocalNotes(ctx context.Context, id identity.Identity) schema.NoteSet {
	var notes schema.NoteSet
	if !e.local.Load(ctx, schema.LocalKey(id, schema.ScopeNotes), &notes) || notes == nil {
		notes = schema.NoteSet{}
	}
	return notes
}
