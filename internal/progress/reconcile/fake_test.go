package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

// fakeRemote is an in-memory Remote with failure injection.
type fakeRemote struct {
	mu         sync.Mutex
	fail       bool
	notes      map[string]schema.NoteSet
	onboarding map[string]schema.OnboardingRecord
	guides     map[string]map[string]schema.GuideProgress
	upserts    int

	// beforeLoad runs at the start of every load, outside the lock.
	beforeLoad func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		notes:      make(map[string]schema.NoteSet),
		onboarding: make(map[string]schema.OnboardingRecord),
		guides:     make(map[string]map[string]schema.GuideProgress),
	}
}

func (f *fakeRemote) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeRemote) check(op string) error {
	if f.fail {
		return fmt.Errorf("%w: %s: connection refused", schema.ErrRemoteUnavailable, op)
	}
	return nil
}

func (f *fakeRemote) load() {
	if f.beforeLoad != nil {
		f.beforeLoad()
	}
}

func (f *fakeRemote) LoadNotes(ctx context.Context, userID string) (schema.NoteSet, error) {
	f.load()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("load notes"); err != nil {
		return nil, err
	}
	return f.notes[userID].Clone(), nil
}

func (f *fakeRemote) UpsertNote(ctx context.Context, userID, taskID string, rec schema.NoteRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("upsert note"); err != nil {
		return err
	}
	if f.notes[userID] == nil {
		f.notes[userID] = schema.NoteSet{}
	}
	f.notes[userID][taskID] = rec
	f.upserts++
	return nil
}

func (f *fakeRemote) DeleteNotes(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("delete notes"); err != nil {
		return err
	}
	delete(f.notes, userID)
	return nil
}

func (f *fakeRemote) LoadOnboarding(ctx context.Context, userID string) (*schema.OnboardingRecord, error) {
	f.load()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("load onboarding"); err != nil {
		return nil, err
	}
	rec, ok := f.onboarding[userID]
	if !ok {
		return nil, nil
	}
	c := rec.Clone()
	return &c, nil
}

func (f *fakeRemote) UpsertOnboarding(ctx context.Context, userID string, patch schema.OnboardingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("upsert onboarding"); err != nil {
		return err
	}
	rec := f.onboarding[userID]
	rec.Merge(patch)
	f.onboarding[userID] = rec
	f.upserts++
	return nil
}

func (f *fakeRemote) LoadGuide(ctx context.Context, userID, guideID string) (*schema.GuideProgress, error) {
	f.load()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("load guide"); err != nil {
		return nil, err
	}
	p, ok := f.guides[userID][guideID]
	if !ok {
		return nil, nil
	}
	c := p.Clone()
	return &c, nil
}

func (f *fakeRemote) UpsertGuide(ctx context.Context, userID, guideID string, p schema.GuideProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("upsert guide"); err != nil {
		return err
	}
	if f.guides[userID] == nil {
		f.guides[userID] = make(map[string]schema.GuideProgress)
	}
	f.guides[userID][guideID] = p.Clone()
	f.upserts++
	return nil
}
