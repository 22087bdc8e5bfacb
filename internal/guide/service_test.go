package guide

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

type memStore struct {
	mu      sync.Mutex
	guides  map[string]schema.GuideProgress
	saves   int
	loadErr error
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{guides: make(map[string]schema.GuideProgress)}
}

func (m *memStore) Guide(ctx context.Context, guideID string) (schema.GuideProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.guides[guideID]
	if !ok {
		p = schema.NewGuideProgress()
	}
	return p.Clone(), m.loadErr
}

func (m *memStore) SaveGuide(ctx context.Context, guideID string, p schema.GuideProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.guides[guideID] = p.Clone()
	return m.saveErr
}

type mapCatalog map[string]*Definition

func (c mapCatalog) Guide(id string) (*Definition, bool) {
	d, ok := c[id]
	return d, ok
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewService(store, mapCatalog{"three": threeSections()}, nil), store
}

// TestService_LoadNormalizes tests that loading cascades through sections without exercise
func TestService_LoadNormalizes(t *testing.T) {
	svc, _ := newTestService(t)

	v, err := svc.Load(context.Background(), "three")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(schema.SectionSet{0, 1}, v.Unlocked); diff != "" {
		t.Errorf("Unlocked mismatch (-want +got):\n%s", diff)
	}
	if v.Complete {
		t.Error("Complete = true for fresh progress")
	}
	if got := v.Sections[1].Label; got != LabelContinue {
		t.Errorf("Sections[1].Label = %q, want %q", got, LabelContinue)
	}
	if v.Sections[0].Label != "" {
		t.Errorf("Sections[0].Label = %q, want empty", v.Sections[0].Label)
	}
}

// TestService_SubmitPersists tests the draft then submit flow
func TestService_SubmitPersists(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	if _, err := svc.SetResponse(ctx, "three", "answer", "busy parents"); err != nil {
		t.Fatalf("SetResponse() failed: %v", err)
	}
	if store.saves != 0 {
		t.Errorf("SetResponse() saved %d times, want 0", store.saves)
	}

	res, err := svc.Submit(ctx, "three", 1)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if diff := cmp.Diff([]int{2}, res.NewlyUnlocked); diff != "" {
		t.Errorf("NewlyUnlocked mismatch (-want +got):\n%s", diff)
	}
	if !res.View.Complete {
		t.Error("View.Complete = false after last unlock")
	}
	if res.SaveError != "" {
		t.Errorf("SaveError = %q, want empty", res.SaveError)
	}

	saved := store.guides["three"]
	if saved.Responses["answer"] != "busy parents" {
		t.Errorf("saved response = %q", saved.Responses["answer"])
	}
	if diff := cmp.Diff(schema.SectionSet{0, 1, 2}, saved.UnlockedSections); diff != "" {
		t.Errorf("saved unlocked mismatch (-want +got):\n%s", diff)
	}
}

// TestService_SetResponseKeepsDraft tests that later edits do not reload and lose earlier ones
func TestService_SetResponseKeepsDraft(t *testing.T) {
	ctx := context.Background()
	def := &Definition{ID: "two", Sections: []Section{
		{Title: "A", Exercise: &Exercise{ID: "ex", Fields: []Field{{ID: "x"}, {ID: "y"}}}},
		{Title: "B"},
	}}
	svc := NewService(newMemStore(), mapCatalog{"two": def}, nil)

	if _, err := svc.SetResponse(ctx, "two", "x", "1"); err != nil {
		t.Fatalf("SetResponse() failed: %v", err)
	}
	v, err := svc.SetResponse(ctx, "two", "y", "2")
	if err != nil {
		t.Fatalf("SetResponse() failed: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"x": "1", "y": "2"}, v.Responses); diff != "" {
		t.Errorf("Responses mismatch (-want +got):\n%s", diff)
	}
}

// TestService_SubmitValidation tests that a blank answer changes nothing
func TestService_SubmitValidation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	if _, err := svc.SetResponse(ctx, "three", "answer", "  "); err != nil {
		t.Fatalf("SetResponse() failed: %v", err)
	}
	_, err := svc.Submit(ctx, "three", 1)
	if !errors.Is(err, schema.ErrValidationFailed) {
		t.Fatalf("Submit() error = %v, want ErrValidationFailed", err)
	}
	if store.saves != 0 {
		t.Errorf("store saved %d times after failed submit", store.saves)
	}

	v, err := svc.Load(ctx, "three")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if v.Unlocked.Has(2) {
		t.Error("section 2 unlocked after failed submit")
	}
}

// TestService_SaveErrorKeepsProgress tests that a failed save still unlocks locally
func TestService_SaveErrorKeepsProgress(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.saveErr = fmt.Errorf("%w: connection refused", schema.ErrRemoteUnavailable)

	if _, err := svc.SetResponse(ctx, "three", "answer", "nurses"); err != nil {
		t.Fatalf("SetResponse() failed: %v", err)
	}
	res, err := svc.Submit(ctx, "three", 1)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if res.SaveError == "" {
		t.Error("SaveError is empty")
	}
	if !res.View.Unlocked.Has(2) {
		t.Error("section 2 not unlocked")
	}
}

// TestService_DegradedLoad tests that a remote failure still yields a view
func TestService_DegradedLoad(t *testing.T) {
	svc, store := newTestService(t)
	store.loadErr = fmt.Errorf("%w: timeout", schema.ErrRemoteUnavailable)

	v, err := svc.Load(context.Background(), "three")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !v.Degraded {
		t.Error("Degraded = false")
	}

	store.loadErr = errors.New("disk on fire")
	if _, err := svc.Load(context.Background(), "three"); err == nil {
		t.Error("Load() succeeded with a non-remote error")
	}
}

// TestService_UnknownGuide tests lookups of guides the catalog does not have
func TestService_UnknownGuide(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Load(ctx, "nope"); !errors.Is(err, ErrUnknownGuide) {
		t.Errorf("Load() error = %v, want ErrUnknownGuide", err)
	}
	if _, err := svc.SetResponse(ctx, "nope", "k", "v"); !errors.Is(err, ErrUnknownGuide) {
		t.Errorf("SetResponse() error = %v, want ErrUnknownGuide", err)
	}
	if _, err := svc.Submit(ctx, "nope", 0); !errors.Is(err, ErrUnknownGuide) {
		t.Errorf("Submit() error = %v, want ErrUnknownGuide", err)
	}
}

// TestService_Reset tests that drafts are dropped
func TestService_Reset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.SetResponse(ctx, "three", "answer", "draft"); err != nil {
		t.Fatalf("SetResponse() failed: %v", err)
	}
	svc.Reset()

	v, err := svc.Load(ctx, "three")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, ok := v.Responses["answer"]; ok {
		t.Error("draft survived Reset")
	}
}
