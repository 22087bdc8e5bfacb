package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/progress/debounce"
	"github.com/blogpad/launchpad/internal/progress/local"
	"github.com/blogpad/launchpad/internal/progress/reconcile"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

type memStore struct {
	mu      sync.Mutex
	record  schema.OnboardingRecord
	patches []schema.OnboardingRecord
	loadErr error
	gen     uint64
}

func (m *memStore) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *memStore) SaveOnboardingFor(ctx context.Context, gen uint64, patch schema.OnboardingRecord) error {
	if gen != m.Generation() {
		return reconcile.ErrIdentityChanged
	}
	return m.SaveOnboarding(ctx, patch)
}

func (m *memStore) Onboarding(ctx context.Context) (schema.OnboardingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Clone(), m.loadErr
}

func (m *memStore) SaveOnboarding(ctx context.Context, patch schema.OnboardingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record.Merge(patch)
	m.patches = append(m.patches, patch.Clone())
	return nil
}

type manualScheduler struct {
	mu     sync.Mutex
	writes map[string]debounce.WriteFunc
}

func (m *manualScheduler) Schedule(name string, write debounce.WriteFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writes == nil {
		m.writes = make(map[string]debounce.WriteFunc)
	}
	m.writes[name] = write
	return nil
}

func (m *manualScheduler) Cancel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.writes, name)
}

func (m *manualScheduler) channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.writes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *manualScheduler) run(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	writes := m.writes
	m.writes = nil
	m.mu.Unlock()
	for name, w := range writes {
		if err := w(context.Background()); err != nil {
			t.Fatalf("write %s failed: %v", name, err)
		}
	}
}

// TestService_SetPerFieldChannels tests that each field debounces on its own channel
func TestService_SetPerFieldChannels(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	saves := &manualScheduler{}
	svc := NewService(store, saves, nil)

	for _, v := range []string{"p", "pa", "parents"} {
		if _, err := svc.Set(ctx, "audience", v); err != nil {
			t.Fatalf("Set() failed: %v", err)
		}
	}
	v, err := svc.Set(ctx, "tools", "AI")
	if err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if got, _ := v.Record.Get("audience"); got != "parents" {
		t.Errorf("optimistic audience = %q, want parents", got)
	}

	want := []string{"onboarding:audience", "onboarding:tools"}
	if diff := cmp.Diff(want, saves.channels()); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}

	saves.run(t)
	if len(store.patches) != 2 {
		t.Fatalf("patches = %d, want 2", len(store.patches))
	}
	for _, p := range store.patches {
		answered := 0
		for _, f := range schema.OnboardingFields {
			if _, ok := p.Get(f); ok {
				answered++
			}
		}
		if answered != 1 {
			t.Errorf("patch %+v carries %d fields, want 1", p, answered)
		}
	}
	if got, _ := store.record.Get("audience"); got != "parents" {
		t.Errorf("stored audience = %q, want parents", got)
	}
}

// TestService_SetInvalid tests rejection before anything is scheduled
func TestService_SetInvalid(t *testing.T) {
	saves := &manualScheduler{}
	svc := NewService(&memStore{}, saves, nil)

	if _, err := svc.Set(context.Background(), "niche_alignment", "sure"); !errors.Is(err, schema.ErrValidationFailed) {
		t.Errorf("Set(sure) error = %v, want ErrValidationFailed", err)
	}
	if _, err := svc.Set(context.Background(), "favourite_color", "blue"); !errors.Is(err, schema.ErrValidationFailed) {
		t.Errorf("Set(unknown) error = %v, want ErrValidationFailed", err)
	}
	if n := len(saves.channels()); n != 0 {
		t.Errorf("scheduled %d writes, want 0", n)
	}
}

// TestService_Status tests completion tracking
func TestService_Status(t *testing.T) {
	ctx := context.Background()
	store := &memStore{record: schema.OnboardingRecord{
		Audience:            schema.Str("coaches"),
		FinalNicheStatement: schema.Str("I help coaches use video to sell."),
	}}
	svc := NewService(store, &manualScheduler{}, nil)

	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.Complete || st.Answered != 2 || st.NicheStatement == "" {
		t.Errorf("Status() = %+v", st)
	}

	if err := svc.Put(ctx, schema.OnboardingRecord{NicheAlignment: schema.Str(schema.AlignmentYes)}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	st, err = svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if !st.Complete {
		t.Error("Complete = false after alignment yes")
	}
}

// TestService_Degraded tests that a remote failure is reported, not returned
func TestService_Degraded(t *testing.T) {
	store := &memStore{loadErr: fmt.Errorf("%w: timeout", schema.ErrRemoteUnavailable)}
	svc := NewService(store, &manualScheduler{}, nil)

	v, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !v.Status.Degraded {
		t.Error("Degraded = false")
	}
}

// TestService_Wizard tests that wizard answers go through the debounced path
func TestService_Wizard(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	saves := &manualScheduler{}
	svc := NewService(store, saves, nil)

	w, err := svc.Wizard(ctx)
	if err != nil {
		t.Fatalf("Wizard() failed: %v", err)
	}
	if err := w.Answer("audience", "designers"); err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}
	saves.run(t)
	if got, _ := store.record.Get("audience"); got != "designers" {
		t.Errorf("stored audience = %q, want designers", got)
	}
}

// TestService_Invalidate tests that pending edits are dropped for the next identity
func TestService_Invalidate(t *testing.T) {
	ctx := context.Background()
	saves := &manualScheduler{}
	svc := NewService(&memStore{}, saves, nil)

	if _, err := svc.Set(ctx, "outcome", "ship"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	svc.Invalidate()
	if n := len(saves.channels()); n != 0 {
		t.Errorf("pending writes = %d after Invalidate", n)
	}
	v, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !v.Record.IsEmpty() {
		t.Errorf("record after Invalidate = %+v", v.Record)
	}
}

// TestService_IdentityChangeBeforeWrite tests that an answer given anonymously
// is not written into the record of the user who signs in before it fires
func TestService_IdentityChangeBeforeWrite(t *testing.T) {
	ctx := context.Background()
	eng := reconcile.New(local.NewMemory(nil), nil, nil)
	saves := &manualScheduler{}
	svc := NewService(eng, saves, nil)

	if _, err := svc.Set(ctx, "audience", "anyone"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	eng.SetIdentity(identity.Authenticated("alice"))
	saves.run(t)

	rec, err := eng.Onboarding(ctx)
	if err != nil {
		t.Fatalf("Onboarding() failed: %v", err)
	}
	if !rec.IsEmpty() {
		t.Errorf("alice onboarding = %+v, want empty", rec)
	}
	svc.mu.Lock()
	n := len(svc.pending)
	svc.mu.Unlock()
	if n != 0 {
		t.Errorf("pending edits = %d after dropped write, want 0", n)
	}
}
