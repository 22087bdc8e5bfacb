package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blogpad/launchpad/internal/curriculum"
	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/progress/debounce"
	"github.com/blogpad/launchpad/internal/progress/local"
	"github.com/blogpad/launchpad/internal/progress/reconcile"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

type memStore struct {
	mu      sync.Mutex
	notes   schema.NoteSet
	writes  []string
	resets  int
	loadErr error
	gen     uint64
}

func (m *memStore) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *memStore) SaveNoteFor(ctx context.Context, gen uint64, taskID string, rec schema.NoteRecord) error {
	if gen != m.Generation() {
		return reconcile.ErrIdentityChanged
	}
	return m.SaveNote(ctx, taskID, rec)
}

func (m *memStore) Notes(ctx context.Context) (schema.NoteSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notes.Clone(), m.loadErr
}

func (m *memStore) SaveNote(ctx context.Context, taskID string, rec schema.NoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notes == nil {
		m.notes = schema.NoteSet{}
	}
	m.notes[taskID] = rec
	m.writes = append(m.writes, taskID)
	return nil
}

func (m *memStore) ResetProgress(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = schema.NoteSet{}
	m.resets++
	return nil
}

// manualScheduler keeps the latest write per channel until run is called.
type manualScheduler struct {
	mu     sync.Mutex
	writes map[string]debounce.WriteFunc
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{writes: make(map[string]debounce.WriteFunc)}
}

func (m *manualScheduler) Schedule(name string, write debounce.WriteFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[name] = write
	return nil
}

func (m *manualScheduler) Cancel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.writes, name)
}

func (m *manualScheduler) run(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	writes := m.writes
	m.writes = make(map[string]debounce.WriteFunc)
	m.mu.Unlock()
	for name, w := range writes {
		if err := w(context.Background()); err != nil {
			t.Fatalf("write %s failed: %v", name, err)
		}
	}
}

func (m *manualScheduler) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func newTestService(t *testing.T) (*Service, *memStore, *manualScheduler) {
	t.Helper()
	c, err := curriculum.Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	store := &memStore{notes: schema.NoteSet{}}
	saves := newManualScheduler()
	return NewService(store, c, saves, nil), store, saves
}

// TestEdit_Debounced tests that repeated edits coalesce into one write of the last value
func TestEdit_Debounced(t *testing.T) {
	ctx := context.Background()
	svc, store, saves := newTestService(t)

	for _, text := range []string{"a", "ab", "abc"} {
		if _, err := svc.Edit(ctx, "d1-3", text, false); err != nil {
			t.Fatalf("Edit() failed: %v", err)
		}
	}

	got, err := svc.Get(ctx, "d1-3")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Note != "abc" {
		t.Errorf("optimistic note = %q, want abc", got.Note)
	}
	if len(store.writes) != 0 {
		t.Errorf("store written before the debounce fired: %v", store.writes)
	}

	saves.run(t)
	if diff := cmp.Diff([]string{"d1-3"}, store.writes); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	if store.notes["d1-3"].Note != "abc" {
		t.Errorf("stored note = %q, want abc", store.notes["d1-3"].Note)
	}
}

// TestToggle tests flipping completion while keeping the note
func TestToggle(t *testing.T) {
	ctx := context.Background()
	svc, store, saves := newTestService(t)
	store.notes["w1-2"] = schema.NoteRecord{Note: "host login"}

	rec, err := svc.Toggle(ctx, "w1-2")
	if err != nil {
		t.Fatalf("Toggle() failed: %v", err)
	}
	want := schema.NoteRecord{Note: "host login", Completed: true}
	if rec != want {
		t.Errorf("Toggle() = %+v, want %+v", rec, want)
	}

	rec, err = svc.Toggle(ctx, "w1-2")
	if err != nil {
		t.Fatalf("Toggle() failed: %v", err)
	}
	if rec.Completed {
		t.Error("second Toggle() left the task completed")
	}

	saves.run(t)
	if store.notes["w1-2"].Completed {
		t.Error("stored record is completed after two toggles")
	}
}

// TestUnknownTask tests that task ids outside the curriculum are rejected
func TestUnknownTask(t *testing.T) {
	ctx := context.Background()
	svc, _, saves := newTestService(t)

	if _, err := svc.Edit(ctx, "x-1", "note", false); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Edit() error = %v, want ErrUnknownTask", err)
	}
	if _, err := svc.Toggle(ctx, "x-1"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Toggle() error = %v, want ErrUnknownTask", err)
	}
	if err := svc.Put(ctx, "x-1", schema.NoteRecord{}); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Put() error = %v, want ErrUnknownTask", err)
	}
	if saves.pending() != 0 {
		t.Errorf("pending writes = %d, want 0", saves.pending())
	}
}

// TestPut tests that an immediate write replaces a pending edit
func TestPut(t *testing.T) {
	ctx := context.Background()
	svc, store, saves := newTestService(t)

	if _, err := svc.Edit(ctx, "d1-4", "draft", false); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if err := svc.Put(ctx, "d1-4", schema.NoteRecord{Note: "example.com", Completed: true}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if saves.pending() != 0 {
		t.Errorf("pending writes = %d, want 0", saves.pending())
	}
	if got := store.notes["d1-4"]; got.Note != "example.com" || !got.Completed {
		t.Errorf("stored record = %+v", got)
	}
}

// TestReset tests that pending edits are dropped and notes cleared
func TestReset(t *testing.T) {
	ctx := context.Background()
	svc, store, saves := newTestService(t)
	store.notes["d1-1"] = schema.NoteRecord{Completed: true}

	if _, err := svc.Edit(ctx, "d1-2", "names", false); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	if saves.pending() != 0 {
		t.Errorf("pending writes = %d after Reset", saves.pending())
	}
	if store.resets != 1 {
		t.Errorf("resets = %d, want 1", store.resets)
	}

	v, err := svc.All(ctx)
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}
	if len(v.Notes) != 0 {
		t.Errorf("notes after Reset = %v", v.Notes)
	}
}

// TestLoad_Degraded tests that a remote failure still yields the local notes
func TestLoad_Degraded(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.notes["d1-1"] = schema.NoteRecord{Note: "local"}
	store.loadErr = fmt.Errorf("%w: timeout", schema.ErrRemoteUnavailable)

	v, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !v.Degraded {
		t.Error("Degraded = false")
	}
	if v.Notes["d1-1"].Note != "local" {
		t.Errorf("note = %q, want local", v.Notes["d1-1"].Note)
	}
}

// TestLoad_KeepsPendingEdits tests that a reload does not hide unwritten edits
func TestLoad_KeepsPendingEdits(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	store.notes["d1-5"] = schema.NoteRecord{Note: "old"}

	if _, err := svc.Edit(ctx, "d1-5", "new", true); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	v, err := svc.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := v.Notes["d1-5"]; got.Note != "new" || !got.Completed {
		t.Errorf("note after reload = %+v, want pending edit", got)
	}
}

// TestInvalidate tests that the next read loads again
func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	svc, store, saves := newTestService(t)

	if _, err := svc.Edit(ctx, "d1-6", "bookmark", true); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	svc.Invalidate()
	if saves.pending() != 0 {
		t.Errorf("pending writes = %d after Invalidate", saves.pending())
	}

	store.notes["d1-6"] = schema.NoteRecord{Note: "other user"}
	got, err := svc.Get(ctx, "d1-6")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Note != "other user" {
		t.Errorf("Get() = %q, want the reloaded note", got.Note)
	}
}

// TestEdit_IdentityChangeBeforeWrite tests that an anonymous edit whose write
// fires after sign-in never lands in the signed-in user's notes
func TestEdit_IdentityChangeBeforeWrite(t *testing.T) {
	ctx := context.Background()
	c, err := curriculum.Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	eng := reconcile.New(local.NewMemory(nil), nil, nil)
	saves := newManualScheduler()
	svc := NewService(eng, c, saves, nil)

	if _, err := svc.Edit(ctx, "d1-1", "anon draft", true); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	eng.SetIdentity(identity.Authenticated("alice"))

	// the write fires before the service hears about the new identity
	saves.run(t)
	svc.Invalidate()

	v, err := svc.All(ctx)
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}
	if rec, ok := v.Notes["d1-1"]; ok {
		t.Errorf("alice notes contain anonymous edit: %+v", rec)
	}

	// an edit made as alice is still written
	if _, err := svc.Edit(ctx, "d1-2", "names", false); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	saves.run(t)
	notes, err := eng.Notes(ctx)
	if err != nil {
		t.Fatalf("Notes() failed: %v", err)
	}
	if notes["d1-2"].Note != "names" {
		t.Errorf("alice note d1-2 = %+v, want names", notes["d1-2"])
	}
}

// TestEdit_PendingUntilWritten tests that a reload during a write keeps the edit visible
func TestEdit_PendingUntilWritten(t *testing.T) {
	ctx := context.Background()
	svc, store, saves := newTestService(t)

	if _, err := svc.Edit(ctx, "d1-3", "porkbun", false); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}

	var seen schema.NoteRecord
	blocking := &reloadingStore{memStore: store, reload: func() {
		v, err := svc.Load(ctx)
		if err != nil {
			t.Errorf("Load() failed: %v", err)
		}
		seen = v.Notes["d1-3"]
	}}
	svc.store = blocking
	saves.run(t)

	if seen.Note != "porkbun" {
		t.Errorf("note seen during write = %+v, want porkbun", seen)
	}
	svc.mu.Lock()
	n := len(svc.pending)
	svc.mu.Unlock()
	if n != 0 {
		t.Errorf("pending edits = %d after write, want 0", n)
	}
}

// reloadingStore runs reload before a debounced write reaches the store.
type reloadingStore struct {
	*memStore
	reload func()
}

func (r *reloadingStore) SaveNoteFor(ctx context.Context, gen uint64, taskID string, rec schema.NoteRecord) error {
	r.reload()
	return r.memStore.SaveNoteFor(ctx, gen, taskID, rec)
}
