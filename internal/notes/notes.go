// Package notes is the dashboard's view of task notes: optimistic edits
// shown immediately and persisted through the debounced save path.
package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/curriculum"
	"github.com/blogpad/launchpad/internal/progress/debounce"
	"github.com/blogpad/launchpad/internal/progress/reconcile"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

// ErrUnknownTask is returned for a task id that is not in the curriculum.
var ErrUnknownTask = errors.New("unknown task")

// Store persists task notes. *reconcile.Engine satisfies it.
type Store interface {
	Notes(ctx context.Context) (schema.NoteSet, error)
	SaveNote(ctx context.Context, taskID string, rec schema.NoteRecord) error
	// SaveNoteFor writes only while the session generation is still gen and
	// returns reconcile.ErrIdentityChanged otherwise.
	SaveNoteFor(ctx context.Context, gen uint64, taskID string, rec schema.NoteRecord) error
	Generation() uint64
	ResetProgress(ctx context.Context) error
}

// Tasks resolves task ids.
type Tasks interface {
	Task(id string) (curriculum.Task, bool)
}

// Scheduler debounces writes per channel. *debounce.Coordinator satisfies it.
type Scheduler interface {
	Schedule(name string, write debounce.WriteFunc) error
	Cancel(name string)
}

// View is the notes of the current identity.
type View struct {
	Notes schema.NoteSet `json:"notes"`
	// Degraded is set when the notes came from the local store because the
	// remote store could not be reached.
	Degraded bool `json:"degraded"`
}

// Channel returns the save channel of a task.
func Channel(taskID string) string {
	return "note:" + taskID
}

// Service holds the displayed notes and routes edits to storage.
type Service struct {
	store  Store
	tasks  Tasks
	saves  Scheduler
	logger *zap.Logger

	mu       sync.Mutex
	view     schema.NoteSet
	loaded   bool
	degraded bool
	pending  map[string]uint64 // task id -> edit sequence not yet written
	seq      uint64
}

// NewService creates a notes service.
func NewService(store Store, tasks Tasks, saves Scheduler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		tasks:   tasks,
		saves:   saves,
		logger:  logger,
		pending: make(map[string]uint64),
	}
}

// Load reads the notes of the current identity and replaces the view.
func (s *Service) Load(ctx context.Context) (View, error) {
	notes, err := s.store.Notes(ctx)
	degraded := false
	if err != nil {
		if !errors.Is(err, schema.ErrRemoteUnavailable) {
			return View{}, err
		}
		degraded = true
	}
	if notes == nil {
		notes = schema.NoteSet{}
	}

	s.mu.Lock()
	// edits not yet written win over what storage returned
	for taskID := range s.pending {
		if rec, ok := s.view[taskID]; ok {
			notes[taskID] = rec
		}
	}
	s.view = notes
	s.loaded = true
	s.degraded = degraded
	v := View{Notes: s.view.Clone(), Degraded: degraded}
	s.mu.Unlock()
	return v, nil
}

// All returns the current view, loading it first if needed.
func (s *Service) All(ctx context.Context) (View, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{Notes: s.view.Clone(), Degraded: s.degraded}, nil
}

// Get returns the note of one task. A task without a note has the zero
// record.
func (s *Service) Get(ctx context.Context, taskID string) (schema.NoteRecord, error) {
	if err := s.checkTask(taskID); err != nil {
		return schema.NoteRecord{}, err
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return schema.NoteRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view[taskID], nil
}

// Edit replaces a task's note and completion. The view changes immediately;
// the write runs after the debounce delay.
func (s *Service) Edit(ctx context.Context, taskID, note string, completed bool) (schema.NoteRecord, error) {
	if err := s.checkTask(taskID); err != nil {
		return schema.NoteRecord{}, err
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return schema.NoteRecord{}, err
	}
	rec := schema.NoteRecord{Note: note, Completed: completed}
	if err := s.schedule(taskID, rec); err != nil {
		return schema.NoteRecord{}, err
	}
	return rec, nil
}

// Toggle flips a task's completion and keeps its note.
func (s *Service) Toggle(ctx context.Context, taskID string) (schema.NoteRecord, error) {
	if err := s.checkTask(taskID); err != nil {
		return schema.NoteRecord{}, err
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return schema.NoteRecord{}, err
	}

	s.mu.Lock()
	rec := s.view[taskID]
	s.mu.Unlock()
	rec.Completed = !rec.Completed

	if err := s.schedule(taskID, rec); err != nil {
		return schema.NoteRecord{}, err
	}
	return rec, nil
}

// Put writes a task's note right away, replacing any pending edit. A remote
// failure is returned after the note was kept locally.
func (s *Service) Put(ctx context.Context, taskID string, rec schema.NoteRecord) error {
	if err := s.checkTask(taskID); err != nil {
		return err
	}
	s.saves.Cancel(Channel(taskID))

	s.mu.Lock()
	delete(s.pending, taskID)
	if s.view != nil {
		s.view[taskID] = rec
	}
	s.mu.Unlock()

	return s.store.SaveNote(ctx, taskID, rec)
}

// Reset drops pending edits and clears every note of the current identity.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	for taskID := range s.pending {
		s.saves.Cancel(Channel(taskID))
	}
	s.pending = make(map[string]uint64)
	s.view = schema.NoteSet{}
	s.loaded = true
	s.mu.Unlock()

	if err := s.store.ResetProgress(ctx); err != nil {
		if errors.Is(err, schema.ErrRemoteUnavailable) {
			s.logger.Warn("progress reset deferred", zap.Error(err))
		}
		return err
	}
	return nil
}

// Invalidate forgets the view so the next read loads it again. Pending
// edits are dropped.
func (s *Service) Invalidate() {
	s.mu.Lock()
	for taskID := range s.pending {
		s.saves.Cancel(Channel(taskID))
	}
	s.pending = make(map[string]uint64)
	s.view = nil
	s.loaded = false
	s.degraded = false
	s.mu.Unlock()
}

// schedule shows rec and queues its write for the identity it was made
// under. A write that fires after a sign-in or sign-out is dropped.
func (s *Service) schedule(taskID string, rec schema.NoteRecord) error {
	gen := s.store.Generation()

	s.mu.Lock()
	s.view[taskID] = rec
	s.seq++
	seq := s.seq
	s.pending[taskID] = seq
	s.mu.Unlock()

	err := s.saves.Schedule(Channel(taskID), func(ctx context.Context) error {
		err := s.store.SaveNoteFor(ctx, gen, taskID, rec)
		s.done(taskID, seq)
		if errors.Is(err, reconcile.ErrIdentityChanged) {
			s.logger.Debug("note edit dropped after identity change", zap.String("task", taskID))
			return nil
		}
		return err
	})
	if err != nil {
		s.done(taskID, seq)
		return fmt.Errorf("failed to schedule note save: %w", err)
	}
	return nil
}

// done clears the pending mark of taskID unless a newer edit replaced it.
func (s *Service) done(taskID string, seq uint64) {
	s.mu.Lock()
	if s.pending[taskID] == seq {
		delete(s.pending, taskID)
	}
	s.mu.Unlock()
}

func (s *Service) ensureLoaded(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}
	_, err := s.Load(ctx)
	return err
}

func (s *Service) checkTask(taskID string) error {
	if _, ok := s.tasks.Task(taskID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	return nil
}
