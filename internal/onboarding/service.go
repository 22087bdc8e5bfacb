package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/progress/debounce"
	"github.com/blogpad/launchpad/internal/progress/reconcile"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

// Store persists onboarding answers. *reconcile.Engine satisfies it.
type Store interface {
	Onboarding(ctx context.Context) (schema.OnboardingRecord, error)
	SaveOnboarding(ctx context.Context, patch schema.OnboardingRecord) error
	// SaveOnboardingFor writes only while the session generation is still
	// gen and returns reconcile.ErrIdentityChanged otherwise.
	SaveOnboardingFor(ctx context.Context, gen uint64, patch schema.OnboardingRecord) error
	Generation() uint64
}

// Scheduler debounces writes per channel. *debounce.Coordinator satisfies it.
type Scheduler interface {
	Schedule(name string, write debounce.WriteFunc) error
	Cancel(name string)
}

// Channel returns the save channel of an onboarding field.
func Channel(field string) string {
	return "onboarding:" + field
}

// Status summarizes the onboarding of the current identity.
type Status struct {
	Complete       bool   `json:"complete"`
	Answered       int    `json:"answered"`
	NicheStatement string `json:"niche_statement,omitempty"`
	Degraded       bool   `json:"degraded"`
}

// View is the record plus its status.
type View struct {
	Record schema.OnboardingRecord `json:"record"`
	Status Status                  `json:"status"`
}

// Service holds the displayed onboarding record and routes edits to storage.
type Service struct {
	store  Store
	saves  Scheduler
	logger *zap.Logger

	mu       sync.Mutex
	record   schema.OnboardingRecord
	loaded   bool
	degraded bool
	pending  map[string]uint64 // field -> edit sequence not yet written
	seq      uint64
}

// NewService creates an onboarding service.
func NewService(store Store, saves Scheduler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, saves: saves, logger: logger, pending: make(map[string]uint64)}
}

// Load reads the record of the current identity.
func (s *Service) Load(ctx context.Context) (View, error) {
	rec, err := s.store.Onboarding(ctx)
	degraded := false
	if err != nil {
		if !errors.Is(err, schema.ErrRemoteUnavailable) {
			return View{}, err
		}
		degraded = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// unwritten edits stay visible
	for field := range s.pending {
		if v, ok := s.record.Get(field); ok {
			_ = rec.Set(field, v)
		}
	}
	s.record = rec
	s.loaded = true
	s.degraded = degraded
	return s.viewLocked(), nil
}

// Get returns the current view, loading it first if needed.
func (s *Service) Get(ctx context.Context) (View, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(), nil
}

// Status returns the completion summary.
func (s *Service) Status(ctx context.Context) (Status, error) {
	v, err := s.Get(ctx)
	if err != nil {
		return Status{}, err
	}
	return v.Status, nil
}

// Set answers one field. The view changes immediately; the write runs after
// the debounce delay on the field's own channel.
func (s *Service) Set(ctx context.Context, field, value string) (View, error) {
	var patch schema.OnboardingRecord
	if err := patch.Set(field, value); err != nil {
		return View{}, fmt.Errorf("%w: %w", schema.ErrValidationFailed, err)
	}
	if err := patch.Validate(); err != nil {
		return View{}, fmt.Errorf("%w: %w", schema.ErrValidationFailed, err)
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return View{}, err
	}

	gen := s.store.Generation()

	s.mu.Lock()
	s.record.Merge(patch)
	s.seq++
	seq := s.seq
	s.pending[field] = seq
	v := s.viewLocked()
	s.mu.Unlock()

	// the answer belongs to the identity it was given under
	err := s.saves.Schedule(Channel(field), func(ctx context.Context) error {
		err := s.store.SaveOnboardingFor(ctx, gen, patch)
		s.done(field, seq)
		if errors.Is(err, reconcile.ErrIdentityChanged) {
			s.logger.Debug("onboarding answer dropped after identity change", zap.String("field", field))
			return nil
		}
		return err
	})
	if err != nil {
		s.done(field, seq)
		return View{}, fmt.Errorf("failed to schedule onboarding save: %w", err)
	}
	return v, nil
}

func (s *Service) done(field string, seq uint64) {
	s.mu.Lock()
	if s.pending[field] == seq {
		delete(s.pending, field)
	}
	s.mu.Unlock()
}

// Put writes patch right away, replacing pending edits of the same fields. A
// remote failure is returned after the patch was kept locally.
func (s *Service) Put(ctx context.Context, patch schema.OnboardingRecord) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", schema.ErrValidationFailed, err)
	}
	s.mu.Lock()
	for _, field := range schema.OnboardingFields {
		if _, ok := patch.Get(field); ok {
			s.saves.Cancel(Channel(field))
			delete(s.pending, field)
		}
	}
	s.record.Merge(patch)
	s.mu.Unlock()

	return s.store.SaveOnboarding(ctx, patch)
}

// Wizard loads the record and starts a wizard whose answers go through Set.
func (s *Service) Wizard(ctx context.Context) (*Wizard, error) {
	v, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return NewWizard(v.Record, func(field, value string) error {
		_, err := s.Set(ctx, field, value)
		return err
	}), nil
}

// Invalidate forgets the record so the next read loads it again. Pending
// edits are dropped.
func (s *Service) Invalidate() {
	s.mu.Lock()
	for field := range s.pending {
		s.saves.Cancel(Channel(field))
	}
	s.pending = make(map[string]uint64)
	s.record = schema.OnboardingRecord{}
	s.loaded = false
	s.degraded = false
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

// viewLocked builds the view. Caller holds s.mu.
func (s *Service) viewLocked() View {
	st := Status{Complete: s.record.Complete(), Degraded: s.degraded}
	for _, f := range schema.OnboardingFields {
		if _, ok := s.record.Get(f); ok {
			st.Answered++
		}
	}
	if v, ok := s.record.Get("final_niche_statement"); ok {
		st.NicheStatement = v
	}
	return View{Record: s.record.Clone(), Status: st}
}

// Policy decides whether an incomplete onboarding blocks the dashboard.
type Policy struct {
	// Enforce redirects users with incomplete onboarding to the wizard.
	Enforce bool
}

// Gate reports whether the user should be sent to the wizard.
func (p Policy) Gate(rec schema.OnboardingRecord) bool {
	return p.Enforce && !rec.Complete()
}
