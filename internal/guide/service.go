package guide

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

// Store persists guide progress. *reconcile.Engine satisfies it.
type Store interface {
	Guide(ctx context.Context, guideID string) (schema.GuideProgress, error)
	SaveGuide(ctx context.Context, guideID string, p schema.GuideProgress) error
}

// Catalog looks up guide definitions.
type Catalog interface {
	Guide(id string) (*Definition, bool)
}

// ErrUnknownGuide is returned for a guide id the catalog does not know.
var ErrUnknownGuide = errors.New("unknown guide")

// SectionView is the display state of one section.
type SectionView struct {
	Index    int       `json:"index"`
	Title    string    `json:"title"`
	Unlocked bool      `json:"unlocked"`
	Exercise *Exercise `json:"exercise,omitempty"`
	// Label is the submit button text, empty for sections without exercise.
	Label string `json:"label,omitempty"`
}

// View is a guide with the current user's progress applied.
type View struct {
	Guide     *Definition       `json:"guide"`
	Responses map[string]string `json:"responses"`
	Unlocked  schema.SectionSet `json:"unlocked_sections"`
	Sections  []SectionView     `json:"sections"`
	Complete  bool              `json:"complete"`
	// Degraded is set when progress came from the local store because the
	// remote store could not be reached.
	Degraded bool `json:"degraded"`
}

// SubmitResult is the outcome of a successful section submit.
type SubmitResult struct {
	View View `json:"view"`
	// NewlyUnlocked lists sections that became unlocked by this submit.
	NewlyUnlocked []int `json:"newly_unlocked"`
	// SaveError is set when the progress was kept locally but could not be
	// written to the remote store.
	SaveError string `json:"save_error,omitempty"`
}

// Service holds the in-progress answers of each guide and persists them on
// every successful submit. Answers typed into an exercise stay in memory
// until then.
type Service struct {
	store   Store
	catalog Catalog
	logger  *zap.Logger

	mu     sync.Mutex
	drafts map[string]*schema.GuideProgress
}

// NewService creates a guide service.
func NewService(store Store, catalog Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		catalog: catalog,
		logger:  logger,
		drafts:  make(map[string]*schema.GuideProgress),
	}
}

// Load reads a guide's progress and makes it the current draft.
func (s *Service) Load(ctx context.Context, guideID string) (View, error) {
	def, ok := s.catalog.Guide(guideID)
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrUnknownGuide, guideID)
	}

	p, err := s.store.Guide(ctx, guideID)
	degraded := false
	if err != nil {
		if !errors.Is(err, schema.ErrRemoteUnavailable) {
			return View{}, err
		}
		degraded = true
	}
	p.UnlockedSections = Normalize(def.Sections, p.UnlockedSections)

	s.mu.Lock()
	s.drafts[guideID] = &p
	v := s.viewLocked(def, &p)
	s.mu.Unlock()

	v.Degraded = degraded
	return v, nil
}

// SetResponse records an answer in the draft. Nothing is persisted.
func (s *Service) SetResponse(ctx context.Context, guideID, key, value string) (View, error) {
	def, ok := s.catalog.Guide(guideID)
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrUnknownGuide, guideID)
	}
	if !s.hasDraft(guideID) {
		if _, err := s.Load(ctx, guideID); err != nil {
			return View{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.drafts[guideID]
	if p.Responses == nil {
		p.Responses = map[string]string{}
	}
	p.Responses[key] = value
	return s.viewLocked(def, p), nil
}

// Submit validates the exercise of section index, unlocks the successor and
// persists the guide. Validation failures return *schema.ValidationError and
// change nothing.
func (s *Service) Submit(ctx context.Context, guideID string, index int) (SubmitResult, error) {
	def, ok := s.catalog.Guide(guideID)
	if !ok {
		return SubmitResult{}, fmt.Errorf("%w: %s", ErrUnknownGuide, guideID)
	}
	if !s.hasDraft(guideID) {
		if _, err := s.Load(ctx, guideID); err != nil {
			return SubmitResult{}, err
		}
	}

	s.mu.Lock()
	p := s.drafts[guideID]
	before := p.UnlockedSections
	unlocked, err := Submit(def, index, p.Responses, before)
	if err != nil {
		s.mu.Unlock()
		return SubmitResult{}, err
	}
	p.UnlockedSections = unlocked
	snapshot := p.Clone()
	s.mu.Unlock()

	var res SubmitResult
	for _, i := range unlocked {
		if !before.Has(i) {
			res.NewlyUnlocked = append(res.NewlyUnlocked, i)
		}
	}

	if err := s.store.SaveGuide(ctx, guideID, snapshot); err != nil {
		s.logger.Warn("guide progress not saved remotely",
			zap.String("guide", guideID), zap.Int("section", index), zap.Error(err))
		res.SaveError = err.Error()
	}

	s.mu.Lock()
	res.View = s.viewLocked(def, p)
	s.mu.Unlock()
	return res, nil
}

// Reset drops every draft, for example after the signed-in user changed.
func (s *Service) Reset() {
	s.mu.Lock()
	s.drafts = make(map[string]*schema.GuideProgress)
	s.mu.Unlock()
}

func (s *Service) hasDraft(guideID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drafts[guideID]
	return ok
}

// viewLocked builds the display state. Caller holds s.mu.
func (s *Service) viewLocked(def *Definition, p *schema.GuideProgress) View {
	v := View{
		Guide:     def,
		Responses: make(map[string]string, len(p.Responses)),
		Unlocked:  p.UnlockedSections,
		Sections:  make([]SectionView, len(def.Sections)),
		Complete:  Complete(def, p.UnlockedSections),
	}
	for k, val := range p.Responses {
		v.Responses[k] = val
	}
	for i, sec := range def.Sections {
		sv := SectionView{
			Index:    i,
			Title:    sec.Title,
			Unlocked: p.UnlockedSections.Has(i),
			Exercise: sec.Exercise,
		}
		if sec.Exercise != nil {
			sv.Label = SubmitLabel(def, i)
		}
		v.Sections[i] = sv
	}
	return v
}
