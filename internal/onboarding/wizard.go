package onboarding

import (
	"errors"
	"fmt"
	"slices"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

// ErrBlocked is returned by Next when the current step's guard fails.
var ErrBlocked = errors.New("step not complete")

// SetFunc persists a single answer.
type SetFunc func(field, value string) error

// Wizard walks the steps over a working copy of the record. Every answer is
// handed to the SetFunc as it is given.
type Wizard struct {
	step     int
	record   schema.OnboardingRecord
	finished bool
	set      SetFunc
}

// NewWizard starts at the first step. set may be nil.
func NewWizard(rec schema.OnboardingRecord, set SetFunc) *Wizard {
	if set == nil {
		set = func(string, string) error { return nil }
	}
	return &Wizard{record: rec.Clone(), set: set}
}

// Index is the position of the current step in Steps.
func (w *Wizard) Index() int { return w.step }

// Current returns the current step.
func (w *Wizard) Current() Step { return Steps[w.step] }

// Record returns a copy of the working record.
func (w *Wizard) Record() schema.OnboardingRecord {
	return w.record.Clone()
}

// Answer sets a field of the current step.
func (w *Wizard) Answer(field, value string) error {
	if !slices.Contains(Steps[w.step].Fields, field) {
		return fmt.Errorf("field %q does not belong to step %s", field, Steps[w.step].ID)
	}
	var patch schema.OnboardingRecord
	if err := patch.Set(field, value); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", schema.ErrValidationFailed, err)
	}
	w.record.Merge(patch)
	return w.set(field, value)
}

// Guard evaluates the current step.
func (w *Wizard) Guard() GuardResult {
	return CanAdvance(w.step, w.record)
}

// Next leaves the current step. Entering the review step generates the
// niche statement from the earlier answers. At the review step Next
// finishes the wizard.
func (w *Wizard) Next() error {
	if g := w.Guard(); !g.Allowed {
		return fmt.Errorf("%w: %s", ErrBlocked, g.Reason)
	}
	if w.step == StepReview {
		w.finished = true
		return nil
	}

	w.step++
	if w.step == StepReview {
		statement := NicheStatement(w.record)
		w.record.FinalNicheStatement = schema.Str(statement)
		if err := w.set("final_niche_statement", statement); err != nil {
			return err
		}
	}
	return nil
}

// Back moves to the previous step, if any.
func (w *Wizard) Back() bool {
	if w.step == 0 {
		return false
	}
	w.step--
	w.finished = false
	return true
}

// Finished reports whether Next succeeded at the review step.
func (w *Wizard) Finished() bool {
	return w.finished
}
