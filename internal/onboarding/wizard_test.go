package onboarding

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

type answer struct{ field, value string }

// TestWizard_Walkthrough tests a full pass through every step
func TestWizard_Walkthrough(t *testing.T) {
	var saved []answer
	w := NewWizard(schema.OnboardingRecord{}, func(field, value string) error {
		saved = append(saved, answer{field, value})
		return nil
	})

	if err := w.Next(); !errors.Is(err, ErrBlocked) {
		t.Fatalf("Next() on empty step error = %v, want ErrBlocked", err)
	}

	steps := [][]answer{
		{{"audience", "nurses"}},
		{{"sticky_problem_choice", ProblemChoices[2]}},
		{{"tools", "checklists"}},
		{{"outcome", "leave on time"}},
		{{"origin_struggle", "double shifts"}, {"origin_transformation", "systems"}, {"origin_result", "calm weeks"}},
	}
	for i, answers := range steps {
		if w.Index() != i {
			t.Fatalf("Index() = %d, want %d", w.Index(), i)
		}
		for _, a := range answers {
			if err := w.Answer(a.field, a.value); err != nil {
				t.Fatalf("Answer(%s) failed: %v", a.field, err)
			}
		}
		if err := w.Next(); err != nil {
			t.Fatalf("Next() from %s failed: %v", w.Current().ID, err)
		}
	}

	if w.Current().ID != "review" {
		t.Fatalf("Current() = %s, want review", w.Current().ID)
	}
	wantStatement := "I help nurses use checklists to leave on time."
	if got, _ := w.Record().Get("final_niche_statement"); got != wantStatement {
		t.Errorf("final_niche_statement = %q, want %q", got, wantStatement)
	}
	if last := saved[len(saved)-1]; last != (answer{"final_niche_statement", wantStatement}) {
		t.Errorf("last saved = %+v, want generated statement", last)
	}

	if err := w.Answer("niche_alignment", "maybe"); !errors.Is(err, schema.ErrValidationFailed) {
		t.Errorf("Answer(maybe) error = %v, want ErrValidationFailed", err)
	}
	if err := w.Answer("niche_alignment", schema.AlignmentNo); err != nil {
		t.Fatalf("Answer(no) failed: %v", err)
	}
	if err := w.Next(); !errors.Is(err, ErrBlocked) {
		t.Errorf("Next() with alignment no error = %v, want ErrBlocked", err)
	}
	if err := w.Answer("niche_alignment", schema.AlignmentYes); err != nil {
		t.Fatalf("Answer(yes) failed: %v", err)
	}
	if err := w.Next(); err != nil {
		t.Fatalf("Next() at review failed: %v", err)
	}
	if !w.Finished() {
		t.Error("Finished() = false")
	}
	if w.Index() != StepReview {
		t.Errorf("Index() = %d after finishing, want %d", w.Index(), StepReview)
	}
}

// TestWizard_AnswerOtherStep tests that fields of other steps are rejected
func TestWizard_AnswerOtherStep(t *testing.T) {
	w := NewWizard(schema.OnboardingRecord{}, nil)
	if err := w.Answer("tools", "x"); err == nil {
		t.Error("Answer(tools) at audience step succeeded")
	}
}

// TestWizard_Back tests moving backwards and keeping answers
func TestWizard_Back(t *testing.T) {
	w := NewWizard(schema.OnboardingRecord{Audience: schema.Str("teachers")}, nil)
	if w.Back() {
		t.Error("Back() at first step returned true")
	}
	if err := w.Next(); err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if !w.Back() {
		t.Fatal("Back() returned false")
	}
	if diff := cmp.Diff(schema.Str("teachers"), w.Record().Audience); diff != "" {
		t.Errorf("audience mismatch (-want +got):\n%s", diff)
	}
}
