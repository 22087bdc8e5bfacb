package guide

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

// threeSections is a guide whose first section has no exercise and whose
// second has one required field.
func threeSections() *Definition {
	return &Definition{
		ID: "three",
		Sections: []Section{
			{Title: "Intro"},
			{Title: "Exercise", Exercise: &Exercise{ID: "ex", Fields: []Field{{ID: "answer"}}}},
			{Title: "Outro"},
		},
	}
}

// TestThreeSectionScenario tests unlocking through a required field
func TestThreeSectionScenario(t *testing.T) {
	def := threeSections()
	responses := map[string]string{}

	unlocked := Normalize(def.Sections, nil)
	if diff := cmp.Diff(schema.SectionSet{0, 1}, unlocked); diff != "" {
		t.Fatalf("unlocked after load mismatch (-want +got):\n%s", diff)
	}

	responses["answer"] = "my audience"
	unlocked, err := Submit(def, 1, responses, unlocked)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if diff := cmp.Diff(schema.SectionSet{0, 1, 2}, unlocked); diff != "" {
		t.Errorf("unlocked after submit mismatch (-want +got):\n%s", diff)
	}
	if !Complete(def, unlocked) {
		t.Error("Complete() = false with every section unlocked")
	}
}

// TestSubmit_ValidationFailure tests that blank required fields block without state change
func TestSubmit_ValidationFailure(t *testing.T) {
	def := threeSections()
	before := schema.SectionSet{0, 1}

	for _, value := range []string{"", "   ", "\n\t"} {
		got, err := Submit(def, 1, map[string]string{"answer": value}, before)

		var verr *schema.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Submit(%q) error = %v, want ValidationError", value, err)
		}
		if diff := cmp.Diff([]string{"answer"}, verr.Missing); diff != "" {
			t.Errorf("Missing mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(before, got); diff != "" {
			t.Errorf("unlocked changed on failure (-want +got):\n%s", diff)
		}
	}
}

// TestSubmit_OptionalFields tests that optional fields may stay blank
func TestSubmit_OptionalFields(t *testing.T) {
	def := &Definition{
		ID: "opt",
		Sections: []Section{
			{Title: "Statements", Exercise: &Exercise{ID: "niche-statement", Fields: []Field{
				{ID: "statement-1"},
				{ID: "statement-4", Optional: true},
			}}},
			{Title: "Next"},
		},
	}

	got, err := Submit(def, 0, map[string]string{"statement-1": "I help parents"}, nil)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if !got.Has(1) {
		t.Errorf("section 1 not unlocked: %v", got)
	}
}

// TestSubmit_LegacySingleInput tests exercises answered under their own id
func TestSubmit_LegacySingleInput(t *testing.T) {
	def := &Definition{
		ID: "legacy",
		Sections: []Section{
			{Title: "Final", Exercise: &Exercise{ID: "final-niche"}},
			{Title: "Check"},
		},
	}

	if _, err := Submit(def, 0, map[string]string{}, nil); !errors.Is(err, schema.ErrValidationFailed) {
		t.Errorf("Submit() blank error = %v, want ErrValidationFailed", err)
	}
	got, err := Submit(def, 0, map[string]string{"final-niche": "I help nurses"}, nil)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if !got.Has(1) {
		t.Errorf("section 1 not unlocked: %v", got)
	}
}

// TestSubmit_Rejections tests locked, exercise-less and out-of-range sections
func TestSubmit_Rejections(t *testing.T) {
	def := &Definition{
		ID: "gates",
		Sections: []Section{
			{Title: "A", Exercise: &Exercise{ID: "a"}},
			{Title: "B", Exercise: &Exercise{ID: "b"}},
			{Title: "C"},
		},
	}
	all := map[string]string{"a": "x", "b": "y"}

	if _, err := Submit(def, 1, all, nil); !errors.Is(err, ErrSectionLocked) {
		t.Errorf("Submit(locked) error = %v, want ErrSectionLocked", err)
	}
	if _, err := Submit(def, 2, all, schema.SectionSet{0, 1, 2}); !errors.Is(err, ErrNoExercise) {
		t.Errorf("Submit(no exercise) error = %v, want ErrNoExercise", err)
	}
	if _, err := Submit(def, 7, all, nil); !errors.Is(err, ErrNoSection) {
		t.Errorf("Submit(out of range) error = %v, want ErrNoSection", err)
	}
}

// TestNormalize_CascadeFromUnlockedOnly tests that cascading starts only at unlocked sections
func TestNormalize_CascadeFromUnlockedOnly(t *testing.T) {
	sections := []Section{
		{Title: "0"},
		{Title: "1", Exercise: &Exercise{ID: "gate"}},
		{Title: "2"},
		{Title: "3"},
		{Title: "4", Exercise: &Exercise{ID: "gate2"}},
		{Title: "5"},
	}

	got := Normalize(sections, nil)
	if diff := cmp.Diff(schema.SectionSet{0, 1}, got); diff != "" {
		t.Errorf("Normalize(nil) mismatch (-want +got):\n%s", diff)
	}

	got = Normalize(sections, schema.SectionSet{0, 1, 2})
	if diff := cmp.Diff(schema.SectionSet{0, 1, 2, 3, 4}, got); diff != "" {
		t.Errorf("Normalize({0,1,2}) mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(got, Normalize(sections, got)); diff != "" {
		t.Errorf("Normalize() not idempotent (-want +got):\n%s", diff)
	}
}

// TestSubmitLabel tests the button labels
func TestSubmitLabel(t *testing.T) {
	def := threeSections()
	if got := SubmitLabel(def, 1); got != LabelContinue {
		t.Errorf("SubmitLabel(1) = %q, want %q", got, LabelContinue)
	}
	if got := SubmitLabel(def, 2); got != LabelComplete {
		t.Errorf("SubmitLabel(2) = %q, want %q", got, LabelComplete)
	}
}

// TestUnlockMonotonic checks that no sequence of edits and submits ever removes an unlocked section
func TestUnlockMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "sections")
		def := &Definition{ID: "random"}
		for i := 0; i < n; i++ {
			sec := Section{Title: fmt.Sprintf("s%d", i)}
			if rapid.Bool().Draw(t, fmt.Sprintf("exercise%d", i)) {
				fields := rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("fields%d", i))
				ex := &Exercise{ID: fmt.Sprintf("ex%d", i)}
				for f := 0; f < fields; f++ {
					ex.Fields = append(ex.Fields, Field{
						ID:       fmt.Sprintf("f%d-%d", i, f),
						Optional: rapid.Bool().Draw(t, fmt.Sprintf("optional%d-%d", i, f)),
					})
				}
				sec.Exercise = ex
			}
			def.Sections = append(def.Sections, sec)
		}

		responses := map[string]string{}
		unlocked := Normalize(def.Sections, nil)
		steps := rapid.IntRange(0, 30).Draw(t, "steps")
		for step := 0; step < steps; step++ {
			prev := unlocked
			if rapid.Bool().Draw(t, "edit") {
				key := rapid.SampledFrom(allKeys(def)).Draw(t, "key")
				responses[key] = rapid.SampledFrom([]string{"", " ", "answer"}).Draw(t, "value")
				unlocked = Normalize(def.Sections, unlocked)
			} else {
				idx := rapid.IntRange(0, n-1).Draw(t, "submit")
				if next, err := Submit(def, idx, responses, unlocked); err == nil {
					unlocked = next
				}
			}

			if !unlocked.Has(0) {
				t.Fatalf("section 0 locked: %v", unlocked)
			}
			if !unlocked.Contains(prev) {
				t.Fatalf("unlocked shrank from %v to %v", prev, unlocked)
			}
		}
	})
}

func allKeys(def *Definition) []string {
	keys := []string{"unused"}
	for _, s := range def.Sections {
		if s.Exercise != nil {
			keys = append(keys, s.Exercise.ResponseKeys()...)
		}
	}
	return keys
}
