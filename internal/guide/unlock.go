package guide

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

// Submit button labels.
const (
	LabelContinue = "Save & Continue"
	LabelComplete = "Complete Guide"
)

// Errors returned by Submit besides *schema.ValidationError.
var (
	ErrSectionLocked = errors.New("section is locked")
	ErrNoExercise    = errors.New("section has no exercise")
	ErrNoSection     = errors.New("no such section")
)

// Normalize returns unlocked plus section 0 plus every section reached by
// cascading from an unlocked exercise-less section. It never removes an
// index and is idempotent.
func Normalize(sections []Section, unlocked schema.SectionSet) schema.SectionSet {
	out := unlocked.Add(0)
	for i := 0; i < len(sections)-1; i++ {
		if out.Has(i) && sections[i].Exercise == nil {
			out = out.Add(i + 1)
		}
	}
	return out
}

// Missing returns the required response keys of ex that are blank.
func Missing(ex *Exercise, responses map[string]string) []string {
	var missing []string
	if len(ex.Fields) == 0 {
		if strings.TrimSpace(responses[ex.ID]) == "" {
			missing = append(missing, ex.ID)
		}
		return missing
	}
	for _, f := range ex.Fields {
		if f.Optional {
			continue
		}
		if strings.TrimSpace(responses[f.ID]) == "" {
			missing = append(missing, f.ID)
		}
	}
	return missing
}

// Submit validates the exercise of section index and returns the unlocked
// set with the successor added (and cascaded). On failure unlocked is
// returned unchanged together with the error.
func Submit(def *Definition, index int, responses map[string]string, unlocked schema.SectionSet) (schema.SectionSet, error) {
	if index < 0 || index >= len(def.Sections) {
		return unlocked, fmt.Errorf("%w: guide %s section %d", ErrNoSection, def.ID, index)
	}
	current := Normalize(def.Sections, unlocked)
	if !current.Has(index) {
		return unlocked, fmt.Errorf("%w: section %d", ErrSectionLocked, index)
	}

	ex := def.Sections[index].Exercise
	if ex == nil {
		return unlocked, fmt.Errorf("%w: section %d", ErrNoExercise, index)
	}
	if missing := Missing(ex, responses); len(missing) > 0 {
		return unlocked, &schema.ValidationError{Section: index, Missing: missing}
	}

	if index+1 < len(def.Sections) {
		current = current.Add(index + 1)
	}
	return Normalize(def.Sections, current), nil
}

// SubmitLabel is the label of the submit button of section index.
func SubmitLabel(def *Definition, index int) string {
	if index == len(def.Sections)-1 {
		return LabelComplete
	}
	return LabelContinue
}

// Complete reports whether every section is unlocked.
func Complete(def *Definition, unlocked schema.SectionSet) bool {
	for i := range def.Sections {
		if !unlocked.Has(i) {
			return false
		}
	}
	return true
}
