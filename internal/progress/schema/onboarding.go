package schema

import "fmt"

// Niche alignment answers.
const (
	AlignmentYes = "yes"
	AlignmentNo  = "no"
)

// OnboardingRecord holds the wizard answers of one user. Nil means the
// question has not been answered yet.
type OnboardingRecord struct {
	Audience                 *string `json:"audience,omitempty"`
	StickyProblemChoice      *string `json:"sticky_problem_choice,omitempty"`
	StickyProblemDescription *string `json:"sticky_problem_description,omitempty"`
	Tools                    *string `json:"tools,omitempty"`
	Outcome                  *string `json:"outcome,omitempty"`
	OriginStruggle           *string `json:"origin_struggle,omitempty"`
	OriginTransformation     *string `json:"origin_transformation,omitempty"`
	OriginResult             *string `json:"origin_result,omitempty"`
	FinalNicheStatement      *string `json:"final_niche_statement,omitempty"`
	NicheAlignment           *string `json:"niche_alignment,omitempty"`
}

// OnboardingFields lists the record's field names in wizard order. The names
// double as remote column names and debounce channel suffixes.
var OnboardingFields = []string{
	"audience",
	"sticky_problem_choice",
	"sticky_problem_description",
	"tools",
	"outcome",
	"origin_struggle",
	"origin_transformation",
	"origin_result",
	"final_niche_statement",
	"niche_alignment",
}

// Field returns a pointer to the named field slot, or nil for an unknown
// name.
func (r *OnboardingRecord) Field(name string) **string {
	switch name {
	case "audience":
		return &r.Audience
	case "sticky_problem_choice":
		return &r.StickyProblemChoice
	case "sticky_problem_description":
		return &r.StickyProblemDescription
	case "tools":
		return &r.Tools
	case "outcome":
		return &r.Outcome
	case "origin_struggle":
		return &r.OriginStruggle
	case "origin_transformation":
		return &r.OriginTransformation
	case "origin_result":
		return &r.OriginResult
	case "final_niche_statement":
		return &r.FinalNicheStatement
	case "niche_alignment":
		return &r.NicheAlignment
	}
	return nil
}

// Get returns the value of a field and whether it has been answered.
func (r OnboardingRecord) Get(name string) (string, bool) {
	slot := r.Field(name)
	if slot == nil || *slot == nil {
		return "", false
	}
	return **slot, true
}

// Set answers a single field.
func (r *OnboardingRecord) Set(name, value string) error {
	slot := r.Field(name)
	if slot == nil {
		return fmt.Errorf("unknown onboarding field %q", name)
	}
	v := value
	*slot = &v
	return nil
}

// Merge applies every answered field of patch onto r. Unanswered fields of
// patch leave r untouched.
func (r *OnboardingRecord) Merge(patch OnboardingRecord) {
	for _, name := range OnboardingFields {
		if v, ok := patch.Get(name); ok {
			_ = r.Set(name, v)
		}
	}
}

// Clone returns a deep copy.
func (r OnboardingRecord) Clone() OnboardingRecord {
	var out OnboardingRecord
	out.Merge(r)
	return out
}

// IsEmpty reports whether no field has been answered.
func (r OnboardingRecord) IsEmpty() bool {
	for _, name := range OnboardingFields {
		if _, ok := r.Get(name); ok {
			return false
		}
	}
	return true
}

// Validate checks the enumerated fields.
func (r OnboardingRecord) Validate() error {
	if r.NicheAlignment == nil {
		return nil
	}
	switch *r.NicheAlignment {
	case AlignmentYes, AlignmentNo:
		return nil
	}
	return fmt.Errorf("niche_alignment must be %q or %q (got %q)", AlignmentYes, AlignmentNo, *r.NicheAlignment)
}

// Complete reports whether the user confirmed their niche statement.
func (r OnboardingRecord) Complete() bool {
	return r.NicheAlignment != nil && *r.NicheAlignment == AlignmentYes
}

// Str returns a pointer to s, for building records in literals.
func Str(s string) *string {
	return &s
}
