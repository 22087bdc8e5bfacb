// Package onboarding implements the niche-definition wizard: six steps whose
// answers are stored in the user's onboarding record.
package onboarding

import (
	"fmt"
	"strings"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

// Step is one page of the wizard.
type Step struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Fields      []string `json:"fields"`
}

// Step indices.
const (
	StepAudience = iota
	StepProblem
	StepTools
	StepOutcome
	StepOrigin
	StepReview
)

// Steps lists the wizard in order.
var Steps = []Step{
	{ID: "audience", Title: "Start with Who", Description: "Every great blog solves a problem for a specific person.",
		Fields: []string{"audience"}},
	{ID: "problem", Title: "The Sticky Problem", Description: "What keeps your audience up at night?",
		Fields: []string{"sticky_problem_choice", "sticky_problem_description"}},
	{ID: "tools", Title: "Your Mechanism", Description: "How do you help them solve it?",
		Fields: []string{"tools"}},
	{ID: "outcome", Title: "The Transformation", Description: "Where does your audience want to end up?",
		Fields: []string{"outcome"}},
	{ID: "origin", Title: "Your Origin Story", Description: "Why are you the one to teach this?",
		Fields: []string{"origin_struggle", "origin_transformation", "origin_result"}},
	{ID: "review", Title: "Your Niche Statement", Description: "Let's bring it all together.",
		Fields: []string{"final_niche_statement", "niche_alignment"}},
}

// ProblemChoices are the offered answers for sticky_problem_choice.
var ProblemChoices = []string{
	"Saving time / efficiency",
	"Making more money / career growth",
	"Reducing overwhelm / stress",
	"Learning a new skill",
	"Health & wellness improvement",
}

// GuardResult tells whether the wizard may leave a step.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() GuardResult { return GuardResult{Allowed: true} }

func block(format string, args ...any) GuardResult {
	return GuardResult{Reason: fmt.Sprintf(format, args...)}
}

// CanAdvance reports whether step is answered well enough to move on. At
// the review step it means the wizard may finish.
func CanAdvance(step int, r schema.OnboardingRecord) GuardResult {
	switch step {
	case StepAudience:
		return require(r, "audience")
	case StepProblem:
		return require(r, "sticky_problem_choice")
	case StepTools:
		return require(r, "tools")
	case StepOutcome:
		return require(r, "outcome")
	case StepOrigin:
		return require(r, "origin_struggle", "origin_transformation", "origin_result")
	case StepReview:
		if !r.Complete() {
			return block("confirm that the niche feels aligned")
		}
		return allow()
	}
	return block("no step %d", step)
}

func require(r schema.OnboardingRecord, fields ...string) GuardResult {
	var missing []string
	for _, f := range fields {
		if v, _ := r.Get(f); v == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return block("answer %s", strings.Join(missing, ", "))
	}
	return allow()
}

// NicheStatement fills the niche formula from the record, with bracketed
// placeholders for unanswered parts.
func NicheStatement(r schema.OnboardingRecord) string {
	part := func(field string) string {
		if v, _ := r.Get(field); v != "" {
			return v
		}
		return "[" + field + "]"
	}
	return fmt.Sprintf("I help %s use %s to %s.", part("audience"), part("tools"), part("outcome"))
}
