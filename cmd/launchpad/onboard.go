package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blogpad/launchpad/internal/app"
	"github.com/blogpad/launchpad/internal/onboarding"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

var onboardCmd = &cobra.Command{
	Use:     "onboard",
	GroupID: "progress",
	Short:   "Define your niche with the onboarding wizard",
	Long: `Walk through the six onboarding steps: audience, sticky problem, tools,
outcome, origin story and the final niche statement.

On a terminal the wizard is interactive. Otherwise, or with --set, answers are
given as field=value pairs:

  launchpad onboard --set audience="solo creators" --set tools="AI tools"

Fields: ` + strings.Join(schema.OnboardingFields, ", "),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("set")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if len(pairs) > 0 || !term.IsTerminal(int(os.Stdin.Fd())) {
				return onboardWithFlags(ctx, a, pairs)
			}
			return onboardInteractive(ctx, a)
		})
	},
}

var onboardStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show onboarding answers and completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			v, err := a.Onboarding.Get(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(v)
			}
			printOnboarding(a, v)
			return nil
		})
	},
}

func onboardWithFlags(ctx context.Context, a *app.App, pairs []string) error {
	if len(pairs) == 0 {
		return fmt.Errorf("stdin is not a terminal; pass answers with --set field=value")
	}
	var patch schema.OnboardingRecord
	for _, p := range pairs {
		field, value, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("answers are field=value pairs, got %q", p)
		}
		if err := patch.Set(field, value); err != nil {
			return err
		}
	}
	if err := a.Onboarding.Put(ctx, patch); err != nil {
		if !errors.Is(err, schema.ErrRemoteUnavailable) {
			return err
		}
		warnDegraded(true)
	}
	v, err := a.Onboarding.Get(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(v)
	}
	printOnboarding(a, v)
	return nil
}

func onboardInteractive(ctx context.Context, a *app.App) error {
	v, err := a.Onboarding.Get(ctx)
	if err != nil {
		return err
	}
	// every answer is written right away; the process may exit at any step
	w := onboarding.NewWizard(v.Record, func(field, value string) error {
		var patch schema.OnboardingRecord
		if err := patch.Set(field, value); err != nil {
			return err
		}
		err := a.Onboarding.Put(ctx, patch)
		if errors.Is(err, schema.ErrRemoteUnavailable) {
			return nil
		}
		return err
	})

	for !w.Finished() {
		step := w.Current()
		values := make(map[string]*string, len(step.Fields))
		rec := w.Record()
		for _, f := range step.Fields {
			val, _ := rec.Get(f)
			values[f] = &val
		}

		form := huh.NewForm(huh.NewGroup(stepFields(step, values)...).
			Title(fmt.Sprintf("Step %d of %d: %s", w.Index()+1, len(onboarding.Steps), step.Title)).
			Description(step.Description))
		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Answers so far are saved. Run `launchpad onboard` to continue.")
				return nil
			}
			return err
		}

		for _, f := range step.Fields {
			if strings.TrimSpace(*values[f]) == "" {
				continue
			}
			if err := w.Answer(f, *values[f]); err != nil {
				return err
			}
		}

		if w.Index() == onboarding.StepReview && !w.Record().Complete() {
			fmt.Println("Revise your answers with `launchpad onboard` when you are ready; they are saved.")
			return nil
		}
		if err := w.Next(); err != nil {
			fmt.Fprintln(os.Stderr, warnStyle.Render(err.Error()))
		}
	}

	fmt.Println(doneStyle.Render("Onboarding complete."))
	fmt.Println(onboarding.NicheStatement(w.Record()))
	return nil
}

// stepFields builds the form inputs of one wizard step.
func stepFields(step onboarding.Step, values map[string]*string) []huh.Field {
	var fields []huh.Field
	for _, f := range step.Fields {
		switch f {
		case "sticky_problem_choice":
			choices := slices.Clone(onboarding.ProblemChoices)
			if cur := *values[f]; cur != "" && !slices.Contains(choices, cur) {
				choices = append(choices, cur)
			}
			fields = append(fields, huh.NewSelect[string]().
				Title("What is the main problem your audience faces?").
				Options(huh.NewOptions(choices...)...).
				Value(values[f]))
		case "niche_alignment":
			fields = append(fields, huh.NewSelect[string]().
				Title("Does this niche feel exciting and aligned?").
				Options(
					huh.NewOption("Yes, I'm excited to move forward", schema.AlignmentYes),
					huh.NewOption("Not quite, I need to revise something", schema.AlignmentNo),
				).
				Value(values[f]))
		case "sticky_problem_description", "origin_struggle", "origin_transformation", "origin_result":
			fields = append(fields, huh.NewText().
				Title(fieldTitle(f)).
				Value(values[f]))
		default:
			fields = append(fields, huh.NewInput().
				Title(fieldTitle(f)).
				Value(values[f]))
		}
	}
	return fields
}

func fieldTitle(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

func printOnboarding(a *app.App, v onboarding.View) {
	fmt.Println(titleStyle.Render("Onboarding") + "  " + mutedStyle.Render(whoami(a)))
	for _, f := range schema.OnboardingFields {
		val, ok := v.Record.Get(f)
		if !ok {
			val = mutedStyle.Render("(unanswered)")
		}
		fmt.Printf("  %-28s %s\n", f, firstLine(val))
	}
	switch {
	case v.Status.Complete:
		fmt.Println(doneStyle.Render("Complete"))
	case a.Policy.Gate(v.Record):
		fmt.Println(warnStyle.Render("Finish onboarding to unlock the dashboard."))
	}
	warnDegraded(v.Status.Degraded)
}

func init() {
	onboardCmd.Flags().StringArray("set", nil, "answer a field (field=value, repeatable)")
	onboardCmd.AddCommand(onboardStatusCmd)
	rootCmd.AddCommand(onboardCmd)
}
