package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blogpad/launchpad/internal/app"
	"github.com/blogpad/launchpad/internal/guide"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

var guideCmd = &cobra.Command{
	Use:     "guide",
	GroupID: "progress",
	Short:   "Work through the step-by-step guides",
}

var guideListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the guides",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			defs := a.Catalog().Guides()
			if jsonOutput {
				return printJSON(defs)
			}
			for _, d := range defs {
				fmt.Printf("%-24s %s %s\n", d.ID, d.Title, mutedStyle.Render(d.TimeEstimate))
			}
			return nil
		})
	},
}

var guideShowCmd = &cobra.Command{
	Use:   "show <guide-id>",
	Short: "Show a guide's sections and your answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			v, err := a.Guides.Load(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(v)
			}
			printGuide(v)
			return nil
		})
	},
}

var guideAnswerCmd = &cobra.Command{
	Use:   "answer <guide-id> <section> key=value...",
	Short: "Answer a section's exercise and continue to the next section",
	Long: `Answer the exercise of a section and submit it. Every required field must be
filled; the answers are saved together with the newly unlocked section.

Example:
  launchpad guide answer define-your-niche 2 audience-1="Solo creators" \
      audience-2="Freelance designers" audience-3="Indie hackers"`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitSection(cmd, args[0], args[1], args[2:])
	},
}

var guideSubmitCmd = &cobra.Command{
	Use:   "submit <guide-id> <section>",
	Short: "Submit a section using the answers already saved",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitSection(cmd, args[0], args[1], nil)
	},
}

func submitSection(cmd *cobra.Command, guideID, section string, pairs []string) error {
	index, err := strconv.Atoi(section)
	if err != nil {
		return fmt.Errorf("section must be a number: %q", section)
	}
	answers := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return fmt.Errorf("answers are key=value pairs, got %q", p)
		}
		answers[key] = value
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		for key, value := range answers {
			if _, err := a.Guides.SetResponse(ctx, guideID, key, value); err != nil {
				return err
			}
		}
		res, err := a.Guides.Submit(ctx, guideID, index)
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("please fill in all required fields: %s", strings.Join(verr.Missing, ", "))
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		if res.SaveError != "" {
			warnDegraded(true)
		}
		switch {
		case res.View.Complete && len(res.NewlyUnlocked) == 0:
			fmt.Println(doneStyle.Render("Guide complete."))
		case len(res.NewlyUnlocked) > 0:
			last := res.NewlyUnlocked[len(res.NewlyUnlocked)-1]
			fmt.Printf("%s unlocked: %s\n", doneStyle.Render("✓"), res.View.Sections[last].Title)
		default:
			fmt.Printf("%s saved\n", doneStyle.Render("✓"))
		}
		return nil
	})
}

func printGuide(v guide.View) {
	fmt.Printf("%s  %s\n", titleStyle.Render(v.Guide.Title),
		mutedStyle.Render(strings.TrimSpace(v.Guide.TimeEstimate+" · "+v.Guide.Difficulty)))
	for _, s := range v.Sections {
		if !s.Unlocked {
			fmt.Printf("  %2d. %s\n", s.Index, mutedStyle.Render(s.Title+" (locked)"))
			continue
		}
		fmt.Printf("  %2d. %s\n", s.Index, s.Title)
		if s.Exercise == nil {
			continue
		}
		fmt.Printf("      %s\n", mutedStyle.Render(s.Exercise.Prompt))
		for _, key := range s.Exercise.ResponseKeys() {
			answer := v.Responses[key]
			if answer == "" {
				answer = mutedStyle.Render("(empty)")
			}
			fmt.Printf("      %s: %s\n", key, firstLine(answer))
		}
	}
	if v.Complete {
		fmt.Println(doneStyle.Render("Complete"))
	}
	warnDegraded(v.Degraded)
}

func init() {
	guideCmd.AddCommand(guideListCmd, guideShowCmd, guideAnswerCmd, guideSubmitCmd)
	rootCmd.AddCommand(guideCmd)
}
