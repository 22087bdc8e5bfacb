package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/blogpad/launchpad/internal/app"
	"github.com/blogpad/launchpad/internal/stats"
)

const barWidth = 30

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8f98"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "progress",
	Short:   "Show completion per category",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			overview, degraded, err := a.Progress(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(struct {
					stats.Overview
					Degraded bool `json:"degraded"`
				}{overview, degraded})
			}

			fmt.Println(titleStyle.Render("Blog Launch Progress") + "  " + mutedStyle.Render(whoami(a)))
			fmt.Println()
			for _, c := range overview.Categories {
				fmt.Printf("%s\n  %s %3d%%  %s\n", c.Title, bar(c.Percent),
					c.Percent, mutedStyle.Render(fmt.Sprintf("%d/%d tasks", c.Completed, c.Total)))
			}
			fmt.Println()
			fmt.Printf("%s\n  %s %3d%%  %s\n", titleStyle.Render("Overall"), bar(overview.Percent),
				overview.Percent, mutedStyle.Render(fmt.Sprintf("%d/%d tasks", overview.Completed, overview.Total)))

			if degraded {
				fmt.Println()
				fmt.Println(warnStyle.Render("Remote store unreachable: showing progress saved on this device."))
			}
			return nil
		})
	},
}

// bar renders a percentage as a fixed-width bar.
func bar(percent int) string {
	filled := percent * barWidth / 100
	return doneStyle.Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", barWidth-filled))
}

func whoami(a *app.App) string {
	s := a.Auth.Current()
	if s.User == nil {
		return "anonymous (this device only)"
	}
	return s.User.Email
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
