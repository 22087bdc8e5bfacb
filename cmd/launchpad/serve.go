package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blogpad/launchpad/internal/app"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "admin",
	Short:   "Start the dashboard API and live WebSocket feed",
	Long: `Start the dashboard server: a JSON API over notes, onboarding and guides,
plus a WebSocket feed that pushes save status and progress changes.

WebSocket messages include:
- save_status: idle, saving, saved or error
- note_update: a task note was edited
- progress: completion per category and overall
- guide_unlock: guide sections were unlocked
- identity: the signed-in user changed
- onboarding: onboarding status changed
- curriculum_reload: the curriculum override file changed

Example usage:
  launchpad serve                # Start on the configured port (default 8080)
  launchpad serve --port 9000    # Start on a custom port`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return withApp(cmd, func(_ context.Context, a *app.App) error {
			fmt.Printf("Dashboard: http://localhost:%d\n", port)
			fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
			fmt.Println("Press Ctrl+C to stop...")
			if err := a.Serve(ctx, port); err != nil {
				return err
			}
			fmt.Println("Dashboard stopped")
			return nil
		})
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}
