// Command launchpad tracks progress through the blog launch checklist, the
// onboarding wizard and the writing guides, locally or synced to a remote
// database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/app"
	"github.com/blogpad/launchpad/internal/config"
	"github.com/blogpad/launchpad/internal/logging"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool

	cfg      *config.Config
	logger   *zap.Logger
	syncLogs func()
)

var rootCmd = &cobra.Command{
	Use:   "launchpad",
	Short: "Blog launch checklist with synced progress",
	Long: `launchpad keeps your progress through the blog launch plan: task notes and
completion, the niche onboarding wizard and the step-by-step guides.

Progress is always written to a local database first. When a remote database
is configured and you are signed in, it is synced there too; if the remote is
unreachable, edits are kept locally and pushed on the next successful read.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if cmd == configInitCmd {
			// the file is about to be created
			path = ""
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, syncLogs, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if syncLogs != nil {
			syncLogs()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: <data_dir>/launchpad.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "progress", Title: "Progress:"},
		&cobra.Group{ID: "account", Title: "Account:"},
		&cobra.Group{ID: "admin", Title: "Setup and maintenance:"},
	)
}

// openApp builds the application from the loaded configuration.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return a, nil
}

// withApp runs fn against a freshly opened application and closes it after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
