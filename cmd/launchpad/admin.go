package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blogpad/launchpad/internal/app"
	"github.com/blogpad/launchpad/internal/config"
	"github.com/blogpad/launchpad/internal/logging"
	"github.com/blogpad/launchpad/internal/migrate"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "progress",
	Short:   "Clear every task note and completion",
	Long: `Clear all task notes and completion marks of the current user. Onboarding
answers and guide progress are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("refusing to reset without --yes")
			}
			confirmed := false
			err := huh.NewConfirm().
				Title("Reset all task progress?").
				Description("Notes and completion marks are deleted. This cannot be undone.").
				Value(&confirmed).
				Run()
			if err != nil || !confirmed {
				fmt.Println("Reset cancelled")
				return nil
			}
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Notes.Reset(ctx); err != nil {
				if !errors.Is(err, schema.ErrRemoteUnavailable) {
					return err
				}
				warnDegraded(true)
			}
			fmt.Println("Progress reset")
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import <export.json>",
	GroupID: "admin",
	Short:   "Import progress exported from the browser's local storage",
	Long: `Import task notes and guide answers from a JSON dump of the web app's
localStorage (blogLaunchPad_notes and guide_<id>_responses entries).

Notes replace the stored ones. Guide answers only fill blank answers and
unlocked sections are merged, so newer progress is never lost.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := migrate.Import(ctx, a.Engine, a.Catalog(), migrate.Options{
				From:   args[0],
				DryRun: dryRun,
				Backup: backup,
				Logger: logging.Component(a.Logger, "migrate"),
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(res)
			}
			verb := "Imported"
			if dryRun {
				verb = "Would import"
			}
			fmt.Printf("%s %d notes and %d guides (%d skipped)\n", verb, res.NotesImported, res.GuidesImported, res.Skipped)
			if res.Deferred > 0 {
				fmt.Println(warnStyle.Render(fmt.Sprintf("%d item(s) saved on this device and waiting to sync.", res.Deferred)))
			}
			if res.BackupCreated != "" {
				fmt.Println(mutedStyle.Render("Backup: " + res.BackupCreated))
			}
			for _, e := range res.Errors {
				fmt.Fprintln(os.Stderr, "  "+e)
			}
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "admin",
	Short:   "Create the progress tables in the remote store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Remote.Driver == "" {
			return fmt.Errorf("no remote store configured (set remote.driver and remote.dsn)")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Remote.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Printf("Remote schema ready (%s)\n", a.Remote.Driver())
			return nil
		})
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "admin",
	Short:   "Manage launchpad.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = cfg.ConfigPath()
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		def := config.DefaultConfig()
		def.DataDir = cfg.DataDir
		if err := def.WriteFile(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return printJSON(cfg)
		}
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

func init() {
	resetCmd.Flags().BoolP("yes", "y", false, "skip the confirmation")
	importCmd.Flags().Bool("dry-run", false, "count what would be imported without writing")
	importCmd.Flags().Bool("backup", true, "copy the export file before importing")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(resetCmd, importCmd, migrateCmd, configCmd)
}
