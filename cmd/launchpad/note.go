package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blogpad/launchpad/internal/app"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

var noteCmd = &cobra.Command{
	Use:     "note",
	GroupID: "progress",
	Short:   "Read and edit task notes",
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every task with its state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			v, err := a.Notes.All(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(v)
			}
			for _, c := range a.Catalog().Categories() {
				fmt.Println(titleStyle.Render(c.Title))
				for _, t := range c.Tasks {
					rec := v.Notes[t.ID]
					mark := "[ ]"
					if rec.Completed {
						mark = doneStyle.Render("[x]")
					}
					fmt.Printf("  %s %-5s %s\n", mark, t.ID, t.Text)
					if rec.Note != "" {
						fmt.Printf("        %s\n", mutedStyle.Render(firstLine(rec.Note)))
					}
				}
			}
			warnDegraded(v.Degraded)
			return nil
		})
	},
}

var noteGetCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Show a task's note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rec, err := a.Notes.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(rec)
			}
			task, _ := a.Catalog().Task(args[0])
			state := "open"
			if rec.Completed {
				state = "completed"
			}
			fmt.Printf("%s (%s)\n", titleStyle.Render(task.Text), state)
			if task.Hint != "" {
				fmt.Println(mutedStyle.Render(task.Hint))
			}
			if rec.Note != "" {
				fmt.Println()
				fmt.Println(rec.Note)
			}
			return nil
		})
	},
}

var noteSetCmd = &cobra.Command{
	Use:   "set <task-id> <note>",
	Short: "Replace a task's note, keeping its completion unless --done is given",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rec, err := a.Notes.Get(ctx, args[0])
			if err != nil {
				return err
			}
			rec.Note = strings.Join(args[1:], " ")
			if cmd.Flags().Changed("done") {
				rec.Completed, _ = cmd.Flags().GetBool("done")
			}
			return putNote(ctx, a, args[0], rec)
		})
	},
}

var noteDoneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCompleted(cmd, args[0], true)
	},
}

var noteUndoCmd = &cobra.Command{
	Use:   "undo <task-id>",
	Short: "Mark a task open again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCompleted(cmd, args[0], false)
	},
}

func setCompleted(cmd *cobra.Command, taskID string, completed bool) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		rec, err := a.Notes.Get(ctx, taskID)
		if err != nil {
			return err
		}
		rec.Completed = completed
		return putNote(ctx, a, taskID, rec)
	})
}

// putNote writes rec at once. A remote outage is reported but not fatal; the
// note is kept locally and synced later.
func putNote(ctx context.Context, a *app.App, taskID string, rec schema.NoteRecord) error {
	err := a.Notes.Put(ctx, taskID, rec)
	switch {
	case err == nil:
	case errors.Is(err, schema.ErrRemoteUnavailable):
		warnDegraded(true)
	default:
		return err
	}
	if jsonOutput {
		return printJSON(rec)
	}
	fmt.Printf("%s %s\n", doneStyle.Render("✓"), taskID)
	return nil
}

func warnDegraded(degraded bool) {
	if degraded {
		fmt.Fprintln(os.Stderr, warnStyle.Render("Remote store unreachable: saved on this device, will sync later."))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func init() {
	noteSetCmd.Flags().Bool("done", false, "also set completion")
	noteCmd.AddCommand(noteListCmd, noteGetCmd, noteSetCmd, noteDoneCmd, noteUndoCmd)
	rootCmd.AddCommand(noteCmd)
}
