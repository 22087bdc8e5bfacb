package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blogpad/launchpad/internal/app"
)

var signinCmd = &cobra.Command{
	Use:     "signin <email>",
	GroupID: "account",
	Short:   "Sign in to sync progress to the remote store",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd, args[0], func(ctx context.Context, a *app.App, email, password string) error {
			return a.Auth.SignIn(ctx, email, password)
		})
	},
}

var signupCmd = &cobra.Command{
	Use:     "signup <email>",
	GroupID: "account",
	Short:   "Create an account and sign in",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd, args[0], func(ctx context.Context, a *app.App, email, password string) error {
			return a.Auth.SignUp(ctx, email, password)
		})
	},
}

var signoutCmd = &cobra.Command{
	Use:     "signout",
	GroupID: "account",
	Short:   "Sign out; progress is then kept on this device only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Auth.SignOut(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "account",
	Short:   "Show the signed-in user and storage mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			s := a.Auth.Current()
			st := a.Engine.State()
			if jsonOutput {
				return printJSON(map[string]any{
					"session":    s,
					"remote":     a.Engine.HasRemote(),
					"pending":    a.Engine.PendingCount(ctx),
					"generation": st.Generation,
				})
			}
			fmt.Println(whoami(a))
			switch {
			case s.User == nil:
				fmt.Println(mutedStyle.Render("Progress is stored on this device."))
			case !a.Engine.HasRemote():
				fmt.Println(mutedStyle.Render("No remote store configured; progress is stored on this device."))
			default:
				fmt.Printf("%s\n", mutedStyle.Render("Synced to the "+a.Remote.Driver()+" remote store."))
				if n := a.Engine.PendingCount(ctx); n > 0 {
					fmt.Println(warnStyle.Render(fmt.Sprintf("%d change(s) waiting to sync.", n)))
				}
			}
			return nil
		})
	},
}

func authenticate(cmd *cobra.Command, email string, fn func(ctx context.Context, a *app.App, email, password string) error) error {
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		var err error
		password, err = readPassword()
		if err != nil {
			return err
		}
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := fn(ctx, a, email, password); err != nil {
			return err
		}
		fmt.Printf("Signed in as %s\n", a.Auth.Current().User.Email)
		return nil
	})
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	for _, c := range []*cobra.Command{signinCmd, signupCmd} {
		c.Flags().String("password", "", "password (prompted when omitted)")
	}
	rootCmd.AddCommand(signinCmd, signupCmd, signoutCmd, whoamiCmd)
}
