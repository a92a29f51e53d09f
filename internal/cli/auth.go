// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pocketpaw/pawtui/internal/model"
)

func (a *App) printUser(w io.Writer, command string, u *model.User) error {
	row := userRow{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.DisplayName(),
		Guest:   u.IsGuest(),
		BaseURL: a.BaseURL,
		Source:  string(a.URLSource),
	}
	return a.printer(w, command).Print(row, func(tw io.Writer) {
		fmt.Fprintf(tw, "User:\t%s\n", row.Name)
		fmt.Fprintf(tw, "Email:\t%s\n", row.Email)
		fmt.Fprintf(tw, "Server:\t%s (%s)\n", row.BaseURL, row.Source)
	})
}

func newWhoamiCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user, signing in as guest if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			return app.printUser(cmd.OutOrStdout(), "whoami", app.Session.User())
		},
	}
}

// readPassword prompts on the terminal without echo.
func readPassword(w io.Writer) (string, error) {
	if !IsTTY() {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(w, "Password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", errors.Wrap(err, "read password")
	}
	return string(b), nil
}

func newLoginCommand(app *App) *cobra.Command {
	var email, password, token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password, or adopt an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token = strings.TrimSpace(token)
			if token == "" && email == "" {
				return errors.New("either --token or --email is required")
			}
			if err := app.open(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if token != "" {
				u, err := app.Session.Login(ctx, token)
				if err != nil {
					return err
				}
				return app.printUser(cmd.OutOrStdout(), "login", u)
			}
			if password == "" {
				p, err := readPassword(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = p
			}
			u, err := app.Session.LoginPassword(ctx, email, password)
			if err != nil {
				return err
			}
			return app.printUser(cmd.OutOrStdout(), "login", u)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	cmd.Flags().StringVar(&token, "token", "", "access token to adopt")
	cmd.MarkFlagsMutuallyExclusive("token", "email")
	cmd.MarkFlagsMutuallyExclusive("token", "password")

	cmd.AddCommand(newRegisterCommand(app))
	return cmd
}

func newRegisterCommand(app *App) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			if err := app.open(); err != nil {
				return err
			}
			if password == "" {
				p, err := readPassword(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = p
			}
			if _, err := app.Client.Register(cmd.Context(), email, password); err != nil {
				return errors.Wrap(err, "register")
			}
			u, err := app.Session.LoginPassword(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return app.printUser(cmd.OutOrStdout(), "login register", u)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func newLogoutCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out (single-user mode keeps the current credential)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(); err != nil {
				return err
			}
			app.Session.Logout()
			return app.printer(cmd.OutOrStdout(), "logout").Message("pawtui runs in single-user mode; the current credential is kept.")
		},
	}
}
