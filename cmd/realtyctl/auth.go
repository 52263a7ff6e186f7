package main

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/txn2/realty-platform/pkg/lifecycle"
	"github.com/txn2/realty-platform/pkg/routeguard"
)

func loginCmd(a *app) *cobra.Command {
	var username, password, userType string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a username and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.navigate(ctx, routeguard.LoginPath); err != nil {
				return err
			}
			u, err := a.client.Login(ctx, username, password, userType)
			if err != nil {
				return fmt.Errorf("signing in: %w", err)
			}
			_, err = fmt.Fprintf(a.out, "Signed in as %s (%s). Dashboard: %s\n", u.Username, u.Role, routeguard.Dashboard(u))
			return err
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	cmd.Flags().StringVar(&userType, "as", "", "Expected account type: client, agent")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("signing out: %w", err)
			}
			a.client.SetAdminToken("")
			if err := a.state.Remove(keySession, lifecycle.KeyWasInAdmin, lifecycle.KeyAdminUsername,
				lifecycle.KeyAdminPassword, lifecycle.KeyAdminToken); err != nil {
				return err
			}
			_, err := fmt.Fprintln(a.out, "Signed out.")
			return err
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			u, err := a.client.CurrentUser(ctx)
			if err != nil {
				return fmt.Errorf("fetching current user: %w", err)
			}
			if u == nil {
				_, err = fmt.Fprintln(a.out, "Not signed in.")
				return err
			}
			isAdmin, err := a.client.CheckAdmin(ctx)
			if err != nil {
				return fmt.Errorf("checking admin privilege: %w", err)
			}
			u.IsAdmin = u.IsAdmin || isAdmin
			return render(a.out, a.output, u, []any{"USERNAME", "NAME", "ROLE", "ADMIN"}, func(t *uitable.Table) {
				t.AddRow(u.Username, u.FullName, u.Role, yesNo(u.IsAdmin))
			})
		},
	}
}
