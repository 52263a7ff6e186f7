package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/txn2/realty-platform/pkg/client"
	"github.com/txn2/realty-platform/pkg/lifecycle"
	"github.com/txn2/realty-platform/pkg/routeguard"
)

// app holds what every command needs once flags are parsed.
type app struct {
	out    io.Writer
	errOut io.Writer

	statePath string
	server    string
	output    string
	secret    string

	state   *lifecycle.FileStorage
	client  *client.Client
	tracker *lifecycle.Tracker
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:   "realtyctl",
		Short: "Command-line client for the realty platform",
		Long: `realtyctl browses listings, sends inquiries, and manages the
realty platform from a terminal. The session is kept in a state file
between runs. Leaving the admin commands for any other page signs the
admin session out, the same way the web UI does.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.client == nil {
				return nil
			}
			return a.saveSession()
		},
	}

	cmd.PersistentFlags().StringVar(&a.statePath, "state", "", "State file (default ~/.realtyctl/state.json)")
	cmd.PersistentFlags().StringVarP(&a.server, "server", "s", "", "Server address (default: last used, or "+defaultServer+")")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", outputTable, "Output format: table, json")
	cmd.PersistentFlags().StringVar(&a.secret, "admin-secret", "", "Shared admin secret to present as a bearer token")

	cmd.AddCommand(
		loginCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		propertiesCmd(a),
		agentsCmd(a),
		inquireCmd(a),
		recommendCmd(a),
		messagesCmd(a),
		adminCmd(a),
		versionCmd(a),
	)
	return cmd
}

func (a *app) setup() error {
	if err := validateOutputFormat(a.output); err != nil {
		return err
	}
	state, err := openState(a.statePath)
	if err != nil {
		return err
	}
	a.state = state

	if a.server == "" {
		a.server, _ = state.Get(keyServer)
	}
	if a.server == "" {
		a.server = defaultServer
	}
	// A different server means the saved session is meaningless.
	if prev, ok := state.Get(keyServer); ok && prev != a.server {
		if err := state.Remove(keySession, lifecycle.KeyAdminToken, lifecycle.KeyAdminUsername, lifecycle.KeyAdminPassword); err != nil {
			return err
		}
	}
	if err := state.Set(keyServer, a.server); err != nil {
		return err
	}

	opts := []client.Option{}
	if v, ok := state.Get(keySession); ok {
		opts = append(opts, client.WithSessionCookie(v))
	}
	if v, ok := state.Get(lifecycle.KeyAdminToken); ok {
		opts = append(opts, client.WithAdminToken(v))
	}
	if a.secret != "" {
		opts = append(opts, client.WithAdminSecret(a.secret))
	}
	c, err := client.New(a.server, opts...)
	if err != nil {
		return err
	}
	a.client = c

	a.tracker = lifecycle.NewTracker(lifecycle.Config{
		Storage: state,
		Logout: func(ctx context.Context) error {
			a.client.SetAdminToken("")
			if err := a.state.Remove(keySession); err != nil {
				return err
			}
			return a.client.Logout(ctx)
		},
		Notify: func(msg string) {
			fmt.Fprintln(a.errOut, msg)
		},
	})
	return nil
}

func (a *app) saveSession() error {
	v := a.client.SessionCookie()
	if v == "" {
		return a.state.Remove(keySession)
	}
	return a.state.Set(keySession, v)
}

// navigate records that the user moved to the page at path.
func (a *app) navigate(ctx context.Context, path string) error {
	_, err := a.tracker.Navigate(ctx, path)
	if err != nil {
		return fmt.Errorf("updating state: %w", err)
	}
	return nil
}

// visit navigates to a guarded page and fails unless the guard renders it.
func (a *app) visit(ctx context.Context, path string, role routeguard.Role) error {
	if err := a.navigate(ctx, path); err != nil {
		return err
	}
	out := a.client.Guard(ctx, routeguard.Guard{Role: role})
	switch out.Kind {
	case routeguard.Render:
		return nil
	case routeguard.Error:
		return fmt.Errorf("fetching current user: %w", out.Err)
	case routeguard.Redirect:
		if out.To == routeguard.LoginPath {
			return fmt.Errorf("%s requires signing in; run `realtyctl login` first", path)
		}
		return fmt.Errorf("%s is not available to this account (redirected to %s)", path, out.To)
	default:
		return fmt.Errorf("unexpected guard outcome %s", out.Kind)
	}
}

func versionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.out, "realtyctl version %s\n", version)
			return err
		},
	}
}
