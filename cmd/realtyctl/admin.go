package main

import (
	"fmt"
	"net/http"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/txn2/realty-platform/pkg/client"
	"github.com/txn2/realty-platform/pkg/lifecycle"
	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/routeguard"
)

func adminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer listings, messages, users, and the audit log",
	}
	cmd.AddCommand(
		adminLoginCmd(a),
		adminPropertiesCmd(a),
		adminMessagesCmd(a),
		adminUsersCmd(a),
		adminAuditCmd(a),
	)
	return cmd
}

func adminLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as an administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.navigate(ctx, routeguard.AdminDashboard); err != nil {
				return err
			}
			if _, err := a.client.Login(ctx, username, password, ""); err != nil {
				return fmt.Errorf("signing in: %w", err)
			}
			ok, err := a.client.CheckAdmin(ctx)
			if err != nil {
				return fmt.Errorf("checking admin privilege: %w", err)
			}
			if !ok {
				_ = a.client.Logout(ctx)
				return fmt.Errorf("%s is not an administrator", username)
			}
			if err := a.state.Set(lifecycle.KeyAdminUsername, username); err != nil {
				return err
			}

			tok, err := a.client.IssueAdminToken(ctx)
			switch {
			case client.IsStatus(err, http.StatusNotFound):
				// Token signing is disabled on the server; the session alone carries admin.
			case err != nil:
				return fmt.Errorf("issuing admin token: %w", err)
			default:
				a.client.SetAdminToken(tok.Token)
				if err := a.state.Set(lifecycle.KeyAdminToken, tok.Token); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(a.out, "Signed in to admin as %s.\n", username)
			return err
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Admin username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func adminPropertiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "properties",
		Aliases: []string{"props"},
		Short:   "Manage listings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.visit(ctx, "/admin/properties", routeguard.RoleAdmin); err != nil {
				return err
			}
			props, err := a.client.AdminListProperties(ctx)
			if err != nil {
				return fmt.Errorf("listing properties: %w", err)
			}
			return render(a.out, a.output, props, propertyHeader, propertyRows(props))
		},
	}

	var p realty.Property
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.visit(ctx, "/admin/properties/new", routeguard.RoleAdmin); err != nil {
				return err
			}
			created, err := a.client.AdminCreateProperty(ctx, p)
			if err != nil {
				return fmt.Errorf("creating property: %w", err)
			}
			_, err = fmt.Fprintf(a.out, "Property %s created.\n", created.ID)
			return err
		},
	}
	create.Flags().StringVar(&p.Title, "title", "", "Title")
	create.Flags().StringVar(&p.Description, "description", "", "Description")
	create.Flags().Int64Var(&p.Price, "price", 0, "Price")
	create.Flags().StringVar(&p.Address, "address", "", "Street address")
	create.Flags().StringVar(&p.City, "city", "", "City")
	create.Flags().StringVar(&p.Type, "type", "", "Property type")
	create.Flags().StringVar(&p.Status, "status", "", "Listing status (default available)")
	create.Flags().IntVar(&p.Bedrooms, "bedrooms", 0, "Bedrooms")
	create.Flags().IntVar(&p.Bathrooms, "bathrooms", 0, "Bathrooms")
	create.Flags().IntVar(&p.Area, "area", 0, "Floor area")
	create.Flags().BoolVar(&p.Featured, "featured", false, "Feature on the home page")
	create.Flags().StringVar(&p.AgentID, "agent", "", "Listing agent ID")
	_ = create.MarkFlagRequired("title")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.visit(ctx, "/admin/properties", routeguard.RoleAdmin); err != nil {
				return err
			}
			if err := a.client.AdminDeleteProperty(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting property %s: %w", args[0], err)
			}
			_, err := fmt.Fprintf(a.out, "Property %s deleted.\n", args[0])
			return err
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

func adminMessagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Manage inquiries",
	}

	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List inquiries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.visit(ctx, "/admin/messages", routeguard.RoleAdmin); err != nil {
				return err
			}
			msgs, err := a.client.AdminListMessages(ctx, unread)
			if err != nil {
				return fmt.Errorf("listing messages: %w", err)
			}
			return render(a.out, a.output, msgs, messageHeader, messageRows(msgs))
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "Only unread messages")

	var markUnread bool
	read := &cobra.Command{
		Use:   "read ID",
		Short: "Mark an inquiry read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.visit(ctx, "/admin/messages", routeguard.RoleAdmin); err != nil {
				return err
			}
			if err := a.client.AdminMarkMessageRead(ctx, args[0], !markUnread); err != nil {
				return fmt.Errorf("updating message %s: %w", args[0], err)
			}
			state := "read"
			if markUnread {
				state = "unread"
			}
			_, err := fmt.Fprintf(a.out, "Message %s marked %s.\n", args[0], state)
			return err
		},
	}
	read.Flags().BoolVar(&markUnread, "unread", false, "Mark unread instead")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an inquiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.visit(ctx, "/admin/messages", routeguard.RoleAdmin); err != nil {
				return err
			}
			if err := a.client.AdminDeleteMessage(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting message %s: %w", args[0], err)
			}
			_, err := fmt.Fprintf(a.out, "Message %s deleted.\n", args[0])
			return err
		},
	}

	cmd.AddCommand(list, read, del)
	return cmd
}

func adminUsersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.visit(ctx, "/admin/users", routeguard.RoleAdmin); err != nil {
				return err
			}
			users, err := a.client.AdminListUsers(ctx)
			if err != nil {
				return fmt.Errorf("listing users: %w", err)
			}
			return render(a.out, a.output, users, []any{"ID", "USERNAME", "NAME", "EMAIL", "ROLE", "ADMIN"}, func(t *uitable.Table) {
				for _, u := range users {
					t.AddRow(u.ID, u.Username, u.FullName, u.Email, u.Role, yesNo(u.IsAdmin))
				}
			})
		},
	}
}

func adminAuditCmd(a *app) *cobra.Command {
	var denied bool
	var page int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show authorization decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.visit(ctx, "/admin/audit", routeguard.RoleAdmin); err != nil {
				return err
			}
			res, err := a.client.AdminAudit(ctx, denied, page)
			if err != nil {
				return fmt.Errorf("listing audit events: %w", err)
			}
			return render(a.out, a.output, res, []any{"TIME", "KIND", "METHOD", "PATH", "ALLOWED", "DECIDED BY", "USER"}, func(t *uitable.Table) {
				for _, ev := range res.Data {
					t.AddRow(ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Kind, ev.Method, ev.Path,
						yesNo(ev.Allowed), ev.DecidedBy, ev.UserID)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&denied, "denied", false, "Only denials")
	cmd.Flags().IntVar(&page, "page", 0, "Page number")
	return cmd
}
