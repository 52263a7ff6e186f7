package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/txn2/realty-platform/pkg/client"
	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/recommend"
	"github.com/txn2/realty-platform/pkg/routeguard"
)

var propertyHeader = []any{"ID", "TITLE", "CITY", "TYPE", "PRICE", "BEDS", "STATUS"}

func propertyRows(props []realty.Property) func(*uitable.Table) {
	return func(t *uitable.Table) {
		for _, p := range props {
			t.AddRow(p.ID, p.Title, p.City, p.Type, formatPrice(p.Price), p.Bedrooms, p.Status)
		}
	}
}

func propertiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "properties",
		Aliases: []string{"property", "props"},
		Short:   "Browse listings",
	}

	var q client.PropertyQuery
	var featured bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.navigate(ctx, "/properties"); err != nil {
				return err
			}
			if cmd.Flags().Changed("featured") {
				q.Featured = &featured
			}
			props, err := a.client.ListProperties(ctx, q)
			if err != nil {
				return fmt.Errorf("listing properties: %w", err)
			}
			if len(props) == 0 && a.output == outputTable {
				_, err = fmt.Fprintln(a.out, "No properties found.")
				return err
			}
			return render(a.out, a.output, props, propertyHeader, propertyRows(props))
		},
	}
	list.Flags().StringVar(&q.City, "city", "", "City")
	list.Flags().StringVar(&q.Type, "type", "", "Property type")
	list.Flags().StringVar(&q.Status, "status", "", "Listing status")
	list.Flags().BoolVar(&featured, "featured", false, "Only featured (or, with =false, only non-featured) listings")
	list.Flags().IntVar(&q.Page, "page", 0, "Page number")
	list.Flags().IntVar(&q.PerPage, "per-page", 0, "Results per page")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.navigate(ctx, "/properties/"+args[0]); err != nil {
				return err
			}
			p, err := a.client.GetProperty(ctx, args[0])
			if err != nil {
				return fmt.Errorf("fetching property %s: %w", args[0], err)
			}
			return render(a.out, a.output, p, []any{"FIELD", "VALUE"}, func(t *uitable.Table) {
				t.AddRow("ID", p.ID)
				t.AddRow("TITLE", p.Title)
				t.AddRow("ADDRESS", strings.TrimSpace(p.Address+" "+p.City))
				t.AddRow("PRICE", formatPrice(p.Price))
				t.AddRow("BEDS/BATHS", fmt.Sprintf("%d/%d", p.Bedrooms, p.Bathrooms))
				t.AddRow("AREA", p.Area)
				t.AddRow("STATUS", p.Status)
				t.AddRow("FEATURED", yesNo(p.Featured))
				t.AddRow("DESCRIPTION", p.Description)
			})
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func agentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.navigate(ctx, "/agents"); err != nil {
				return err
			}
			agents, err := a.client.ListAgents(ctx)
			if err != nil {
				return fmt.Errorf("listing agents: %w", err)
			}
			return render(a.out, a.output, agents, []any{"ID", "NAME", "TITLE", "EMAIL", "PHONE", "LISTINGS"}, func(t *uitable.Table) {
				for _, ag := range agents {
					t.AddRow(ag.ID, ag.Name, ag.Title, ag.Email, ag.Phone, ag.Listings)
				}
			})
		},
	}
}

func inquireCmd(a *app) *cobra.Command {
	var in client.Inquiry
	cmd := &cobra.Command{
		Use:   "inquire",
		Short: "Send an inquiry to an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.navigate(ctx, "/contact"); err != nil {
				return err
			}
			msg, err := a.client.SendInquiry(ctx, in)
			if err != nil {
				return fmt.Errorf("sending inquiry: %w", err)
			}
			_, err = fmt.Fprintf(a.out, "Inquiry %s sent.\n", msg.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "Your name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Your email address")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "Your phone number")
	cmd.Flags().StringVar(&in.Subject, "subject", "", "Subject")
	cmd.Flags().StringVarP(&in.Message, "message", "m", "", "Message")
	cmd.Flags().StringVar(&in.PropertyID, "property", "", "Property the inquiry is about")
	cmd.Flags().StringVar(&in.AgentID, "agent", "", "Agent to contact")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func recommendCmd(a *app) *cobra.Command {
	var prefs recommend.Preferences
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank listings against your preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.navigate(ctx, "/recommendations"); err != nil {
				return err
			}
			recs, err := a.client.Recommend(ctx, prefs)
			if err != nil {
				return fmt.Errorf("fetching recommendations: %w", err)
			}
			return render(a.out, a.output, recs, []any{"SCORE", "ID", "TITLE", "CITY", "PRICE", "REASONS"}, func(t *uitable.Table) {
				for _, r := range recs {
					t.AddRow(strconv.FormatFloat(r.Score, 'f', 2, 64), r.Property.ID, r.Property.Title,
						r.Property.City, formatPrice(r.Property.Price), strings.Join(r.Reasons, "; "))
				}
			})
		},
	}
	cmd.Flags().Int64Var(&prefs.MinPrice, "min-price", 0, "Minimum price")
	cmd.Flags().Int64Var(&prefs.MaxPrice, "max-price", 0, "Maximum price")
	cmd.Flags().StringVar(&prefs.City, "city", "", "Preferred city")
	cmd.Flags().StringVar(&prefs.Type, "type", "", "Preferred property type")
	cmd.Flags().IntVar(&prefs.MinBedrooms, "min-bedrooms", 0, "Minimum bedrooms")
	cmd.Flags().IntVar(&prefs.MinBathrooms, "min-bathrooms", 0, "Minimum bathrooms")
	cmd.Flags().BoolVar(&prefs.FeaturedOnly, "featured", false, "Only featured listings")
	cmd.Flags().IntVar(&prefs.Limit, "limit", 0, "Maximum results")
	return cmd
}

func messagesCmd(a *app) *cobra.Command {
	var asAgent bool
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List your inquiries (clients) or the inquiries sent to you (agents)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			path, role := routeguard.ClientDashboard, routeguard.RoleClient
			if asAgent {
				path, role = routeguard.AgentDashboard, routeguard.RoleAgent
			}
			if err := a.visit(ctx, path, role); err != nil {
				return err
			}
			msgs, err := a.client.MyMessages(ctx, asAgent)
			if err != nil {
				return fmt.Errorf("listing messages: %w", err)
			}
			return render(a.out, a.output, msgs, messageHeader, messageRows(msgs))
		},
	}
	cmd.Flags().BoolVar(&asAgent, "agent", false, "Show the agent inbox")
	return cmd
}

var messageHeader = []any{"ID", "FROM", "EMAIL", "SUBJECT", "PROPERTY", "READ", "RECEIVED"}

func messageRows(msgs []realty.Message) func(*uitable.Table) {
	return func(t *uitable.Table) {
		for _, m := range msgs {
			t.AddRow(m.ID, m.Name, m.Email, m.Subject, m.PropertyID, yesNo(m.Read), m.CreatedAt.Format("2006-01-02 15:04"))
		}
	}
}
