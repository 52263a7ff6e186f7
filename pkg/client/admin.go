package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/txn2/realty-platform/pkg/audit"
	"github.com/txn2/realty-platform/pkg/realty"
)

// AdminListProperties lists every property regardless of status.
func (c *Client) AdminListProperties(ctx context.Context) ([]realty.Property, error) {
	var props []realty.Property
	err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/admin/properties", respObj: &props})
	return props, err
}

// AdminCreateProperty creates a listing.
func (c *Client) AdminCreateProperty(ctx context.Context, p realty.Property) (*realty.Property, error) {
	var out realty.Property
	err := c.execute(ctx, outboundRequest{
		method:      http.MethodPost,
		path:        "/api/admin/properties",
		body:        p,
		successCode: http.StatusCreated,
		respObj:     &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminDeleteProperty deletes a listing.
func (c *Client) AdminDeleteProperty(ctx context.Context, id string) error {
	return c.execute(ctx, outboundRequest{
		method:      http.MethodDelete,
		path:        "/api/admin/properties/" + url.PathEscape(id),
		successCode: http.StatusNoContent,
	})
}

// AdminListAgents lists agents including their linked user IDs.
func (c *Client) AdminListAgents(ctx context.Context) ([]realty.Agent, error) {
	var agents []realty.Agent
	err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/admin/agents", respObj: &agents})
	return agents, err
}

// AdminListMessages lists inquiries.
func (c *Client) AdminListMessages(ctx context.Context, unreadOnly bool) ([]realty.Message, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	var msgs []realty.Message
	err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/admin/messages", query: q, respObj: &msgs})
	return msgs, err
}

// AdminMarkMessageRead sets a message's read flag.
func (c *Client) AdminMarkMessageRead(ctx context.Context, id string, read bool) error {
	return c.execute(ctx, outboundRequest{
		method: http.MethodPut,
		path:   "/api/admin/messages/" + url.PathEscape(id) + "/read",
		body:   map[string]bool{"read": read},
	})
}

// AdminDeleteMessage deletes a message.
func (c *Client) AdminDeleteMessage(ctx context.Context, id string) error {
	return c.execute(ctx, outboundRequest{
		method:      http.MethodDelete,
		path:        "/api/admin/messages/" + url.PathEscape(id),
		successCode: http.StatusNoContent,
	})
}

// AdminListUsers lists user accounts.
func (c *Client) AdminListUsers(ctx context.Context) ([]realty.User, error) {
	var users []realty.User
	err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/admin/users", respObj: &users})
	return users, err
}

// AuditPage is one page of authorization decisions.
type AuditPage struct {
	Data    []audit.Event `json:"data"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// AdminAudit lists authorization decisions, optionally only denials.
func (c *Client) AdminAudit(ctx context.Context, deniedOnly bool, page int) (*AuditPage, error) {
	q := url.Values{}
	if deniedOnly {
		q.Set("allowed", "false")
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	var out AuditPage
	if err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/admin/audit", query: q, respObj: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}
