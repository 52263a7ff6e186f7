package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/recommend"
)

// PropertyQuery filters GET /api/properties. Zero values are omitted.
type PropertyQuery struct {
	Type     string
	Status   string
	City     string
	Featured *bool
	Page     int
	PerPage  int
}

func (q PropertyQuery) values() url.Values {
	v := url.Values{}
	setIf(v, "type", q.Type)
	setIf(v, "status", q.Status)
	setIf(v, "city", q.City)
	if q.Featured != nil {
		v.Set("featured", strconv.FormatBool(*q.Featured))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// Inquiry is the body of POST /api/messages.
type Inquiry struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Subject    string `json:"subject"`
	Message    string `json:"message"`
	PropertyID string `json:"property_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
}

// ListProperties lists public listings.
func (c *Client) ListProperties(ctx context.Context, q PropertyQuery) ([]realty.Property, error) {
	var props []realty.Property
	err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/properties", query: q.values(), respObj: &props})
	return props, err
}

// GetProperty fetches one listing.
func (c *Client) GetProperty(ctx context.Context, id string) (*realty.Property, error) {
	var p realty.Property
	if err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/properties/" + url.PathEscape(id), respObj: &p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListAgents lists the agent directory.
func (c *Client) ListAgents(ctx context.Context) ([]realty.Agent, error) {
	var agents []realty.Agent
	err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/agents", respObj: &agents})
	return agents, err
}

// SendInquiry submits an inquiry.
func (c *Client) SendInquiry(ctx context.Context, in Inquiry) (*realty.Message, error) {
	var m realty.Message
	err := c.execute(ctx, outboundRequest{
		method:      http.MethodPost,
		path:        "/api/messages",
		body:        in,
		successCode: http.StatusCreated,
		respObj:     &m,
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Recommend ranks listings against prefs.
func (c *Client) Recommend(ctx context.Context, prefs recommend.Preferences) ([]recommend.Recommendation, error) {
	var recs []recommend.Recommendation
	err := c.execute(ctx, outboundRequest{method: http.MethodPost, path: "/api/recommendations", body: prefs, respObj: &recs})
	return recs, err
}

// AgentProperties lists the signed-in agent's own listings.
func (c *Client) AgentProperties(ctx context.Context) ([]realty.Property, error) {
	var props []realty.Property
	err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/agent/properties", respObj: &props})
	return props, err
}

// MyMessages lists inquiries for the signed-in client or agent.
func (c *Client) MyMessages(ctx context.Context, asAgent bool) ([]realty.Message, error) {
	path := "/api/client/messages"
	if asAgent {
		path = "/api/agent/messages"
	}
	var msgs []realty.Message
	err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: path, respObj: &msgs})
	return msgs, err
}
