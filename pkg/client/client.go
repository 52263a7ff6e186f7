// Package client is a Go client for the realty platform HTTP API. It keeps
// the session cookie between calls and can present admin credentials
// (a signed admin token or the shared admin secret) on admin requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/routeguard"
	"github.com/txn2/realty-platform/pkg/session"
)

// DefaultCookieName is the session cookie the server issues by default.
const DefaultCookieName = session.DefaultCookieName

const maxErrorBody = 64 << 10

// APIError is a non-success response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Code    string `json:"error,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("received %d from API server", e.Status)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Jar is replaced
// so the session cookie can be tracked.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithSessionCookie resumes a session from a previously saved cookie value.
func WithSessionCookie(value string) Option {
	return func(c *Client) {
		c.resume = value
	}
}

// WithCookieName sets the session cookie name (default: DefaultCookieName).
func WithCookieName(name string) Option {
	return func(c *Client) {
		c.cookieName = name
	}
}

// WithAdminToken presents a signed admin token on every request.
func WithAdminToken(token string) Option {
	return func(c *Client) {
		c.adminToken = token
	}
}

// WithAdminSecret presents the shared admin secret as a bearer token.
func WithAdminSecret(secret string) Option {
	return func(c *Client) {
		c.adminSecret = secret
	}
}

// Client calls the realty platform API. It is not safe to change options
// concurrently with requests.
type Client struct {
	base        *url.URL
	http        *http.Client
	cookieName  string
	resume      string
	adminToken  string
	adminSecret string
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server address: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server address %q must be http or https", baseURL)
	}

	c := &Client{base: base, cookieName: DefaultCookieName}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	c.http.Jar = jar
	if c.resume != "" {
		jar.SetCookies(base, []*http.Cookie{{Name: c.cookieName, Value: c.resume, Path: "/"}})
	}
	return c, nil
}

// SessionCookie returns the current session cookie value, or "" when the
// server has not issued one.
func (c *Client) SessionCookie() string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == c.cookieName {
			return ck.Value
		}
	}
	return ""
}

// SetAdminToken changes the admin token presented on later requests.
func (c *Client) SetAdminToken(token string) {
	c.adminToken = token
}

// outboundRequest describes one API call.
type outboundRequest struct {
	method      string
	path        string
	query       url.Values
	body        any
	successCode int
	respObj     any
}

func (c *Client) execute(ctx context.Context, req outboundRequest) error {
	var body io.Reader = http.NoBody
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	u := *c.base
	u.Path = c.base.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}
	r, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("creating request %s %s: %w", req.method, req.path, err)
	}
	r.Header.Set("Accept", "application/json")
	if req.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		r.Header.Set(auth.AdminTokenHeader, c.adminToken)
	}
	if c.adminSecret != "" {
		r.Header.Set("Authorization", "Bearer "+c.adminSecret)
	}

	resp, err := c.http.Do(r)
	if err != nil {
		return fmt.Errorf("invoking API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	want := req.successCode
	if want == 0 {
		want = http.StatusOK
	}
	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if req.respObj != nil {
		if err := json.NewDecoder(resp.Body).Decode(req.respObj); err != nil {
			return fmt.Errorf("decoding response body: %w", err)
		}
	}
	return nil
}

// Login signs in with a username and password. userType, when not empty,
// must match the account's role.
func (c *Client) Login(ctx context.Context, username, password, userType string) (*routeguard.User, error) {
	var u routeguard.User
	err := c.execute(ctx, outboundRequest{
		method:  http.MethodPost,
		path:    "/api/traditional-login",
		body:    map[string]string{"username": username, "password": password, "userType": userType},
		respObj: &u,
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.execute(ctx, outboundRequest{method: http.MethodPost, path: "/api/logout"})
}

// CurrentUser returns the signed-in user, or nil when the session is
// anonymous.
func (c *Client) CurrentUser(ctx context.Context) (*routeguard.User, error) {
	var u routeguard.User
	err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/auth/user", respObj: &u})
	if IsStatus(err, http.StatusUnauthorized) {
		return nil, nil //nolint:nilnil // anonymous is not an error
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CheckAdmin reports whether the server grants this client admin privilege.
func (c *Client) CheckAdmin(ctx context.Context) (bool, error) {
	var resp struct {
		IsAdmin bool `json:"isAdmin"`
	}
	if err := c.execute(ctx, outboundRequest{method: http.MethodGet, path: "/api/auth/check-admin", respObj: &resp}); err != nil {
		return false, err
	}
	return resp.IsAdmin, nil
}

// AdminToken is a signed admin token issued by the server.
type AdminToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Header    string    `json:"header"`
}

// IssueAdminToken asks the server for a signed admin token.
func (c *Client) IssueAdminToken(ctx context.Context) (*AdminToken, error) {
	var tok AdminToken
	if err := c.execute(ctx, outboundRequest{method: http.MethodPost, path: "/api/auth/admin-token", respObj: &tok}); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Guard fetches the current user and evaluates g the way a page would. A
// failed fetch yields an Error outcome rather than an error.
func (c *Client) Guard(ctx context.Context, g routeguard.Guard) routeguard.Outcome {
	u, err := c.CurrentUser(ctx)
	if err != nil {
		return g.Evaluate(routeguard.State{Err: err})
	}
	if g.Role == routeguard.RoleAdmin && (u == nil || !u.IsAdmin) {
		// Admin credentials other than the session can still grant access.
		if ok, err := c.CheckAdmin(ctx); err == nil && ok {
			if u == nil {
				u = &routeguard.User{}
			}
			u.IsAdmin = true
		}
	}
	return g.Evaluate(routeguard.State{User: u})
}
