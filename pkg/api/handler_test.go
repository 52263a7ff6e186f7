package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/realty/memory"
	"github.com/txn2/realty-platform/pkg/session"
)

const (
	testPassword   = "correct horse battery"
	testSigningKey = "0123456789abcdef0123456789abcdef"
	testSessionTTL = time.Hour
)

type countingLogins struct {
	ok, failed atomic.Int32
}

func (c *countingLogins) ObserveLogin(_ string, ok bool) {
	if ok {
		c.ok.Add(1)
		return
	}
	c.failed.Add(1)
}

type testEnv struct {
	server *httptest.Server
	store  *memory.Store
	logins *countingLogins

	agentID  string
	clientID string
	listing  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)

	users := map[string]*realty.User{
		"root":  {Username: "root", Email: "root@example.com", Role: realty.RoleAdmin, IsAdmin: true},
		"alice": {Username: "alice", Email: "alice@example.com", Role: realty.RoleAgent},
		"carol": {Username: "carol", Email: "carol@example.com", Role: realty.RoleClient},
	}
	for _, u := range users {
		u.PasswordHash = hash
		require.NoError(t, store.CreateUser(ctx, u))
	}

	agent := &realty.Agent{Name: "Alice Agent", UserID: users["alice"].ID}
	require.NoError(t, store.CreateAgent(ctx, agent))
	other := &realty.Agent{Name: "Bob Broker"}
	require.NoError(t, store.CreateAgent(ctx, other))

	mine := &realty.Property{Title: "Loft", City: "Austin", Type: "Condo", Status: realty.StatusAvailable, Price: 300000, Bedrooms: 2, AgentID: agent.ID, Featured: true}
	require.NoError(t, store.CreateProperty(ctx, mine))
	theirs := &realty.Property{Title: "Ranch", City: "Dallas", Type: "House", Status: realty.StatusAvailable, Price: 450000, Bedrooms: 4, AgentID: other.ID}
	require.NoError(t, store.CreateProperty(ctx, theirs))

	tokens, err := auth.NewAdminTokens(auth.AdminTokenConfig{SigningKey: []byte(testSigningKey)})
	require.NoError(t, err)
	resolver, err := auth.NewResolver(auth.Config{Tokens: tokens})
	require.NoError(t, err)

	mgr := session.NewManager(session.HandlerConfig{
		Store:  session.NewMemoryStore(testSessionTTL),
		TTL:    testSessionTTL,
		Secret: []byte("test-cookie-secret"),
	})
	logins := &countingLogins{}
	h := NewHandler(Deps{
		Store:    store,
		Sessions: mgr,
		Resolver: resolver,
		Tokens:   tokens,
		Logins:   logins,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mgr.Middleware(mux))
	t.Cleanup(srv.Close)

	return &testEnv{
		server:   srv,
		store:    store,
		logins:   logins,
		agentID:  agent.ID,
		clientID: users["carol"].ID,
		listing:  mine.ID,
	}
}

func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path string, body any, header http.Header) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) login(t *testing.T, c *http.Client, username string) *session.UserSnapshot {
	t.Helper()
	resp, body := e.do(t, c, http.MethodPost, "/api/traditional-login",
		loginRequest{Username: username, Password: testPassword}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var snap session.UserSnapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	return &snap
}

func TestListProperties_Filters(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	resp, body := env.do(t, c, http.MethodGet, "/api/properties", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []realty.Property
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 2)

	_, body = env.do(t, c, http.MethodGet, "/api/properties?city=dallas", nil, nil)
	var dallas []realty.Property
	require.NoError(t, json.Unmarshal(body, &dallas))
	require.Len(t, dallas, 1)
	assert.Equal(t, "Ranch", dallas[0].Title)

	_, body = env.do(t, c, http.MethodGet, "/api/properties?featured=true", nil, nil)
	var featured []realty.Property
	require.NoError(t, json.Unmarshal(body, &featured))
	require.Len(t, featured, 1)
	assert.Equal(t, env.listing, featured[0].ID)

	_, body = env.do(t, c, http.MethodGet, "/api/properties?type=castle", nil, nil)
	assert.JSONEq(t, `[]`, string(body))
}

func TestGetProperty_NotFound(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, env.client(t), http.MethodGet, "/api/properties/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Property not found"}`, string(body))
}

func TestCreateMessage(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	resp, body := env.do(t, c, http.MethodPost, "/api/messages", inquiryRequest{
		Name:       "Dana",
		Email:      "dana@example.com",
		Message:    "Is the loft still available?",
		PropertyID: env.listing,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var msg realty.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, env.agentID, msg.AgentID, "agent is taken from the listing")
	assert.Empty(t, msg.SenderID, "anonymous inquiries have no sender")
	assert.Equal(t, "Property inquiry", msg.Subject)

	resp, body = env.do(t, c, http.MethodPost, "/api/messages",
		inquiryRequest{Name: "Dana", Email: "not-an-email", Message: "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "email")
}

func TestCreateMessage_LinksSignedInSender(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	env.login(t, c, "carol")

	resp, body := env.do(t, c, http.MethodPost, "/api/messages",
		inquiryRequest{Name: "Carol", Email: "carol@example.com", Message: "Hello"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = env.do(t, c, http.MethodGet, "/api/client/messages", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var msgs []realty.Message
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, env.clientID, msgs[0].SenderID)
}

func TestCreateMessage_BadBody(t *testing.T) {
	env := newTestEnv(t)
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/messages", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := env.client(t).Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecommend(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, env.client(t), http.MethodPost, "/api/recommendations",
		map[string]any{"city": "Dallas", "min_bedrooms": 3}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var recs []struct {
		Property realty.Property `json:"property"`
		Reasons  []string        `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(body, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "Ranch", recs[0].Property.Title)

	resp, body = env.do(t, env.client(t), http.MethodPost, "/api/recommendations",
		map[string]any{"min_bedrooms": 9}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	resp, body := env.do(t, c, http.MethodGet, "/api/auth/user", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Unauthorized"}`, string(body))
	before := resp.Cookies()

	snap := env.login(t, c, "carol")
	assert.Equal(t, "carol", snap.Username)
	assert.Equal(t, "client", snap.Role)
	assert.False(t, snap.IsAdmin)
	assert.EqualValues(t, 1, env.logins.ok.Load())

	resp, body = env.do(t, c, http.MethodGet, "/api/auth/user", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"username":"carol"`)

	_, body = env.do(t, c, http.MethodGet, "/api/auth/check-admin", nil, nil)
	assert.JSONEq(t, `{"isAdmin":false}`, string(body))

	require.NotEmpty(t, before)
	assert.NotEqual(t, before[0].Value, sessionCookieValue(t, c, env.server.URL),
		"login must rotate the session id")
}

func sessionCookieValue(t *testing.T, c *http.Client, rawURL string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, http.NoBody)
	require.NoError(t, err)
	for _, ck := range c.Jar.Cookies(req.URL) {
		if ck.Name == session.DefaultCookieName {
			return ck.Value
		}
	}
	return ""
}

func TestLogin_ByEmail(t *testing.T) {
	env := newTestEnv(t)
	snap := env.login(t, env.client(t), "alice@example.com")
	assert.Equal(t, "alice", snap.Username)
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	resp, body := env.do(t, c, http.MethodPost, "/api/traditional-login",
		loginRequest{Username: "carol", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Invalid username or password"}`, string(body))

	resp, _ = env.do(t, c, http.MethodPost, "/api/traditional-login",
		loginRequest{Username: "nobody", Password: testPassword}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, c, http.MethodPost, "/api/traditional-login",
		loginRequest{Username: "carol"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, c, http.MethodPost, "/api/traditional-login",
		loginRequest{Username: "carol", Password: testPassword, UserType: "agent"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(body), "not a agent account")

	assert.EqualValues(t, 3, env.logins.failed.Load())
	assert.Zero(t, env.logins.ok.Load())

	resp, _ = env.do(t, c, http.MethodGet, "/api/auth/user", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_AdminIgnoresUserType(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, env.client(t), http.MethodPost, "/api/traditional-login",
		loginRequest{Username: "root", Password: testPassword, UserType: "client"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	env.login(t, c, "carol")

	resp, body := env.do(t, c, http.MethodPost, "/api/logout", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"message":"Logged out successfully"}`, string(body))

	resp, _ = env.do(t, c, http.MethodGet, "/api/auth/user", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRedirect(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	env.login(t, c, "carol")

	resp, _ := env.do(t, c, http.MethodGet, "/api/logout", nil, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = env.do(t, c, http.MethodGet, "/api/auth/user", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminToken(t *testing.T) {
	env := newTestEnv(t)
	admin := env.client(t)
	env.login(t, admin, "root")

	_, body := env.do(t, admin, http.MethodGet, "/api/auth/check-admin", nil, nil)
	assert.JSONEq(t, `{"isAdmin":true}`, string(body))

	resp, body := env.do(t, admin, http.MethodPost, "/api/auth/admin-token", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var tok adminTokenResponse
	require.NoError(t, json.Unmarshal(body, &tok))
	assert.Equal(t, auth.AdminTokenHeader, tok.Header)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	// The token only counts alongside the session it was issued to.
	anon := env.client(t)
	_, body = env.do(t, anon, http.MethodGet, "/api/auth/check-admin", nil,
		http.Header{auth.AdminTokenHeader: {tok.Token}})
	assert.JSONEq(t, `{"isAdmin":false}`, string(body))

	_, body = env.do(t, anon, http.MethodGet, "/api/auth/check-admin", nil,
		http.Header{auth.AdminTokenHeader: {tok.Token + "x"}})
	assert.JSONEq(t, `{"isAdmin":false}`, string(body))
}

func TestAdminToken_RevokedByLogout(t *testing.T) {
	env := newTestEnv(t)
	admin := env.client(t)
	env.login(t, admin, "root")

	resp, body := env.do(t, admin, http.MethodPost, "/api/auth/admin-token", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var tok adminTokenResponse
	require.NoError(t, json.Unmarshal(body, &tok))
	oldCookie := sessionCookieValue(t, admin, env.server.URL)

	resp, _ = env.do(t, admin, http.MethodPost, "/api/logout", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, tok.ExpiresAt.After(time.Now()), "token has not expired yet")

	hdr := http.Header{auth.AdminTokenHeader: {tok.Token}}
	_, body = env.do(t, admin, http.MethodGet, "/api/auth/check-admin", nil, hdr)
	assert.JSONEq(t, `{"isAdmin":false}`, string(body))

	// Replaying the pre-logout cookie with the token does not help either.
	replay := env.client(t)
	u, err := url.Parse(env.server.URL)
	require.NoError(t, err)
	replay.Jar.SetCookies(u, []*http.Cookie{{Name: session.DefaultCookieName, Value: oldCookie, Path: "/"}})
	_, body = env.do(t, replay, http.MethodGet, "/api/auth/check-admin", nil, hdr)
	assert.JSONEq(t, `{"isAdmin":false}`, string(body))
}

func TestAdminToken_DeniedForNonAdmin(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	env.login(t, c, "carol")

	resp, body := env.do(t, c, http.MethodPost, "/api/auth/admin-token", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Admin access required","error":"ADMIN_ACCESS_DENIED"}`, string(body))
}

func TestAgentProperties(t *testing.T) {
	env := newTestEnv(t)
	agent := env.client(t)
	env.login(t, agent, "alice")

	resp, body := env.do(t, agent, http.MethodGet, "/api/agent/properties", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var props []realty.Property
	require.NoError(t, json.Unmarshal(body, &props))
	require.Len(t, props, 1)
	assert.Equal(t, env.listing, props[0].ID)

	resp, _ = env.do(t, agent, http.MethodGet, "/api/agent/messages", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	client := env.client(t)
	env.login(t, client, "carol")
	resp, body = env.do(t, client, http.MethodGet, "/api/agent/properties", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Forbidden","error":"ROLE_ACCESS_DENIED"}`, string(body))

	resp, _ = env.do(t, env.client(t), http.MethodGet, "/api/agent/properties", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAgentProperties_NoProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, env.store.CreateUser(ctx, &realty.User{Username: "newbie", Role: realty.RoleAgent, PasswordHash: hash}))

	c := env.client(t)
	env.login(t, c, "newbie")
	resp, body := env.do(t, c, http.MethodGet, "/api/agent/properties", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"No agent profile for this account"}`, string(body))
}

func TestClientMessages_AdminAllowed(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	env.login(t, c, "root")

	resp, body := env.do(t, c, http.MethodGet, "/api/client/messages", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query         string
		limit, offset int
	}{
		{"", defaultPerPage, 0},
		{"per_page=5&page=3", 5, 10},
		{"per_page=1000", maxPerPage, 0},
		{"per_page=-1&page=0", defaultPerPage, 0},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, http.NoBody)
		limit, offset := parsePage(req.URL.Query())
		assert.Equal(t, tt.limit, limit, tt.query)
		assert.Equal(t, tt.offset, offset, tt.query)
	}
}
