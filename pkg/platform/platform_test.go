package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/realty-platform/pkg/audit"
	"github.com/txn2/realty-platform/pkg/oauth"
)

const (
	testAdminUser     = "admin"
	testAdminPassword = "bootstrap password"
)

func testConfig(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func newTestPlatform(t *testing.T, cfg *Config, opts ...Option) (*Platform, *httptest.Server) {
	t.Helper()
	opts = append([]Option{WithConfig(cfg), WithRegistry(prometheus.NewRegistry())}, opts...)
	p, err := New(context.Background(), opts...)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	srv := httptest.NewServer(p.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = p.Close()
	})
	return p, srv
}

func newClient(t *testing.T) *http.Client {
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

func do(t *testing.T, c *http.Client, method, url string, body any) (int, string, http.Header) {
	t.Helper()
	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data), resp.Header
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background())
	require.EqualError(t, err, "config is required")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "session:\n  store: cookie")
	_, err := New(context.Background(), WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation errors")
}

func TestPlatform_MemoryEndToEnd(t *testing.T) {
	logger := audit.NewMemoryLogger(0)
	cfg := testConfig(t, fmt.Sprintf(`
auth:
  reserved_username: %s
  bootstrap_password: %q
audit:
  enabled: true
web:
  enabled: true
`, testAdminUser, testAdminPassword))
	p, srv := newTestPlatform(t, cfg, WithAuditLogger(logger))

	admin := newClient(t)
	anon := newClient(t)

	t.Run("probes", func(t *testing.T) {
		code, body, _ := do(t, anon, http.MethodGet, srv.URL+"/healthz", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `{"status":"ok"}`, body)

		code, _, _ = do(t, anon, http.MethodGet, srv.URL+"/readyz", nil)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("probes create no session", func(t *testing.T) {
		_, _, hdr := do(t, http.DefaultClient, http.MethodGet, srv.URL+"/healthz", nil)
		assert.Empty(t, hdr.Values("Set-Cookie"))
	})

	t.Run("anonymous admin call denied", func(t *testing.T) {
		code, body, _ := do(t, anon, http.MethodGet, srv.URL+"/api/admin/properties", nil)
		assert.Equal(t, http.StatusForbidden, code)
		assert.JSONEq(t, `{"message":"Admin access required","error":"ADMIN_ACCESS_DENIED"}`, body)
	})

	t.Run("bootstrap admin logs in", func(t *testing.T) {
		code, body, _ := do(t, admin, http.MethodPost, srv.URL+"/api/traditional-login",
			map[string]string{"username": testAdminUser, "password": testAdminPassword})
		require.Equal(t, http.StatusOK, code, body)

		code, body, _ = do(t, admin, http.MethodGet, srv.URL+"/api/auth/check-admin", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `{"isAdmin":true}`, body)

		code, _, _ = do(t, admin, http.MethodGet, srv.URL+"/api/admin/properties", nil)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("page guards", func(t *testing.T) {
		code, _, hdr := do(t, anon, http.MethodGet, srv.URL+"/admin", nil)
		assert.Equal(t, http.StatusFound, code)
		assert.Equal(t, "/login", hdr.Get("Location"))

		code, body, _ := do(t, admin, http.MethodGet, srv.URL+"/admin", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, `<div id="root">`)
	})

	t.Run("unknown api route", func(t *testing.T) {
		code, body, _ := do(t, anon, http.MethodGet, srv.URL+"/api/nope", nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.JSONEq(t, `{"message":"Not found"}`, body)
	})

	t.Run("api docs", func(t *testing.T) {
		code, _, _ := do(t, anon, http.MethodGet, srv.URL+"/api/docs/doc.json", nil)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("decisions are audited", func(t *testing.T) {
		n, err := logger.Count(context.Background(), audit.QueryFilter{})
		require.NoError(t, err)
		assert.Positive(t, n)

		code, body, _ := do(t, admin, http.MethodGet, srv.URL+"/api/admin/audit/stats", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, `"denied"`)
	})

	t.Run("metrics", func(t *testing.T) {
		code, body, _ := do(t, anon, http.MethodGet, srv.URL+"/metrics", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "realty_http_requests_total")
		assert.Contains(t, body, "realty_auth_decisions_total")
	})

	t.Run("stop drains", func(t *testing.T) {
		require.NoError(t, p.Stop(context.Background()))
		code, _, _ := do(t, anon, http.MethodGet, srv.URL+"/readyz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
}

func TestPlatform_BootstrapKeepsExistingAdmin(t *testing.T) {
	cfg := testConfig(t, fmt.Sprintf("auth:\n  reserved_username: %s\n  bootstrap_password: first", testAdminUser))
	p, _ := newTestPlatform(t, cfg)

	u, err := p.Store().GetUserByUsername(context.Background(), testAdminUser)
	require.NoError(t, err)
	require.NotNil(t, u)

	cfg2 := testConfig(t, fmt.Sprintf("auth:\n  reserved_username: %s\n  bootstrap_password: second", testAdminUser))
	p2, err := New(context.Background(), WithConfig(cfg2), WithStore(p.Store()), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer func() { _ = p2.Close() }()

	again, err := p2.Store().GetUserByUsername(context.Background(), testAdminUser)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, u.PasswordHash, again.PasswordHash)
}

func TestPlatform_WebDisabled(t *testing.T) {
	cfg := testConfig(t, "web:\n  enabled: false")
	_, srv := newTestPlatform(t, cfg)

	code, _, _ := do(t, newClient(t), http.MethodGet, srv.URL+"/admin", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPlatform_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, fmt.Sprintf(`
session:
  store: redis
  redis_addr: %s
  redis_prefix: "test:"
`, mr.Addr()))
	_, srv := newTestPlatform(t, cfg)

	c := newClient(t)
	code, _, _ := do(t, c, http.MethodGet, srv.URL+"/api/properties", nil)
	require.Equal(t, http.StatusOK, code)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "test:"))

	code, _, _ = do(t, c, http.MethodGet, srv.URL+"/readyz", nil)
	assert.Equal(t, http.StatusOK, code)

	mr.Close()
	code, body, _ := do(t, c, http.MethodGet, srv.URL+"/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "redis")
}

func TestPlatform_DatabaseProbe(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cfg := testConfig(t, "session:\n  store: memory")
	_, srv := newTestPlatform(t, cfg, WithDB(db))

	mock.ExpectPing()
	code, _, _ := do(t, newClient(t), http.MethodGet, srv.URL+"/readyz", nil)
	assert.Equal(t, http.StatusOK, code)

	mock.ExpectPing().WillReturnError(fmt.Errorf("connection refused"))
	code, body, _ := do(t, newClient(t), http.MethodGet, srv.URL+"/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "database")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlatform_OIDCDiscoveryFailure(t *testing.T) {
	idp := httptest.NewServer(http.NotFoundHandler())
	defer idp.Close()

	cfg := testConfig(t, fmt.Sprintf(`
oidc:
  enabled: true
  issuer: %s
  client_id: realty
  redirect_url: http://localhost/api/callback
`, idp.URL))
	_, err := New(context.Background(), WithConfig(cfg), WithRegistry(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovering oidc provider")
}

func TestPlatform_OIDCLoginRoute(t *testing.T) {
	var issuer string
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/authorize",
			"token_endpoint":         issuer + "/token",
			"jwks_uri":               issuer + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	}))
	defer idp.Close()
	issuer = idp.URL

	states := oauth.NewMemoryStateStore()
	cfg := testConfig(t, fmt.Sprintf(`
oidc:
  enabled: true
  issuer: %s
  client_id: realty
  redirect_url: http://localhost/api/callback
`, issuer))
	_, srv := newTestPlatform(t, cfg, WithLoginStates(states))

	code, _, hdr := do(t, newClient(t), http.MethodGet, srv.URL+"/api/login?return_to=/client/dashboard", nil)
	assert.Equal(t, http.StatusFound, code)
	assert.True(t, strings.HasPrefix(hdr.Get("Location"), issuer+"/authorize?"))
	assert.Equal(t, 1, states.Len())
}
