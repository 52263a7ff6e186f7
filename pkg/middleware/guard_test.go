package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/session"
)

// stubResolver returns fixed decisions.
type stubResolver struct {
	admin, authenticated bool
}

func (s stubResolver) ResolveAdmin(*http.Request) auth.Decision {
	return auth.Decision{Allowed: s.admin, Signal: signalIf(s.admin, auth.SignalSessionAdmin)}
}

func (s stubResolver) ResolveAuthenticated(*http.Request) auth.Decision {
	return auth.Decision{Allowed: s.authenticated, Signal: signalIf(s.authenticated, auth.SignalSessionAuthenticated)}
}

func signalIf(ok bool, name string) string {
	if ok {
		return name
	}
	return ""
}

// countingHandler records each invocation.
type countingHandler struct {
	calls int
	w     http.ResponseWriter
	r     *http.Request
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	h.w = w
	h.r = r
	w.WriteHeader(http.StatusNoContent)
}

func TestRequireAdmin_Denied(t *testing.T) {
	next := &countingHandler{}
	h := RequireAdmin(stubResolver{})(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/admin/properties/1", http.NoBody))

	assert.Equal(t, 0, next.calls, "wrapped handler must not run")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, `{"message":"Admin access required","error":"ADMIN_ACCESS_DENIED"}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestRequireAdmin_Allowed(t *testing.T) {
	next := &countingHandler{}
	h := RequireAdmin(stubResolver{admin: true})(next)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/messages", http.NoBody)
	h.ServeHTTP(w, req)

	require.Equal(t, 1, next.calls, "wrapped handler runs exactly once")
	assert.Same(t, w, next.w, "original writer is passed through")
	assert.Equal(t, req.URL, next.r.URL)
	assert.Equal(t, http.StatusNoContent, w.Code)

	d, ok := auth.DecisionFromContext(next.r.Context())
	require.True(t, ok)
	assert.Equal(t, auth.SignalSessionAdmin, d.Signal)
}

func TestRequireAuth(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		next := &countingHandler{}
		w := httptest.NewRecorder()
		RequireAuth(stubResolver{admin: true})(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

		assert.Equal(t, 0, next.calls)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, `{"message":"Unauthorized"}`, w.Body.String())
	})

	t.Run("allowed", func(t *testing.T) {
		next := &countingHandler{}
		w := httptest.NewRecorder()
		RequireAuth(stubResolver{authenticated: true})(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		assert.Equal(t, 1, next.calls)
	})
}

func roleRequest(role string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/agent/properties", http.NoBody)
	sess := &session.Session{IsAuthenticated: true, User: &session.UserSnapshot{ID: "u1", Role: role}}
	return req.WithContext(session.WithSession(req.Context(), sess))
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		resolver stubResolver
		role     string
		roles    []string
		want     int
	}{
		{name: "not logged in", resolver: stubResolver{}, role: "agent", roles: []string{"agent"}, want: http.StatusUnauthorized},
		{name: "matching role", resolver: stubResolver{authenticated: true}, role: "agent", roles: []string{"agent"}, want: http.StatusNoContent},
		{name: "wrong role", resolver: stubResolver{authenticated: true}, role: "client", roles: []string{"agent"}, want: http.StatusForbidden},
		{name: "admin admitted when listed", resolver: stubResolver{authenticated: true, admin: true}, role: "client", roles: []string{"agent", "admin"}, want: http.StatusNoContent},
		{name: "admin not listed", resolver: stubResolver{authenticated: true, admin: true}, role: "client", roles: []string{"agent"}, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &countingHandler{}
			w := httptest.NewRecorder()
			RequireRole(tt.resolver, tt.roles...)(next).ServeHTTP(w, roleRequest(tt.role))
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.JSONEq(t, `{"message":"Forbidden","error":"ROLE_ACCESS_DENIED"}`, w.Body.String())
				assert.Equal(t, 0, next.calls)
			}
		})
	}
}

func TestRequireAdmin_WithRealResolver(t *testing.T) {
	res, err := auth.NewResolver(auth.Config{})
	require.NoError(t, err)

	next := &countingHandler{}
	h := RequireAdmin(res)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", http.NoBody)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(session.WithSession(req.Context(), &session.Session{IsAdmin: true})))
	assert.Equal(t, 1, next.calls)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(session.WithSession(req.Context(), &session.Session{})))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, next.calls)
}
