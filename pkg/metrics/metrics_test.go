package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/realty-platform/pkg/auth"
)

func TestObserveRequest(t *testing.T) {
	m := New(Config{})

	m.ObserveRequest(http.MethodGet, "GET /api/properties", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "GET /api/properties", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "unmatched", "404")), 0)
}

func TestObserveDecision(t *testing.T) {
	m := New(Config{})
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	m.ObserveDecision(req, auth.KindAdmin, auth.Decision{Allowed: true, Signal: auth.SignalSessionAdmin})
	m.ObserveDecision(req, auth.KindAdmin, auth.Decision{})
	m.ObserveDecision(req, auth.KindAdmin, auth.Decision{})

	assert.InDelta(t, 1, testutil.ToFloat64(m.authDecisions.WithLabelValues("admin", auth.SignalSessionAdmin, "true")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.authDecisions.WithLabelValues("admin", "none", "false")), 0)
}

func TestObserveLogin(t *testing.T) {
	m := New(Config{})
	m.ObserveLogin("password", true)
	m.ObserveLogin("password", false)
	m.ObserveLogin("oidc", true)

	assert.InDelta(t, 1, testutil.ToFloat64(m.loginAttempts.WithLabelValues("password", "failure")), 0)
	assert.Equal(t, 3, testutil.CollectAndCount(m.loginAttempts))
}

func TestHandler(t *testing.T) {
	m := New(Config{Namespace: "test"})
	m.ObserveLogin("password", true)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `test_auth_login_attempts_total{method="password",result="success"} 1`))
}
