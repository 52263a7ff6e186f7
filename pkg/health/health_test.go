package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler, path string) (int, Report) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var r Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&r))
	return w.Code, r
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "starting", Phase(42).String())
}

func TestChecker_Phases(t *testing.T) {
	c := NewChecker()
	assert.Equal(t, Starting, c.Phase())
	assert.False(t, c.IsReady())

	c.SetReady()
	assert.Equal(t, Ready, c.Phase())
	assert.True(t, c.IsReady())

	c.SetDraining()
	assert.Equal(t, Draining, c.Phase())
	assert.False(t, c.IsReady())
}

func TestHandlers_ByPhase(t *testing.T) {
	tests := []struct {
		name      string
		set       func(*Checker)
		readyCode int
		status    string
	}{
		{"starting", func(*Checker) {}, http.StatusServiceUnavailable, "starting"},
		{"ready", (*Checker).SetReady, http.StatusOK, "ready"},
		{"draining", (*Checker).SetDraining, http.StatusServiceUnavailable, "draining"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			tt.set(c)

			code, r := serve(t, c.LivenessHandler(), "/healthz")
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, "ok", r.Status)

			code, r = serve(t, c.ReadinessHandler(), "/readyz")
			assert.Equal(t, tt.readyCode, code)
			assert.Equal(t, tt.status, r.Status)
			assert.Empty(t, r.Checks)
		})
	}
}

func TestReadiness_ProbeFailure(t *testing.T) {
	c := NewChecker()
	c.AddProbe("database", func(context.Context) error { return nil })
	c.AddProbe("redis", func(context.Context) error { return errors.New("connection refused") })
	c.SetReady()

	code, r := serve(t, c.ReadinessHandler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", r.Status)
	assert.Equal(t, map[string]string{"redis": "connection refused"}, r.Checks)
}

func TestReadiness_ProbesSkippedUnlessReady(t *testing.T) {
	var calls atomic.Int32
	c := NewChecker()
	c.AddProbe("database", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	_, ok := c.Readiness(context.Background())
	assert.False(t, ok)
	c.SetDraining()
	_, ok = c.Readiness(context.Background())
	assert.False(t, ok)
	assert.Zero(t, calls.Load())

	c.SetReady()
	r, ok := c.Readiness(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "ready", r.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheck_ReplacesProbeAndTimesOut(t *testing.T) {
	c := NewChecker()
	c.timeout = 10 * time.Millisecond
	c.AddProbe("slow", func(context.Context) error { return nil })
	c.AddProbe("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	failures := c.Check(context.Background())
	assert.Equal(t, context.DeadlineExceeded.Error(), failures["slow"])
}

func TestChecker_Concurrent(t *testing.T) {
	c := NewChecker()
	c.AddProbe("noop", func(context.Context) error { return nil })

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			if i%2 == 0 {
				c.SetReady()
			} else {
				c.SetDraining()
			}
			_, _ = c.Readiness(context.Background())
			c.AddProbe("noop", func(context.Context) error { return nil })
		})
	}
	wg.Wait()
	assert.Contains(t, []Phase{Ready, Draining}, c.Phase())
}
