// Package health serves the /healthz and /readyz endpoints. Liveness always
// answers; readiness follows the process phase and the registered
// dependency probes.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the process lifecycle phase reported by /readyz.
type Phase int32

// Phases in the order a process moves through them.
const (
	Starting Phase = iota
	Ready
	Draining
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "ready"
	case Draining:
		return "draining"
	default:
		return "starting"
	}
}

const (
	statusOK       = "ok"
	statusDegraded = "degraded"

	defaultProbeTimeout = 2 * time.Second
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// Report is the body of a health response.
type Report struct {
	Status string `json:"status"`

	// Checks maps each failing probe to its error.
	Checks map[string]string `json:"checks,omitempty"`
}

// Checker holds the process phase and the dependency probes. It is safe for
// concurrent use.
type Checker struct {
	phase atomic.Int32

	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
}

// NewChecker creates a Checker in the Starting phase.
func NewChecker() *Checker {
	return &Checker{
		probes:  make(map[string]Probe),
		timeout: defaultProbeTimeout,
	}
}

// AddProbe registers a probe under name, replacing any earlier one.
func (c *Checker) AddProbe(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

// Phase returns the current phase.
func (c *Checker) Phase() Phase {
	return Phase(c.phase.Load())
}

// SetReady moves to Ready.
func (c *Checker) SetReady() {
	c.phase.Store(int32(Ready))
}

// SetDraining moves to Draining; readiness fails from here on.
func (c *Checker) SetDraining() {
	c.phase.Store(int32(Draining))
}

// IsReady reports whether the phase is Ready.
func (c *Checker) IsReady() bool {
	return c.Phase() == Ready
}

// Check runs all probes concurrently under a shared timeout and returns the
// failures by name. An empty map means every dependency answered.
func (c *Checker) Check(ctx context.Context) map[string]string {
	c.mu.RLock()
	probes := maps.Clone(c.probes)
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = make(map[string]string)
	)
	for _, name := range slices.Sorted(maps.Keys(probes)) {
		probe := probes[name]
		wg.Go(func() {
			if err := probe(ctx); err != nil {
				mu.Lock()
				failures[name] = err.Error()
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return failures
}

// Readiness evaluates the phase and, when Ready, the probes. Probes are not
// run in any other phase.
func (c *Checker) Readiness(ctx context.Context) (Report, bool) {
	phase := c.Phase()
	if phase != Ready {
		return Report{Status: phase.String()}, false
	}
	if failures := c.Check(ctx); len(failures) > 0 {
		return Report{Status: statusDegraded, Checks: failures}, false
	}
	return Report{Status: phase.String()}, true
}

// LivenessHandler answers 200 in every phase.
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeReport(w, http.StatusOK, Report{Status: statusOK})
	}
}

// ReadinessHandler answers 200 when Readiness passes and 503 otherwise.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, ok := c.Readiness(r.Context())
		if !ok {
			if len(report.Checks) > 0 {
				slog.Warn("health: readiness probe failed", "checks", report.Checks)
			}
			writeReport(w, http.StatusServiceUnavailable, report)
			return
		}
		writeReport(w, http.StatusOK, report)
	}
}

func writeReport(w http.ResponseWriter, code int, v Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
