// Package auth decides whether a request's caller is authenticated and,
// separately, whether the caller holds administrative privilege.
//
// Several login mechanisms coexist in production: username/password login,
// OIDC federation, a shared admin bearer secret and server-issued admin
// tokens. The Resolver folds them into one decision by evaluating an ordered
// list of named signals and stopping at the first that passes.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/txn2/realty-platform/pkg/session"
)

// Kind names the question a Decision answers.
type Kind string

// Decision kinds.
const (
	KindAdmin         Kind = "admin"
	KindAuthenticated Kind = "authenticated"
)

// SignalDevelopmentBypass is reported as the deciding signal when the
// development bypass short-circuits evaluation.
const SignalDevelopmentBypass = "development_bypass"

// SignalResult records one signal's evaluation.
type SignalResult struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Passed    bool   `json:"passed"`
}

// Decision is the outcome of resolving one request. It is computed per
// request and never cached.
type Decision struct {
	Allowed bool           `json:"allowed"`
	Signal  string         `json:"signal,omitempty"`
	Checks  []SignalResult `json:"checks"`
}

// Observer receives every decision the Resolver makes.
type Observer interface {
	ObserveDecision(r *http.Request, kind Kind, d Decision)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(r *http.Request, kind Kind, d Decision)

// ObserveDecision calls f.
func (f ObserverFunc) ObserveDecision(r *http.Request, kind Kind, d Decision) {
	f(r, kind, d)
}

// DevelopmentBypassAvailable reports whether this binary honors
// Config.DevelopmentMode.
func DevelopmentBypassAvailable() bool {
	return devBypassCompiled
}

// Config configures a Resolver.
type Config struct {
	// ReservedUsername is the administrator username literal. Empty disables
	// the reserved_username signal.
	ReservedUsername string

	// ReservedAdminSubject is the federated subject treated as administrator.
	// Empty disables the federated_admin_subject signal.
	ReservedAdminSubject string

	// AdminSecret builds the expected "Bearer <secret>" header. Empty never matches.
	AdminSecret string

	// Signals lists admin signal names in evaluation order. Empty selects
	// DefaultSignalOrder.
	Signals []string

	// DevelopmentMode makes ResolveAdmin allow every request. It is only
	// honored by binaries built with the devbypass tag.
	DevelopmentMode bool

	// Tokens validates signed admin tokens. Nil disables signed_admin_token.
	Tokens *AdminTokens
}

// Option configures optional Resolver behavior.
type Option func(*Resolver)

// WithObserver registers an observer for every decision.
func WithObserver(o Observer) Option {
	return func(r *Resolver) {
		r.observers = append(r.observers, o)
	}
}

// Resolver evaluates admin and authentication signals for requests.
// It is safe for concurrent use.
type Resolver struct {
	signals   []Signal
	bypass    bool
	observers []Observer
}

// NewResolver builds a Resolver from cfg.
func NewResolver(cfg Config, opts ...Option) (*Resolver, error) {
	if cfg.DevelopmentMode && !devBypassCompiled {
		return nil, fmt.Errorf("development mode requires a binary built with the devbypass tag")
	}

	names := cfg.Signals
	if len(names) == 0 {
		names = DefaultSignalOrder
	}
	signals, err := buildSignals(names, cfg)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		signals: signals,
		bypass:  cfg.DevelopmentMode,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bypass {
		slog.Warn("auth: development bypass enabled, every admin check will pass")
	}
	return r, nil
}

// SignalNames returns the configured admin signal order.
func (r *Resolver) SignalNames() []string {
	names := make([]string, len(r.signals))
	for i, s := range r.signals {
		names[i] = s.Name
	}
	return names
}

// ResolveAdmin decides whether the caller holds administrative privilege.
// Signals are evaluated in order and evaluation stops at the first pass.
// It never errors; absence of any signal yields a denial.
func (r *Resolver) ResolveAdmin(req *http.Request) Decision {
	if r.bypass {
		d := Decision{Allowed: true, Signal: SignalDevelopmentBypass, Checks: []SignalResult{}}
		r.observe(req, KindAdmin, d)
		return d
	}

	in := InputFromRequest(req)
	d := Decision{Checks: make([]SignalResult, 0, len(r.signals))}
	for _, s := range r.signals {
		available, passed := s.Check(in)
		d.Checks = append(d.Checks, SignalResult{Name: s.Name, Available: available, Passed: passed})
		if passed {
			d.Allowed = true
			d.Signal = s.Name
			break
		}
	}
	r.observe(req, KindAdmin, d)
	return d
}

// ResolveAuthenticated decides whether the caller has logged in. The admin
// signals are not consulted.
func (r *Resolver) ResolveAuthenticated(req *http.Request) Decision {
	sess := session.FromContext(req.Context())
	res := SignalResult{
		Name:      SignalSessionAuthenticated,
		Available: sess != nil,
		Passed:    sess != nil && sess.IsAuthenticated,
	}
	d := Decision{Allowed: res.Passed, Checks: []SignalResult{res}}
	if res.Passed {
		d.Signal = res.Name
	}
	r.observe(req, KindAuthenticated, d)
	return d
}

func (r *Resolver) observe(req *http.Request, kind Kind, d Decision) {
	level := slog.LevelDebug
	if !d.Allowed {
		level = slog.LevelInfo
	}
	slog.Log(req.Context(), level, "auth: decision",
		"kind", string(kind),
		"allowed", d.Allowed,
		"signal", d.Signal,
		"checks", d.Checks,
		"path", req.URL.Path,
	)
	for _, o := range r.observers {
		o.ObserveDecision(req, kind, d)
	}
}
