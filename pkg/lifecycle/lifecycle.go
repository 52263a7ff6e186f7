// Package lifecycle watches client-side navigation and scrubs cached admin
// state once the user leaves the admin section. It is UX hygiene only; the
// server enforces authorization on every call regardless.
package lifecycle

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Local storage keys.
const (
	KeyWasInAdmin    = "was_in_admin"
	KeyAdminUsername = "admin_username"
	KeyAdminPassword = "admin_password"
	KeyAdminToken    = "admin_token"
)

// SignedOutMessage is the notification shown after leaving the admin section.
const SignedOutMessage = "Signed out"

const adminSection = "/admin"

// Storage is the client's persistent key/value store.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(keys ...string) error
}

// Event describes what a navigation triggered.
type Event int

// Navigation events.
const (
	None Event = iota
	EnteredAdmin
	LeftAdmin
)

// Config configures a Tracker.
type Config struct {
	Storage Storage
	// Logout ends the server session.
	Logout func(ctx context.Context) error
	// Notify presents a one-time message to the user.
	Notify func(msg string)
}

type transition struct {
	from, to string
}

// Tracker observes route changes. It remembers the current transition so a
// repeated observation of the same navigation never signs out twice.
type Tracker struct {
	cfg Config

	mu      sync.Mutex
	prev    string
	current string
	started bool
	fired   *transition
}

// NewTracker creates a Tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// InAdminSection reports whether path is /admin or below it.
func InAdminSection(path string) bool {
	return path == adminSection || strings.HasPrefix(path, adminSection+"/")
}

// Navigate records that the route is now path and applies the admin exit
// and entry rules.
func (t *Tracker) Navigate(ctx context.Context, path string) (Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || path != t.current {
		t.prev, t.current, t.started = t.current, path, true
	}
	tr := transition{from: t.prev, to: t.current}

	if InAdminSection(path) {
		t.fired = nil
		if err := t.cfg.Storage.Set(KeyWasInAdmin, "true"); err != nil {
			return None, err //nolint:wrapcheck // storage errors are already descriptive
		}
		return EnteredAdmin, nil
	}

	was, _ := t.cfg.Storage.Get(KeyWasInAdmin)
	if was != "true" {
		return None, nil
	}
	if t.fired != nil && *t.fired == tr {
		return None, nil
	}
	t.fired = &tr

	if err := t.cfg.Storage.Remove(KeyAdminUsername, KeyAdminPassword, KeyAdminToken, KeyWasInAdmin); err != nil {
		return None, err //nolint:wrapcheck // storage errors are already descriptive
	}
	if t.cfg.Logout != nil {
		if err := t.cfg.Logout(ctx); err != nil {
			slog.Warn("lifecycle: logout after leaving admin failed", "error", err)
		}
	}
	if t.cfg.Notify != nil {
		t.cfg.Notify(SignedOutMessage)
	}
	slog.Debug("lifecycle: left admin section", "from", tr.from, "to", tr.to)
	return LeftAdmin, nil
}

// MapStorage is an in-memory Storage.
type MapStorage struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMapStorage creates an empty MapStorage.
func NewMapStorage() *MapStorage {
	return &MapStorage{m: make(map[string]string)}
}

// Get returns the value for key.
func (s *MapStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores value under key.
func (s *MapStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

// Remove deletes keys.
func (s *MapStorage) Remove(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

// Verify interface compliance.
var _ Storage = (*MapStorage)(nil)
