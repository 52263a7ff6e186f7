// Package session provides server-side session state for the realty platform.
// It defines the Store interface for session persistence, the Session type
// keyed by a signed cookie, and the Manager middleware that attaches the
// caller's session to each request.
package session

import (
	"context"
	"maps"
	"time"
)

// UserSnapshot is a point-in-time copy of a user record embedded in a session.
// It is not refreshed when the underlying user changes.
type UserSnapshot struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsAdmin  bool   `json:"isAdmin"`
}

// Identity is a federated identity assertion attached by the OIDC login flow.
type Identity struct {
	// Provider is the issuer that asserted the identity.
	Provider string `json:"provider"`

	// Subject is the issuer's stable identifier for the user.
	Subject string `json:"subject"`

	// Claims holds the verified ID token claims.
	Claims map[string]any `json:"claims,omitempty"`

	// DBUser is the local user record linked to the identity, if any.
	DBUser *UserSnapshot `json:"dbUser,omitempty"`
}

// Session represents a visitor's server-side state.
type Session struct {
	// ID is the unique session identifier carried in the signed cookie.
	ID string `json:"id"`

	// IsAuthenticated is set by a successful login.
	IsAuthenticated bool `json:"isAuthenticated"`

	// IsAdmin is set by login when the user holds administrative privilege.
	IsAdmin bool `json:"isAdmin"`

	// User is the logged-in user's snapshot.
	User *UserSnapshot `json:"user,omitempty"`

	// Identity is the federated identity, if the user logged in through OIDC.
	Identity *Identity `json:"identity,omitempty"`

	// CreatedAt is when the session was established.
	CreatedAt time.Time `json:"createdAt"`

	// LastActiveAt is the most recent activity timestamp.
	LastActiveAt time.Time `json:"lastActiveAt"`

	// ExpiresAt is when the session expires if not touched.
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserID returns the snapshot user's ID, or empty for anonymous sessions.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// Clone returns a deep copy so readers never observe later mutations.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	if s.Identity != nil {
		id := *s.Identity
		id.Claims = maps.Clone(s.Identity.Claims)
		if s.Identity.DBUser != nil {
			u := *s.Identity.DBUser
			id.DBUser = &u
		}
		c.Identity = &id
	}
	return &c
}

// Reset clears all authentication state, leaving an anonymous session.
func (s *Session) Reset() {
	s.IsAuthenticated = false
	s.IsAdmin = false
	s.User = nil
	s.Identity = nil
}

// Store defines the interface for session persistence.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by ID. Returns nil, nil if not found or expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Save replaces a stored session's state and extends its expiry.
	Save(ctx context.Context, s *Session) error

	// Touch updates LastActiveAt and extends ExpiresAt by the store's TTL.
	Touch(ctx context.Context, id string) error

	// Delete removes a session.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired sessions.
	Cleanup(ctx context.Context) error

	// Close stops background routines and releases resources.
	Close() error
}
