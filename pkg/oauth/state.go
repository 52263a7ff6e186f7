package oauth

import (
	"errors"
	"sync"
	"time"
)

// ErrStateNotFound is returned when a login state is unknown, already used,
// or expired.
var ErrStateNotFound = errors.New("login state not found")

// LoginState links an identity provider callback to the browser session that
// started the login.
type LoginState struct {
	// SessionID is the session that requested the login. The callback must
	// arrive on the same session.
	SessionID string

	// Nonce is echoed in the ID token and checked on callback.
	Nonce string

	// CodeVerifier is the PKCE verifier sent with the code exchange.
	CodeVerifier string

	// ReturnTo is the local path to send the browser after login.
	ReturnTo string

	// CreatedAt is when this state was created.
	CreatedAt time.Time
}

// StateStore manages login states for the OIDC flow.
type StateStore interface {
	// Save stores a login state under key.
	Save(key string, state *LoginState) error

	// Consume returns and removes the state stored under key. A state can be
	// consumed once.
	Consume(key string) (*LoginState, error)

	// Cleanup removes states older than maxAge.
	Cleanup(maxAge time.Duration) error
}

// MemoryStateStore is an in-memory implementation of StateStore.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]*LoginState
}

// NewMemoryStateStore creates a new in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]*LoginState),
	}
}

// Save stores a login state.
func (s *MemoryStateStore) Save(key string, state *LoginState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[key] = state
	return nil
}

// Consume returns and removes a login state.
func (s *MemoryStateStore) Consume(key string) (*LoginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[key]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(s.states, key)
	return state, nil
}

// Cleanup removes states older than maxAge.
func (s *MemoryStateStore) Cleanup(maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for key, state := range s.states {
		if state.CreatedAt.Before(cutoff) {
			delete(s.states, key)
		}
	}
	return nil
}

// Len returns the number of pending states.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Verify MemoryStateStore implements StateStore.
var _ StateStore = (*MemoryStateStore)(nil)
