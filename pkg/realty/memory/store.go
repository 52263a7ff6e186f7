// Package memory provides an in-memory realty.Store for development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/realty-platform/pkg/realty"
)

// Store implements realty.Store using maps guarded by a single RWMutex.
type Store struct {
	mu         sync.RWMutex
	properties map[string]realty.Property
	agents     map[string]realty.Agent
	messages   map[string]realty.Message
	users      map[string]realty.User
	identities map[identityKey]string // user ID by (issuer, subject)
}

type identityKey struct {
	issuer  string
	subject string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		properties: make(map[string]realty.Property),
		agents:     make(map[string]realty.Agent),
		messages:   make(map[string]realty.Message),
		users:      make(map[string]realty.User),
		identities: make(map[identityKey]string),
	}
}

// ListProperties returns properties matching the filter, newest first.
func (s *Store) ListProperties(_ context.Context, f realty.PropertyFilter) ([]realty.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]realty.Property, 0, len(s.properties))
	for _, p := range s.properties {
		if !matchProperty(p, f) {
			continue
		}
		p.Images = slices.Clone(p.Images)
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return page(result, f.Offset, f.Limit), nil
}

func matchProperty(p realty.Property, f realty.PropertyFilter) bool {
	if f.Type != "" && !strings.EqualFold(p.Type, f.Type) {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.City != "" && !strings.EqualFold(p.City, f.City) {
		return false
	}
	if f.AgentID != "" && p.AgentID != f.AgentID {
		return false
	}
	if f.Featured != nil && p.Featured != *f.Featured {
		return false
	}
	return true
}

// GetProperty returns a property by ID.
func (s *Store) GetProperty(_ context.Context, id string) (*realty.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.properties[id]
	if !ok {
		return nil, realty.ErrNotFound
	}
	p.Images = slices.Clone(p.Images)
	return &p, nil
}

// CreateProperty stores a new property, assigning ID and timestamps.
func (s *Store) CreateProperty(_ context.Context, p *realty.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.properties[p.ID] = *p
	return nil
}

// UpdateProperty replaces an existing property.
func (s *Store) UpdateProperty(_ context.Context, p *realty.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.properties[p.ID]
	if !ok {
		return realty.ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.properties[p.ID] = *p
	return nil
}

// DeleteProperty removes a property.
func (s *Store) DeleteProperty(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.properties[id]; !ok {
		return realty.ErrNotFound
	}
	delete(s.properties, id)
	return nil
}

// ListAgents returns all agents ordered by name, with listing counts.
func (s *Store) ListAgents(_ context.Context) ([]realty.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]realty.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		a.Listings = s.countListings(a.ID)
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) countListings(agentID string) int {
	n := 0
	for _, p := range s.properties {
		if p.AgentID == agentID {
			n++
		}
	}
	return n
}

// GetAgent returns an agent by ID.
func (s *Store) GetAgent(_ context.Context, id string) (*realty.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, realty.ErrNotFound
	}
	a.Listings = s.countListings(a.ID)
	return &a, nil
}

// GetAgentByUserID returns the agent profile linked to a user account.
func (s *Store) GetAgentByUserID(_ context.Context, userID string) (*realty.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.agents {
		if a.UserID != "" && a.UserID == userID {
			a.Listings = s.countListings(a.ID)
			return &a, nil
		}
	}
	return nil, realty.ErrNotFound
}

// CreateAgent stores a new agent.
func (s *Store) CreateAgent(_ context.Context, a *realty.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	s.agents[a.ID] = *a
	return nil
}

// UpdateAgent replaces an existing agent.
func (s *Store) UpdateAgent(_ context.Context, a *realty.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.agents[a.ID]
	if !ok {
		return realty.ErrNotFound
	}
	a.CreatedAt = existing.CreatedAt
	s.agents[a.ID] = *a
	return nil
}

// DeleteAgent removes an agent.
func (s *Store) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[id]; !ok {
		return realty.ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

// ListMessages returns messages matching the filter, newest first.
func (s *Store) ListMessages(_ context.Context, f realty.MessageFilter) ([]realty.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]realty.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if f.AgentID != "" && m.AgentID != f.AgentID {
			continue
		}
		if f.SenderID != "" && m.SenderID != f.SenderID {
			continue
		}
		if f.Unread && m.Read {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return page(result, f.Offset, f.Limit), nil
}

// CreateMessage stores a new inquiry.
func (s *Store) CreateMessage(_ context.Context, m *realty.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	s.messages[m.ID] = *m
	return nil
}

// MarkMessageRead sets the read flag on a message.
func (s *Store) MarkMessageRead(_ context.Context, id string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return realty.ErrNotFound
	}
	m.Read = read
	s.messages[id] = m
	return nil
}

// DeleteMessage removes a message.
func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return realty.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(_ context.Context) ([]realty.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]realty.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(_ context.Context, id string) (*realty.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, realty.ErrNotFound
	}
	return &u, nil
}

// GetUserByUsername returns a user by username.
func (s *Store) GetUserByUsername(_ context.Context, username string) (*realty.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, realty.ErrNotFound
}

// GetUserByEmail returns a user by email, case-insensitively.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*realty.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, realty.ErrNotFound
}

// CreateUser stores a new user. Usernames are unique.
func (s *Store) CreateUser(_ context.Context, u *realty.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return realty.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	s.users[u.ID] = *u
	return nil
}

// GetUserByIdentity returns the user linked to subject at issuer.
func (s *Store) GetUserByIdentity(_ context.Context, issuer, subject string) (*realty.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[identityKey{issuer, subject}]
	if !ok {
		return nil, realty.ErrNotFound
	}
	u, ok := s.users[id]
	if !ok {
		return nil, realty.ErrNotFound
	}
	return &u, nil
}

// LinkIdentity links subject at issuer to userID. Each identity has one
// user and each user has at most one subject per issuer.
func (s *Store) LinkIdentity(_ context.Context, userID, issuer, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return realty.ErrNotFound
	}
	if owner, ok := s.identities[identityKey{issuer, subject}]; ok {
		if owner == userID {
			return nil
		}
		return realty.ErrConflict
	}
	for k, owner := range s.identities {
		if owner == userID && k.issuer == issuer {
			return realty.ErrConflict
		}
	}
	s.identities[identityKey{issuer, subject}] = userID
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Verify interface compliance.
var _ realty.Store = (*Store)(nil)
