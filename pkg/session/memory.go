package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Every visitor gets a
// session, so the store can be capped: when full, Create first drops expired
// sessions, then evicts the least recently active anonymous session, and
// only then the least recently active signed-in one.
type MemoryStore struct {
	ttl time.Duration
	max int

	mu       sync.RWMutex
	sessions map[string]*Session

	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxSessions caps the number of stored sessions. Zero means unlimited.
func WithMaxSessions(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.max = n
		}
	}
}

// NewMemoryStore creates an in-memory store whose Save and Touch extend
// expiry by ttl.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the stored session for id unless it is missing or expired.
// Callers hold the lock.
func (s *MemoryStore) live(id string, now time.Time) (*Session, bool) {
	sess, ok := s.sessions[id]
	if !ok || now.After(sess.ExpiresAt) {
		return nil, false
	}
	return sess, true
}

// put stores a copy of sess, making room first when the store is full.
// Callers hold the write lock.
func (s *MemoryStore) put(sess *Session, now time.Time) {
	if _, exists := s.sessions[sess.ID]; !exists && s.max > 0 && len(s.sessions) >= s.max {
		s.makeRoom(now)
	}
	s.sessions[sess.ID] = sess.Clone()
}

func (s *MemoryStore) makeRoom(now time.Time) {
	if s.removeExpired(now) > 0 && len(s.sessions) < s.max {
		return
	}
	var victim *Session
	for _, sess := range s.sessions {
		if victim == nil || evictBefore(sess, victim) {
			victim = sess
		}
	}
	if victim != nil {
		delete(s.sessions, victim.ID)
		slog.Debug("session: evicted to stay within capacity",
			"max", s.max, "authenticated", victim.IsAuthenticated)
	}
}

// evictBefore orders anonymous sessions ahead of signed-in ones, then by
// least recent activity.
func evictBefore(a, b *Session) bool {
	if a.IsAuthenticated != b.IsAuthenticated {
		return !a.IsAuthenticated
	}
	return a.LastActiveAt.Before(b.LastActiveAt)
}

func (s *MemoryStore) removeExpired(now time.Time) int {
	n := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Create stores a new session as given.
func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(sess, time.Now())
	return nil
}

// Get returns a copy of the session, or nil, nil when it is missing or expired.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.live(id, time.Now())
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	return sess.Clone(), nil
}

// Save replaces the stored session and extends its expiry.
func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	s.put(sess, now)
	return nil
}

// Touch marks the session active and extends its expiry. Missing or expired
// sessions are left alone.
func (s *MemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if sess, ok := s.live(id, now); ok {
		sess.LastActiveAt = now
		sess.ExpiresAt = now.Add(s.ttl)
	}
	return nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included until
// the next cleanup.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Cleanup removes expired sessions.
func (s *MemoryStore) Cleanup(_ context.Context) error {
	s.mu.Lock()
	n := s.removeExpired(time.Now())
	s.mu.Unlock()

	if n > 0 {
		slog.Debug("session: removed expired sessions", "count", n)
	}
	return nil
}

// StartCleanupRoutine runs Cleanup every interval until Close.
func (s *MemoryStore) StartCleanupRoutine(interval time.Duration) {
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				_ = s.Cleanup(context.Background())
			}
		}
	}()
}

// Close stops the cleanup routine, if running. It may be called more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			<-s.stopped
		}
	})
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
