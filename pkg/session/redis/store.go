// Package redis provides Redis storage for sessions, suited to deployments
// that run several replicas behind a load balancer.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/realty-platform/pkg/session"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "realty:session:"

// Config configures the Redis session store.
type Config struct {
	TTL    time.Duration
	Prefix string
}

// Store implements session.Store using Redis key expiry for TTLs.
type Store struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New creates a Redis session store. The client is not closed by Close
// since it may be shared with other components.
func New(client goredis.UniversalClient, cfg Config) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: cfg.TTL}
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) put(ctx context.Context, sess *session.Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, sess.ID)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Create persists a new session.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	return s.put(ctx, sess)
}

// Get retrieves a session by ID. Returns nil, nil if not found or expired.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for expired
	}
	return &sess, nil
}

// Save replaces a stored session's state and extends its expiry.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	now := time.Now()
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	return s.put(ctx, sess)
}

// Touch updates LastActiveAt and extends ExpiresAt by the store's TTL.
func (s *Store) Touch(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return err
	}
	return s.Save(ctx, sess)
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Cleanup is a no-op; Redis expires keys on its own.
func (*Store) Cleanup(context.Context) error {
	return nil
}

// Close is a no-op; the caller owns the client.
func (*Store) Close() error {
	return nil
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
