// Package sqlstore provides PostgreSQL and MySQL/TiDB storage for sessions.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/realty-platform/pkg/database"
	"github.com/txn2/realty-platform/pkg/session"
)

var selectColumns = []string{
	"id", "is_authenticated", "is_admin", "data", "created_at", "last_active_at", "expires_at",
}

// payload is the JSON document kept in the data column.
type payload struct {
	User     *session.UserSnapshot `json:"user,omitempty"`
	Identity *session.Identity     `json:"identity,omitempty"`
}

// Store implements session.Store over database/sql.
type Store struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	ttl    time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures the SQL session store.
type Config struct {
	Dialect database.Dialect
	TTL     time.Duration
}

// New creates a new SQL session store.
func New(db *sql.DB, cfg Config) *Store {
	return &Store{
		db:  db,
		sb:  cfg.Dialect.Builder(),
		ttl: cfg.TTL,
	}
}

func encodePayload(sess *session.Session) string {
	b, err := json.Marshal(payload{User: sess.User, Identity: sess.Identity})
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Create persists a new session.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	_, err := s.sb.Insert("sessions").
		Columns("id", "user_id", "is_authenticated", "is_admin", "data", "created_at", "last_active_at", "expires_at").
		Values(sess.ID, sess.UserID(), sess.IsAuthenticated, sess.IsAdmin, encodePayload(sess),
			sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found or expired.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.sb.Select(selectColumns...).
		From("sessions").
		Where(sq.Eq{"id": id}).
		Where(sq.Gt{"expires_at": time.Now().UTC()}).
		RunWith(s.db).
		QueryRowContext(ctx)

	var sess session.Session
	var data string
	err := row.Scan(&sess.ID, &sess.IsAuthenticated, &sess.IsAdmin, &data,
		&sess.CreatedAt, &sess.LastActiveAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	var p payload
	if data != "" {
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			slog.Warn("session: discarding unreadable payload", "session_id", id, "error", err)
		}
	}
	sess.User = p.User
	sess.Identity = p.Identity
	return &sess, nil
}

// Save replaces a stored session's state and extends its expiry.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	now := time.Now().UTC()
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(s.ttl)

	_, err := s.sb.Update("sessions").
		SetMap(map[string]any{
			"user_id":          sess.UserID(),
			"is_authenticated": sess.IsAuthenticated,
			"is_admin":         sess.IsAdmin,
			"data":             encodePayload(sess),
			"last_active_at":   sess.LastActiveAt,
			"expires_at":       sess.ExpiresAt,
		}).
		Where(sq.Eq{"id": sess.ID}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Touch updates LastActiveAt and extends ExpiresAt by the store's TTL.
func (s *Store) Touch(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.sb.Update("sessions").
		Set("last_active_at", now).
		Set("expires_at", now.Add(s.ttl)).
		Where(sq.Eq{"id": id}).
		Where(sq.Gt{"expires_at": now}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.sb.Delete("sessions").Where(sq.Eq{"id": id}).RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Cleanup removes expired sessions.
func (s *Store) Cleanup(ctx context.Context) error {
	_, err := s.sb.Delete("sessions").
		Where(sq.LtOrEq{"expires_at": time.Now().UTC()}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up sessions: %w", err)
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired sessions. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Cleanup(ctx); err != nil {
					slog.Warn("session cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
