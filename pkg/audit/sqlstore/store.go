// Package sqlstore provides PostgreSQL and MySQL/TiDB storage for audit logs.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/realty-platform/pkg/audit"
	"github.com/txn2/realty-platform/pkg/auth"
	"github.com/txn2/realty-platform/pkg/database"
)

const (
	table                = "auth_audit_logs"
	defaultRetentionDays = 90
	defaultQueryCapacity = 100
	maxQueryCapacity     = 10000
)

// auditColumns lists columns returned by audit SELECT queries.
var auditColumns = []string{
	"id", "timestamp", "request_id", "session_id", "user_id",
	"method", "path", "kind", "allowed", "decided_by", "checks",
}

// Store implements audit.Logger over database/sql.
type Store struct {
	db            *sql.DB
	sb            sq.StatementBuilderType
	retentionDays int
	cancel        context.CancelFunc
	done          chan struct{}
}

// Config configures the SQL audit store.
type Config struct {
	Dialect       database.Dialect
	RetentionDays int
}

// New creates a new SQL audit store.
func New(db *sql.DB, cfg Config) *Store {
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Store{
		db:            db,
		sb:            cfg.Dialect.Builder(),
		retentionDays: cfg.RetentionDays,
	}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event audit.Event) error {
	checks, err := json.Marshal(event.Checks)
	if err != nil || event.Checks == nil {
		checks = []byte("[]")
	}

	_, err = s.sb.Insert(table).
		Columns("id", "timestamp", "request_id", "session_id", "user_id",
			"method", "path", "kind", "allowed", "decided_by", "checks", "created_date").
		Values(event.ID, event.Timestamp, event.RequestID, event.SessionID, event.UserID,
			event.Method, event.Path, string(event.Kind), event.Allowed, event.DecidedBy,
			string(checks), event.Timestamp.Format(time.DateOnly)).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// applyAuditFilter adds filter conditions to a SELECT builder.
func applyAuditFilter(qb sq.SelectBuilder, filter audit.QueryFilter) sq.SelectBuilder {
	if filter.StartTime != nil {
		qb = qb.Where(sq.GtOrEq{"timestamp": *filter.StartTime})
	}
	if filter.EndTime != nil {
		qb = qb.Where(sq.LtOrEq{"timestamp": *filter.EndTime})
	}
	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.SessionID != "" {
		qb = qb.Where(sq.Eq{"session_id": filter.SessionID})
	}
	if filter.Kind != "" {
		qb = qb.Where(sq.Eq{"kind": string(filter.Kind)})
	}
	if filter.Allowed != nil {
		qb = qb.Where(sq.Eq{"allowed": *filter.Allowed})
	}
	return qb
}

// Query retrieves audit events matching the filter.
func (s *Store) Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	qb := applyAuditFilter(s.sb.Select(auditColumns...).From(table), filter)
	qb = qb.OrderBy("timestamp DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	rows, err := qb.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]audit.Event, 0, queryCapacity(filter.Limit))
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}
	return events, nil
}

func queryCapacity(limit int) int {
	if limit <= 0 {
		return defaultQueryCapacity
	}
	return min(limit, maxQueryCapacity)
}

func scanEvent(rows *sql.Rows) (audit.Event, error) {
	var (
		event  audit.Event
		kind   string
		checks string
	)
	if err := rows.Scan(&event.ID, &event.Timestamp, &event.RequestID, &event.SessionID,
		&event.UserID, &event.Method, &event.Path, &kind, &event.Allowed,
		&event.DecidedBy, &checks); err != nil {
		return event, fmt.Errorf("scanning audit log: %w", err)
	}
	event.Kind = auth.Kind(kind)
	if checks != "" {
		if err := json.Unmarshal([]byte(checks), &event.Checks); err != nil {
			slog.Warn("audit: unreadable checks column", "event_id", event.ID, "error", err)
		}
	}
	if event.Checks == nil {
		event.Checks = []auth.SignalResult{}
	}
	return event, nil
}

// Count returns the number of events matching the filter.
func (s *Store) Count(ctx context.Context, filter audit.QueryFilter) (int, error) {
	qb := applyAuditFilter(s.sb.Select("COUNT(*)").From(table), filter)

	var count int
	if err := qb.RunWith(s.db).QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting audit logs: %w", err)
	}
	return count, nil
}

// Breakdown aggregates events by filter.GroupBy, largest groups first.
func (s *Store) Breakdown(ctx context.Context, filter audit.BreakdownFilter) ([]audit.BreakdownEntry, error) {
	if !audit.ValidBreakdownDimensions[filter.GroupBy] {
		return nil, fmt.Errorf("%w: %q", audit.ErrInvalidDimension, filter.GroupBy)
	}
	col := string(filter.GroupBy)

	qb := s.sb.Select(
		col+" AS dimension",
		"COUNT(*) AS count",
		"SUM(CASE WHEN allowed THEN 1 ELSE 0 END) AS allowed_count",
	).From(table)
	qb = applyAuditFilter(qb, audit.QueryFilter{StartTime: filter.StartTime, EndTime: filter.EndTime})
	qb = qb.GroupBy(col).
		OrderBy("count DESC").
		Limit(uint64(audit.ClampBreakdownLimit(filter.Limit)))

	rows, err := qb.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying audit breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []audit.BreakdownEntry{}
	for rows.Next() {
		var e audit.BreakdownEntry
		if err := rows.Scan(&e.Dimension, &e.Count, &e.Allowed); err != nil {
			return nil, fmt.Errorf("scanning audit breakdown: %w", err)
		}
		if e.Count > 0 {
			e.AllowRate = float64(e.Allowed) / float64(e.Count)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit breakdown: %w", err)
	}
	return entries, nil
}

// Cleanup removes events older than the retention period.
func (s *Store) Cleanup(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	_, err := s.sb.Delete(table).
		Where(sq.Lt{"created_date": cutoff.Format(time.DateOnly)}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up audit logs: %w", err)
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired events. The goroutine is stopped when Close is called.
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
					slog.Warn("audit cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Verify interface compliance.
var _ audit.Logger = (*Store)(nil)
