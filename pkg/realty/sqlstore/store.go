// Package sqlstore implements realty.Store on PostgreSQL, MySQL or TiDB.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/txn2/realty-platform/pkg/database"
	"github.com/txn2/realty-platform/pkg/realty"
)

const (
	defaultListCapacity = 50
	maxListCapacity     = 1000
)

var propertyColumns = []string{
	"id", "title", "description", "price", "address", "city", "type", "status",
	"bedrooms", "bathrooms", "area", "featured", "agent_id", "images",
	"created_at", "updated_at",
}

var agentColumns = []string{
	"a.id", "a.user_id", "a.name", "a.title", "a.email", "a.phone", "a.bio",
	"a.photo_url", "a.created_at",
	"(SELECT COUNT(*) FROM properties p WHERE p.agent_id = a.id) AS listings",
}

var messageColumns = []string{
	"id", "name", "email", "phone", "subject", "body", "property_id",
	"agent_id", "sender_id", "is_read", "created_at",
}

var userColumns = []string{
	"id", "username", "full_name", "email", "password_hash", "role", "is_admin", "created_at",
}

// Store implements realty.Store using database/sql and squirrel.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// New creates a store for the given dialect.
func New(db *sql.DB, dialect database.Dialect) *Store {
	return &Store{db: db, sb: dialect.Builder()}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func capacity(limit int) int {
	if limit > 0 && limit <= maxListCapacity {
		return limit
	}
	return defaultListCapacity
}

func applyPage(qb sq.SelectBuilder, limit, offset int) sq.SelectBuilder {
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	if offset > 0 {
		qb = qb.Offset(uint64(offset))
	}
	return qb
}

// execOne runs a mutation and maps zero affected rows to realty.ErrNotFound.
func (s *Store) execOne(ctx context.Context, b sq.Sqlizer, what string) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building %s query: %w", what, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: reading affected rows: %w", what, err)
	}
	if n == 0 {
		return realty.ErrNotFound
	}
	return nil
}

// --- properties ---

func applyPropertyFilter(qb sq.SelectBuilder, f realty.PropertyFilter) sq.SelectBuilder {
	if f.Type != "" {
		qb = qb.Where(sq.Expr("LOWER(type) = LOWER(?)", f.Type))
	}
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"status": f.Status})
	}
	if f.City != "" {
		qb = qb.Where(sq.Expr("LOWER(city) = LOWER(?)", f.City))
	}
	if f.AgentID != "" {
		qb = qb.Where(sq.Eq{"agent_id": f.AgentID})
	}
	if f.Featured != nil {
		qb = qb.Where(sq.Eq{"featured": *f.Featured})
	}
	return qb
}

// ListProperties returns properties matching the filter, newest first.
func (s *Store) ListProperties(ctx context.Context, f realty.PropertyFilter) ([]realty.Property, error) {
	qb := applyPropertyFilter(s.sb.Select(propertyColumns...).From("properties"), f)
	qb = applyPage(qb.OrderBy("created_at DESC"), f.Limit, f.Offset)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building property query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]realty.Property, 0, capacity(f.Limit))
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating property rows: %w", err)
	}
	return result, nil
}

// GetProperty returns a property by ID.
func (s *Store) GetProperty(ctx context.Context, id string) (*realty.Property, error) {
	query, args, err := s.sb.Select(propertyColumns...).From("properties").
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building property query: %w", err)
	}
	p, err := scanProperty(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, realty.ErrNotFound
	}
	return p, err
}

func scanProperty(row scanner) (*realty.Property, error) {
	var (
		p       realty.Property
		agentID sql.NullString
		images  string
	)
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Price, &p.Address, &p.City, &p.Type,
		&p.Status, &p.Bedrooms, &p.Bathrooms, &p.Area, &p.Featured, &agentID,
		&images, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning property: %w", err)
	}
	p.AgentID = agentID.String
	if images != "" {
		if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
			return nil, fmt.Errorf("decoding property images: %w", err)
		}
	}
	return &p, nil
}

func encodeImages(images []string) string {
	if len(images) == 0 {
		return "[]"
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// CreateProperty inserts a property, assigning ID and timestamps.
func (s *Store) CreateProperty(ctx context.Context, p *realty.Property) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	query, args, err := s.sb.Insert("properties").Columns(propertyColumns...).Values(
		p.ID, p.Title, p.Description, p.Price, p.Address, p.City, p.Type, p.Status,
		p.Bedrooms, p.Bathrooms, p.Area, p.Featured, nullString(p.AgentID),
		encodeImages(p.Images), p.CreatedAt, p.UpdatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("building property insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting property: %w", err)
	}
	return nil
}

// UpdateProperty replaces the mutable fields of a property.
func (s *Store) UpdateProperty(ctx context.Context, p *realty.Property) error {
	p.UpdatedAt = time.Now().UTC()
	return s.execOne(ctx, s.sb.Update("properties").SetMap(map[string]any{
		"title":       p.Title,
		"description": p.Description,
		"price":       p.Price,
		"address":     p.Address,
		"city":        p.City,
		"type":        p.Type,
		"status":      p.Status,
		"bedrooms":    p.Bedrooms,
		"bathrooms":   p.Bathrooms,
		"area":        p.Area,
		"featured":    p.Featured,
		"agent_id":    nullString(p.AgentID),
		"images":      encodeImages(p.Images),
		"updated_at":  p.UpdatedAt,
	}).Where(sq.Eq{"id": p.ID}), "updating property")
}

// DeleteProperty removes a property.
func (s *Store) DeleteProperty(ctx context.Context, id string) error {
	return s.execOne(ctx, s.sb.Delete("properties").Where(sq.Eq{"id": id}), "deleting property")
}

// --- agents ---

// ListAgents returns all agents ordered by name with their listing counts.
func (s *Store) ListAgents(ctx context.Context) ([]realty.Agent, error) {
	query, args, err := s.sb.Select(agentColumns...).From("agents a").OrderBy("a.name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building agent query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]realty.Agent, 0, defaultListCapacity)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return result, nil
}

func (s *Store) getAgentWhere(ctx context.Context, pred sq.Eq) (*realty.Agent, error) {
	query, args, err := s.sb.Select(agentColumns...).From("agents a").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building agent query: %w", err)
	}
	a, err := scanAgent(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, realty.ErrNotFound
	}
	return a, err
}

// GetAgent returns an agent by ID.
func (s *Store) GetAgent(ctx context.Context, id string) (*realty.Agent, error) {
	return s.getAgentWhere(ctx, sq.Eq{"a.id": id})
}

// GetAgentByUserID returns the agent profile linked to a user account.
func (s *Store) GetAgentByUserID(ctx context.Context, userID string) (*realty.Agent, error) {
	return s.getAgentWhere(ctx, sq.Eq{"a.user_id": userID})
}

func scanAgent(row scanner) (*realty.Agent, error) {
	var (
		a      realty.Agent
		userID sql.NullString
	)
	err := row.Scan(&a.ID, &userID, &a.Name, &a.Title, &a.Email, &a.Phone, &a.Bio,
		&a.PhotoURL, &a.CreatedAt, &a.Listings)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning agent: %w", err)
	}
	a.UserID = userID.String
	return &a, nil
}

// CreateAgent inserts an agent.
func (s *Store) CreateAgent(ctx context.Context, a *realty.Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()

	query, args, err := s.sb.Insert("agents").
		Columns("id", "user_id", "name", "title", "email", "phone", "bio", "photo_url", "created_at").
		Values(a.ID, nullString(a.UserID), a.Name, a.Title, a.Email, a.Phone, a.Bio, a.PhotoURL, a.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building agent insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

// UpdateAgent replaces the mutable fields of an agent.
func (s *Store) UpdateAgent(ctx context.Context, a *realty.Agent) error {
	return s.execOne(ctx, s.sb.Update("agents").SetMap(map[string]any{
		"user_id":   nullString(a.UserID),
		"name":      a.Name,
		"title":     a.Title,
		"email":     a.Email,
		"phone":     a.Phone,
		"bio":       a.Bio,
		"photo_url": a.PhotoURL,
	}).Where(sq.Eq{"id": a.ID}), "updating agent")
}

// DeleteAgent removes an agent.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	return s.execOne(ctx, s.sb.Delete("agents").Where(sq.Eq{"id": id}), "deleting agent")
}

// --- messages ---

// ListMessages returns messages matching the filter, newest first.
func (s *Store) ListMessages(ctx context.Context, f realty.MessageFilter) ([]realty.Message, error) {
	qb := s.sb.Select(messageColumns...).From("messages")
	if f.AgentID != "" {
		qb = qb.Where(sq.Eq{"agent_id": f.AgentID})
	}
	if f.SenderID != "" {
		qb = qb.Where(sq.Eq{"sender_id": f.SenderID})
	}
	if f.Unread {
		qb = qb.Where(sq.Eq{"is_read": false})
	}
	qb = applyPage(qb.OrderBy("created_at DESC"), f.Limit, f.Offset)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building message query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]realty.Message, 0, capacity(f.Limit))
	for rows.Next() {
		var (
			m                           realty.Message
			propertyID, agentID, sender sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Subject, &m.Body,
			&propertyID, &agentID, &sender, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.PropertyID, m.AgentID, m.SenderID = propertyID.String, agentID.String, sender.String
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return result, nil
}

// CreateMessage inserts an inquiry.
func (s *Store) CreateMessage(ctx context.Context, m *realty.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()

	query, args, err := s.sb.Insert("messages").Columns(messageColumns...).Values(
		m.ID, m.Name, m.Email, m.Phone, m.Subject, m.Body, nullString(m.PropertyID),
		nullString(m.AgentID), nullString(m.SenderID), m.Read, m.CreatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("building message insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// MarkMessageRead sets the read flag on a message.
func (s *Store) MarkMessageRead(ctx context.Context, id string, read bool) error {
	return s.execOne(ctx, s.sb.Update("messages").Set("is_read", read).Where(sq.Eq{"id": id}),
		"updating message")
}

// DeleteMessage removes a message.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	return s.execOne(ctx, s.sb.Delete("messages").Where(sq.Eq{"id": id}), "deleting message")
}

// --- users ---

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]realty.User, error) {
	query, args, err := s.sb.Select(userColumns...).From("users").OrderBy("username").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]realty.User, 0, defaultListCapacity)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return result, nil
}

func (s *Store) getUserWhere(ctx context.Context, pred sq.Sqlizer) (*realty.User, error) {
	query, args, err := s.sb.Select(userColumns...).From("users").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, realty.ErrNotFound
	}
	return u, err
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*realty.User, error) {
	return s.getUserWhere(ctx, sq.Eq{"id": id})
}

// GetUserByUsername returns a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*realty.User, error) {
	return s.getUserWhere(ctx, sq.Eq{"username": username})
}

// GetUserByEmail returns a user by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*realty.User, error) {
	return s.getUserWhere(ctx, sq.Expr("LOWER(email) = LOWER(?)", email))
}

func scanUser(row scanner) (*realty.User, error) {
	var (
		u    realty.User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.PasswordHash, &role,
		&u.IsAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.Role = realty.Role(role)
	return &u, nil
}

// CreateUser inserts a user. A duplicate username yields realty.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *realty.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()

	query, args, err := s.sb.Insert("users").Columns(userColumns...).Values(
		u.ID, u.Username, u.FullName, u.Email, u.PasswordHash, string(u.Role), u.IsAdmin, u.CreatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("building user insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return realty.ErrConflict
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUserByIdentity returns the user linked to subject at issuer.
func (s *Store) GetUserByIdentity(ctx context.Context, issuer, subject string) (*realty.User, error) {
	return s.getUserWhere(ctx, sq.Expr(
		"id = (SELECT user_id FROM user_identities WHERE issuer = ? AND subject = ?)", issuer, subject))
}

// LinkIdentity records the (issuer, subject) link. The primary key and the
// (user_id, issuer) unique index turn either kind of clash into
// realty.ErrConflict.
func (s *Store) LinkIdentity(ctx context.Context, userID, issuer, subject string) error {
	query, args, err := s.sb.Insert("user_identities").
		Columns("issuer", "subject", "user_id", "linked_at").
		Values(issuer, subject, userID, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building identity insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return realty.ErrConflict
		}
		return fmt.Errorf("linking identity: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ realty.Store = (*Store)(nil)
