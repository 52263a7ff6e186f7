package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/realty-platform/pkg/database"
	"github.com/txn2/realty-platform/pkg/realty"
)

const testPropertyID = "prop-1"

func newMockStore(t *testing.T, dialect database.Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, dialect), mock
}

func propertyRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(propertyColumns).AddRow(
		testPropertyID, "Harbor loft", "Two floors", int64(450000), "1 Pier St", "Portland",
		"condo", realty.StatusAvailable, 2, 1, 90, true, "agent-1", `["a.jpg","b.jpg"]`, now, now,
	)
}

func TestListProperties_Filtered(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	now := time.Now().UTC()
	featured := true

	mock.ExpectQuery(`SELECT .+ FROM properties WHERE LOWER\(city\) = LOWER\(\$1\) AND featured = \$2 ORDER BY created_at DESC LIMIT 10`).
		WithArgs("portland", true).
		WillReturnRows(propertyRow(now))

	got, err := store.ListProperties(context.Background(), realty.PropertyFilter{
		City: "portland", Featured: &featured, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testPropertyID, got[0].ID)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, got[0].Images)
	assert.Equal(t, "agent-1", got[0].AgentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProperties_MySQLPlaceholders(t *testing.T) {
	store, mock := newMockStore(t, database.TiDB)

	mock.ExpectQuery(`SELECT .+ FROM properties WHERE status = \? ORDER BY created_at DESC`).
		WithArgs(realty.StatusSold).
		WillReturnRows(sqlmock.NewRows(propertyColumns))

	got, err := store.ListProperties(context.Background(), realty.PropertyFilter{Status: realty.StatusSold})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProperties_QueryError(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	mock.ExpectQuery("SELECT .+ FROM properties").WillReturnError(errors.New("connection refused"))

	_, err := store.ListProperties(context.Background(), realty.PropertyFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying properties")
}

func TestGetProperty(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t, database.Postgres)
		mock.ExpectQuery(`SELECT .+ FROM properties WHERE id = \$1`).
			WithArgs(testPropertyID).
			WillReturnRows(propertyRow(time.Now()))

		p, err := store.GetProperty(context.Background(), testPropertyID)
		require.NoError(t, err)
		assert.Equal(t, "Harbor loft", p.Title)
		assert.True(t, p.Featured)
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockStore(t, database.Postgres)
		mock.ExpectQuery(`SELECT .+ FROM properties WHERE id = \$1`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(propertyColumns))

		_, err := store.GetProperty(context.Background(), "missing")
		assert.ErrorIs(t, err, realty.ErrNotFound)
	})
}

func TestCreateProperty(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	p := &realty.Property{Title: "Cottage", Status: realty.StatusAvailable}

	mock.ExpectExec("INSERT INTO properties").
		WithArgs(sqlmock.AnyArg(), "Cottage", "", int64(0), "", "", "", realty.StatusAvailable,
			0, 0, 0, false, sql.NullString{}, "[]", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CreateProperty(context.Background(), p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProperty_NotFound(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	mock.ExpectExec("UPDATE properties SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateProperty(context.Background(), &realty.Property{ID: "missing", Title: "x"})
	assert.ErrorIs(t, err, realty.ErrNotFound)
}

func TestDeleteProperty(t *testing.T) {
	store, mock := newMockStore(t, database.MySQL)
	mock.ExpectExec(`DELETE FROM properties WHERE id = \?`).
		WithArgs(testPropertyID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.DeleteProperty(context.Background(), testPropertyID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAgents(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	cols := []string{"id", "user_id", "name", "title", "email", "phone", "bio", "photo_url", "created_at", "listings"}
	mock.ExpectQuery(`SELECT .+ FROM agents a ORDER BY a.name`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("agent-1", nil, "Ada", "Broker", "ada@example.com", "555", "", "", time.Now(), 3))

	agents, err := store.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, 3, agents[0].Listings)
	assert.Empty(t, agents[0].UserID)
}

func TestGetAgentByUserID_NotFound(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	mock.ExpectQuery(`SELECT .+ FROM agents a WHERE a.user_id = \$1`).
		WithArgs("user-9").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetAgentByUserID(context.Background(), "user-9")
	assert.ErrorIs(t, err, realty.ErrNotFound)
}

func TestListMessages_Unread(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	mock.ExpectQuery(`SELECT .+ FROM messages WHERE agent_id = \$1 AND is_read = \$2 ORDER BY created_at DESC`).
		WithArgs("agent-1", false).
		WillReturnRows(sqlmock.NewRows(messageColumns).AddRow(
			"msg-1", "Bo", "bo@example.com", "", "Viewing", "Is it still available?",
			testPropertyID, "agent-1", nil, false, time.Now(),
		))

	msgs, err := store.ListMessages(context.Background(), realty.MessageFilter{AgentID: "agent-1", Unread: true})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, testPropertyID, msgs[0].PropertyID)
	assert.Empty(t, msgs[0].SenderID)
}

func TestMarkMessageRead(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	mock.ExpectExec(`UPDATE messages SET is_read = \$1 WHERE id = \$2`).
		WithArgs(true, "msg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkMessageRead(context.Background(), "msg-1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_Conflict(t *testing.T) {
	store, mock := newMockStore(t, database.MySQL)
	mock.ExpectExec("INSERT INTO users").WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := store.CreateUser(context.Background(), &realty.User{Username: "ada", Role: realty.RoleClient})
	assert.ErrorIs(t, err, realty.ErrConflict)
}

func TestGetUserByEmail(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("Ada@Example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			"user-1", "ada", "Ada L", "ada@example.com", "hash", "agent", false, time.Now(),
		))

	u, err := store.GetUserByEmail(context.Background(), "Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, realty.RoleAgent, u.Role)
	assert.Equal(t, "hash", u.PasswordHash)
}

func TestGetUserByIdentity(t *testing.T) {
	store, mock := newMockStore(t, database.Postgres)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \(SELECT user_id FROM user_identities WHERE issuer = \$1 AND subject = \$2\)`).
		WithArgs("https://idp.example.com", "sub-1").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			"user-1", "ada", "Ada L", "ada@example.com", "", "client", false, time.Now(),
		))

	u, err := store.GetUserByIdentity(context.Background(), "https://idp.example.com", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)

	mock.ExpectQuery(`FROM users WHERE id = \(SELECT user_id FROM user_identities`).
		WillReturnError(sql.ErrNoRows)
	_, err = store.GetUserByIdentity(context.Background(), "https://idp.example.com", "nobody")
	assert.ErrorIs(t, err, realty.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkIdentity(t *testing.T) {
	t.Run("inserted", func(t *testing.T) {
		store, mock := newMockStore(t, database.MySQL)
		mock.ExpectExec(`INSERT INTO user_identities \(issuer,subject,user_id,linked_at\) VALUES \(\?,\?,\?,\?\)`).
			WithArgs("https://idp.example.com", "sub-1", "user-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.LinkIdentity(context.Background(), "user-1", "https://idp.example.com", "sub-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already linked", func(t *testing.T) {
		store, mock := newMockStore(t, database.MySQL)
		mock.ExpectExec("INSERT INTO user_identities").
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		err := store.LinkIdentity(context.Background(), "user-1", "https://idp.example.com", "sub-2")
		assert.ErrorIs(t, err, realty.ErrConflict)
	})

	t.Run("other failure", func(t *testing.T) {
		store, mock := newMockStore(t, database.Postgres)
		mock.ExpectExec("INSERT INTO user_identities").WillReturnError(errors.New("connection reset"))

		err := store.LinkIdentity(context.Background(), "user-1", "https://idp.example.com", "sub-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, realty.ErrConflict)
	})
}
