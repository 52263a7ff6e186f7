package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/realty-platform/pkg/realty"
)

func TestProperties(t *testing.T) {
	ctx := context.Background()
	s := New()

	loft := &realty.Property{Title: "Loft", City: "Portland", Type: "apartment", Featured: true, Images: []string{"a.jpg"}}
	house := &realty.Property{Title: "House", City: "Seattle", Type: "house", AgentID: "agent-1", Status: realty.StatusSold}
	require.NoError(t, s.CreateProperty(ctx, loft))
	require.NoError(t, s.CreateProperty(ctx, house))
	require.NotEmpty(t, loft.ID)
	assert.False(t, loft.CreatedAt.IsZero())

	all, err := s.ListProperties(ctx, realty.PropertyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	yes := true
	tests := []struct {
		name   string
		filter realty.PropertyFilter
		want   string
	}{
		{"city case-insensitive", realty.PropertyFilter{City: "portland"}, "Loft"},
		{"type", realty.PropertyFilter{Type: "HOUSE"}, "House"},
		{"status", realty.PropertyFilter{Status: realty.StatusSold}, "House"},
		{"agent", realty.PropertyFilter{AgentID: "agent-1"}, "House"},
		{"featured", realty.PropertyFilter{Featured: &yes}, "Loft"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListProperties(ctx, tt.filter)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Title)
		})
	}

	paged, err := s.ListProperties(ctx, realty.PropertyFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
	paged, err = s.ListProperties(ctx, realty.PropertyFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, paged)

	// Returned images are copies.
	got, err := s.GetProperty(ctx, loft.ID)
	require.NoError(t, err)
	got.Images[0] = "changed.jpg"
	again, err := s.GetProperty(ctx, loft.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", again.Images[0])

	loft.Title = "Renovated loft"
	require.NoError(t, s.UpdateProperty(ctx, loft))
	again, err = s.GetProperty(ctx, loft.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renovated loft", again.Title)
	assert.Equal(t, got.CreatedAt, again.CreatedAt)

	assert.ErrorIs(t, s.UpdateProperty(ctx, &realty.Property{ID: "missing"}), realty.ErrNotFound)
	require.NoError(t, s.DeleteProperty(ctx, loft.ID))
	_, err = s.GetProperty(ctx, loft.ID)
	assert.ErrorIs(t, err, realty.ErrNotFound)
	assert.ErrorIs(t, s.DeleteProperty(ctx, loft.ID), realty.ErrNotFound)
}

func TestAgents(t *testing.T) {
	ctx := context.Background()
	s := New()

	zed := &realty.Agent{Name: "Zed", UserID: "user-z"}
	amy := &realty.Agent{Name: "Amy"}
	require.NoError(t, s.CreateAgent(ctx, zed))
	require.NoError(t, s.CreateAgent(ctx, amy))
	require.NoError(t, s.CreateProperty(ctx, &realty.Property{Title: "p1", AgentID: zed.ID}))
	require.NoError(t, s.CreateProperty(ctx, &realty.Property{Title: "p2", AgentID: zed.ID}))

	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "Amy", agents[0].Name)
	assert.Equal(t, 2, agents[1].Listings)

	got, err := s.GetAgentByUserID(ctx, "user-z")
	require.NoError(t, err)
	assert.Equal(t, zed.ID, got.ID)
	assert.Equal(t, 2, got.Listings)

	_, err = s.GetAgentByUserID(ctx, "")
	assert.ErrorIs(t, err, realty.ErrNotFound)

	amy.Title = "Broker"
	require.NoError(t, s.UpdateAgent(ctx, amy))
	got, err = s.GetAgent(ctx, amy.ID)
	require.NoError(t, err)
	assert.Equal(t, "Broker", got.Title)

	assert.ErrorIs(t, s.UpdateAgent(ctx, &realty.Agent{ID: "missing"}), realty.ErrNotFound)
	require.NoError(t, s.DeleteAgent(ctx, amy.ID))
	_, err = s.GetAgent(ctx, amy.ID)
	assert.ErrorIs(t, err, realty.ErrNotFound)
	assert.ErrorIs(t, s.DeleteAgent(ctx, amy.ID), realty.ErrNotFound)
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := New()

	m1 := &realty.Message{Name: "Dana", AgentID: "a1", SenderID: "u1"}
	m2 := &realty.Message{Name: "Lee", AgentID: "a2"}
	require.NoError(t, s.CreateMessage(ctx, m1))
	require.NoError(t, s.CreateMessage(ctx, m2))

	got, err := s.ListMessages(ctx, realty.MessageFilter{AgentID: "a1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dana", got[0].Name)

	got, err = s.ListMessages(ctx, realty.MessageFilter{SenderID: "u1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.MarkMessageRead(ctx, m1.ID, true))
	got, err = s.ListMessages(ctx, realty.MessageFilter{Unread: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Lee", got[0].Name)

	assert.ErrorIs(t, s.MarkMessageRead(ctx, "missing", true), realty.ErrNotFound)
	require.NoError(t, s.DeleteMessage(ctx, m2.ID))
	assert.ErrorIs(t, s.DeleteMessage(ctx, m2.ID), realty.ErrNotFound)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &realty.User{Username: "dana", Email: "Dana@Example.com", Role: realty.RoleClient}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NotEmpty(t, u.ID)

	assert.ErrorIs(t, s.CreateUser(ctx, &realty.User{Username: "dana"}), realty.ErrConflict)
	require.NoError(t, s.CreateUser(ctx, &realty.User{Username: "ann"}))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ann", users[0].Username)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "dana", got.Username)

	got, err = s.GetUserByUsername(ctx, "dana")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.GetUserByEmail(ctx, "dana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, realty.ErrNotFound)
	_, err = s.GetUserByUsername(ctx, "missing")
	assert.ErrorIs(t, err, realty.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, realty.ErrNotFound)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.CreateProperty(ctx, &realty.Property{Title: "p"})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.ListProperties(ctx, realty.PropertyFilter{})
		}()
	}
	wg.Wait()

	all, err := s.ListProperties(ctx, realty.PropertyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestIdentities(t *testing.T) {
	ctx := context.Background()
	s := New()
	const issuer = "https://idp.example.com"

	ada := &realty.User{Username: "ada", Role: realty.RoleClient}
	bob := &realty.User{Username: "bob", Role: realty.RoleClient}
	require.NoError(t, s.CreateUser(ctx, ada))
	require.NoError(t, s.CreateUser(ctx, bob))

	_, err := s.GetUserByIdentity(ctx, issuer, "sub-ada")
	assert.ErrorIs(t, err, realty.ErrNotFound)

	require.NoError(t, s.LinkIdentity(ctx, ada.ID, issuer, "sub-ada"))
	require.NoError(t, s.LinkIdentity(ctx, ada.ID, issuer, "sub-ada"), "relinking the same pair is a no-op")

	got, err := s.GetUserByIdentity(ctx, issuer, "sub-ada")
	require.NoError(t, err)
	assert.Equal(t, ada.ID, got.ID)

	assert.ErrorIs(t, s.LinkIdentity(ctx, bob.ID, issuer, "sub-ada"), realty.ErrConflict, "identity owned by another user")
	assert.ErrorIs(t, s.LinkIdentity(ctx, ada.ID, issuer, "sub-other"), realty.ErrConflict, "second subject at the same issuer")
	assert.NoError(t, s.LinkIdentity(ctx, ada.ID, "https://other.example.com", "sub-other"))
	assert.ErrorIs(t, s.LinkIdentity(ctx, "missing", issuer, "sub-x"), realty.ErrNotFound)
}
