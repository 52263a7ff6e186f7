package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/txn2/realty-platform/pkg/realty"
)

func TestSnapshotUser(t *testing.T) {
	u := &realty.User{ID: "u1", Username: "root", FullName: "Root", Email: "root@example.com", Role: realty.RoleAdmin}
	snap := SnapshotUser(u)
	assert.Equal(t, "u1", snap.ID)
	assert.Equal(t, "admin", snap.Role)
	assert.True(t, snap.IsAdmin)

	snap = SnapshotUser(&realty.User{ID: "u2", Role: realty.RoleAgent})
	assert.False(t, snap.IsAdmin)

	snap = SnapshotUser(&realty.User{ID: "u3", Role: realty.RoleClient, IsAdmin: true})
	assert.True(t, snap.IsAdmin)
}
