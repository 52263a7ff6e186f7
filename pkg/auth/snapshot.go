package auth

import (
	"github.com/txn2/realty-platform/pkg/realty"
	"github.com/txn2/realty-platform/pkg/session"
)

// SnapshotUser copies the session-relevant fields of a persisted user.
// Users with the admin role always carry IsAdmin.
func SnapshotUser(u *realty.User) *session.UserSnapshot {
	return &session.UserSnapshot{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     string(u.Role),
		IsAdmin:  u.IsAdmin || u.Role == realty.RoleAdmin,
	}
}
