package domain

import (
	"time"

	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
)

// Group is an authenticated, user-owned group. Name is unique
// case-insensitively across all authenticated groups.
type Group struct {
	ID          id.GroupID
	Name        string
	OwnerUserID id.UserID
	CreatedAt   time.Time
}

// GroupRole is a user's role within an authenticated group.
type GroupRole string

const (
	RoleOwner  GroupRole = "owner"
	RoleAdmin  GroupRole = "admin"
	RoleMember GroupRole = "member"
)

// CanManageDevices reports whether the role may remove other users' devices.
func (r GroupRole) CanManageDevices() bool {
	return r == RoleOwner || r == RoleAdmin
}

func (r GroupRole) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// GroupMember is a user's role assignment in a group.
type GroupMember struct {
	GroupID  id.GroupID
	UserID   id.UserID
	Role     GroupRole
	JoinedAt time.Time
}
