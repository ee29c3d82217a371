package domain

import (
	"time"

	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
)

// Membership records that a device belongs to an authenticated group.
// (DeviceID, GroupID) is unique; a device may belong to many groups.
type Membership struct {
	ID            id.MembershipID
	DeviceID      id.DeviceID
	GroupID       id.GroupID
	AddedByUserID id.UserID
	AddedAt       time.Time
}

// GroupDevice is a membership joined with its device row.
type GroupDevice struct {
	Device  Device
	AddedAt time.Time
}

// DeviceGroup is a membership joined with its group and the caller's role.
type DeviceGroup struct {
	GroupID id.GroupID
	Name    string
	Role    GroupRole
	AddedAt time.Time
}

// MemberDeviceCount is how many of a member's devices are in a group.
type MemberDeviceCount struct {
	UserID      id.UserID
	Role        GroupRole
	DeviceCount int
}
