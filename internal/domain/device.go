package domain

import (
	"time"

	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
)

// Device is owned by the device directory; this service only references it.
// RegistrationGroupID is the legacy anonymous group string. It is superseded
// by memberships after migration but never cleared.
type Device struct {
	ID                  id.DeviceID
	DisplayName         string
	OwnerUserID         *id.UserID
	RegistrationGroupID *id.RegistrationGroupID
	LastSeenAt          *time.Time
	CreatedAt           time.Time
}

// OwnedBy reports whether userID owns the device. Anonymous devices have no owner.
func (d Device) OwnedBy(userID id.UserID) bool {
	return d.OwnerUserID != nil && *d.OwnerUserID == userID
}

// Location is a single location fix reported by a device.
type Location struct {
	DeviceID   id.DeviceID
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	CapturedAt time.Time
}
