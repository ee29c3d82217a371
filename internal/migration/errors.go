package migration

import (
	"errors"
	"fmt"

	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
)

var (
	ErrNoDevices      = errors.New("registration group has no devices")
	ErrGroupNameTaken = errors.New("group name already taken")
	ErrNotDeviceOwner = errors.New("caller owns no device in the registration group")
)

// AlreadyMigratedError reports that the registration group was migrated
// before. It carries the earlier result so a retrying client can recover it.
type AlreadyMigratedError struct {
	RegistrationGroupID  id.RegistrationGroupID
	AuthenticatedGroupID id.GroupID
	MigrationID          id.MigrationID
	GroupName            string
}

func (e *AlreadyMigratedError) Error() string {
	return fmt.Sprintf("registration group %s already migrated to group %s", e.RegistrationGroupID, e.AuthenticatedGroupID)
}

func (e *AlreadyMigratedError) Unwrap() error {
	return dErrors.New(dErrors.CodeConflict, "registration group has already been migrated")
}

// AsAlreadyMigrated extracts an AlreadyMigratedError from err's chain.
func AsAlreadyMigrated(err error) (*AlreadyMigratedError, bool) {
	var am *AlreadyMigratedError
	if errors.As(err, &am) {
		return am, true
	}
	return nil, false
}
