package handler

import (
	"strings"

	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
)

// MigrateRequest is the body of POST /groups/migrate.
type MigrateRequest struct {
	RegistrationGroupID string  `json:"registration_group_id"`
	GroupName           *string `json:"group_name,omitempty"`
}

// Validate trims input and checks the registration group id and optional name.
func (r *MigrateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	r.RegistrationGroupID = strings.TrimSpace(r.RegistrationGroupID)
	if r.RegistrationGroupID == "" {
		return dErrors.New(dErrors.CodeValidation, "registration_group_id is required")
	}
	if _, err := id.ParseRegistrationGroupID(r.RegistrationGroupID); err != nil {
		return err
	}
	if r.GroupName != nil {
		name := strings.TrimSpace(*r.GroupName)
		if name == "" {
			return dErrors.New(dErrors.CodeValidation, "group_name must not be blank")
		}
		if _, err := id.NormalizeGroupName(name); err != nil {
			return err
		}
		r.GroupName = &name
	}
	return nil
}

func (r *MigrateRequest) name() string {
	if r.GroupName == nil {
		return ""
	}
	return *r.GroupName
}
