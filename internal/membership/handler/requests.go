package handler

import (
	"strings"

	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
)

// AddDeviceRequest is the body of POST /groups/{groupId}/devices.
type AddDeviceRequest struct {
	DeviceID string `json:"device_id"`

	deviceID id.DeviceID
}

func (r *AddDeviceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	raw := strings.TrimSpace(r.DeviceID)
	if raw == "" {
		return dErrors.New(dErrors.CodeValidation, "device_id is required")
	}
	deviceID, err := id.ParseDeviceID(raw)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "device_id must be a UUID")
	}
	r.deviceID = deviceID
	return nil
}
