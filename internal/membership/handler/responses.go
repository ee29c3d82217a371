package handler

import (
	"time"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/membership"
)

type MembershipResponse struct {
	ID            string    `json:"id"`
	DeviceID      string    `json:"device_id"`
	GroupID       string    `json:"group_id"`
	AddedByUserID string    `json:"added_by"`
	AddedAt       time.Time `json:"added_at"`
}

type LocationResponse struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

type DeviceResponse struct {
	DeviceID     string            `json:"device_id"`
	DisplayName  string            `json:"display_name"`
	OwnerUserID  *string           `json:"owner_user_id"`
	AddedAt      time.Time         `json:"added_at"`
	LastSeenAt   *time.Time        `json:"last_seen_at"`
	LastLocation *LocationResponse `json:"last_location,omitempty"`
}

type DeviceListResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

type DeviceGroupResponse struct {
	GroupID string    `json:"group_id"`
	Name    string    `json:"name"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

type DeviceGroupListResponse struct {
	Groups []DeviceGroupResponse `json:"groups"`
}

type MemberResponse struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DeviceCount int    `json:"device_count"`
}

type MemberListResponse struct {
	Members []MemberResponse `json:"members"`
}

func toMembershipResponse(m *domain.Membership) MembershipResponse {
	return MembershipResponse{
		ID:            m.ID.String(),
		DeviceID:      m.DeviceID.String(),
		GroupID:       m.GroupID.String(),
		AddedByUserID: m.AddedByUserID.String(),
		AddedAt:       m.AddedAt,
	}
}

func toDeviceListResponse(p *membership.DevicePage) DeviceListResponse {
	resp := DeviceListResponse{
		Devices: make([]DeviceResponse, 0, len(p.Devices)),
		Total:   p.Total,
		Limit:   p.Limit,
		Offset:  p.Offset,
	}
	for _, d := range p.Devices {
		item := DeviceResponse{
			DeviceID:    d.DeviceID.String(),
			DisplayName: d.DisplayName,
			AddedAt:     d.AddedAt,
			LastSeenAt:  d.LastSeenAt,
		}
		if d.OwnerUserID != nil {
			owner := d.OwnerUserID.String()
			item.OwnerUserID = &owner
		}
		if d.LastLocation != nil {
			item.LastLocation = &LocationResponse{
				Latitude:   d.LastLocation.Latitude,
				Longitude:  d.LastLocation.Longitude,
				Accuracy:   d.LastLocation.Accuracy,
				CapturedAt: d.LastLocation.CapturedAt,
			}
		}
		resp.Devices = append(resp.Devices, item)
	}
	return resp
}
