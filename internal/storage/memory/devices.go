package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

// DeviceStore is the in-memory device directory.
type DeviceStore struct {
	b *Backend
}

func copyDevice(d domain.Device) domain.Device {
	if d.OwnerUserID != nil {
		owner := *d.OwnerUserID
		d.OwnerUserID = &owner
	}
	if d.RegistrationGroupID != nil {
		rg := *d.RegistrationGroupID
		d.RegistrationGroupID = &rg
	}
	if d.LastSeenAt != nil {
		seen := *d.LastSeenAt
		d.LastSeenAt = &seen
	}
	return d
}

func (s *DeviceStore) Save(ctx context.Context, device *domain.Device) error {
	if device == nil {
		return fmt.Errorf("save device: nil device")
	}
	return s.b.write(ctx, func(st *state) error {
		st.devices[device.ID] = copyDevice(*device)
		return nil
	})
}

func (s *DeviceStore) FindByID(ctx context.Context, deviceID id.DeviceID) (*domain.Device, error) {
	var found *domain.Device
	err := s.b.read(ctx, func(st *state) error {
		d, ok := st.devices[deviceID]
		if !ok {
			return fmt.Errorf("device %s: %w", deviceID, sentinel.ErrNotFound)
		}
		c := copyDevice(d)
		found = &c
		return nil
	})
	return found, err
}

func (s *DeviceStore) ListByRegistrationGroup(ctx context.Context, rg id.RegistrationGroupID) ([]domain.Device, error) {
	var out []domain.Device
	err := s.b.read(ctx, func(st *state) error {
		for _, d := range st.devices {
			if d.RegistrationGroupID != nil && *d.RegistrationGroupID == rg {
				out = append(out, copyDevice(d))
			}
		}
		return nil
	})
	sortDevices(out)
	return out, err
}

func (s *DeviceStore) ListByOwner(ctx context.Context, userID id.UserID) ([]domain.Device, error) {
	var out []domain.Device
	err := s.b.read(ctx, func(st *state) error {
		for _, d := range st.devices {
			if d.OwnedBy(userID) {
				out = append(out, copyDevice(d))
			}
		}
		return nil
	})
	sortDevices(out)
	return out, err
}

func (s *DeviceStore) CountByRegistrationGroup(ctx context.Context, rg id.RegistrationGroupID) (int, error) {
	var n int
	err := s.b.read(ctx, func(st *state) error {
		for _, d := range st.devices {
			if d.RegistrationGroupID != nil && *d.RegistrationGroupID == rg {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *DeviceStore) Delete(ctx context.Context, deviceID id.DeviceID) error {
	return s.b.write(ctx, func(st *state) error {
		if _, ok := st.devices[deviceID]; !ok {
			return fmt.Errorf("device %s: %w", deviceID, sentinel.ErrNotFound)
		}
		delete(st.devices, deviceID)
		delete(st.locations, deviceID)
		for k := range st.memberships {
			if k.device == deviceID {
				delete(st.memberships, k)
			}
		}
		return nil
	})
}

// sortDevices orders by creation time, then id, to match the SQL backend.
func sortDevices(devices []domain.Device) {
	sort.Slice(devices, func(i, j int) bool {
		if !devices[i].CreatedAt.Equal(devices[j].CreatedAt) {
			return devices[i].CreatedAt.Before(devices[j].CreatedAt)
		}
		return devices[i].ID.String() < devices[j].ID.String()
	})
}
