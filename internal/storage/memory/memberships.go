package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

// MembershipStore keeps device-group memberships in memory.
type MembershipStore struct {
	b *Backend
}

func checkMembership(st *state, m domain.Membership, pending map[membershipKey]struct{}) error {
	if _, ok := st.devices[m.DeviceID]; !ok {
		return fmt.Errorf("device %s: %w", m.DeviceID, sentinel.ErrNotFound)
	}
	if _, ok := st.groups[m.GroupID]; !ok {
		return fmt.Errorf("group %s: %w", m.GroupID, sentinel.ErrNotFound)
	}
	key := membershipKey{device: m.DeviceID, group: m.GroupID}
	if _, exists := st.memberships[key]; exists {
		return fmt.Errorf("device %s in group %s: %w", m.DeviceID, m.GroupID, sentinel.ErrAlreadyUsed)
	}
	if _, dup := pending[key]; dup {
		return fmt.Errorf("device %s in group %s: %w", m.DeviceID, m.GroupID, sentinel.ErrAlreadyUsed)
	}
	return nil
}

func (s *MembershipStore) Add(ctx context.Context, membership *domain.Membership) error {
	if membership == nil {
		return fmt.Errorf("add membership: nil membership")
	}
	return s.b.write(ctx, func(st *state) error {
		if err := checkMembership(st, *membership, nil); err != nil {
			return err
		}
		st.memberships[membershipKey{device: membership.DeviceID, group: membership.GroupID}] = *membership
		return nil
	})
}

// AddBatch inserts all memberships or none of them.
func (s *MembershipStore) AddBatch(ctx context.Context, memberships []domain.Membership) error {
	return s.b.write(ctx, func(st *state) error {
		pending := make(map[membershipKey]struct{}, len(memberships))
		for _, m := range memberships {
			if err := checkMembership(st, m, pending); err != nil {
				return err
			}
			pending[membershipKey{device: m.DeviceID, group: m.GroupID}] = struct{}{}
		}
		for _, m := range memberships {
			st.memberships[membershipKey{device: m.DeviceID, group: m.GroupID}] = m
		}
		return nil
	})
}

func (s *MembershipStore) Remove(ctx context.Context, deviceID id.DeviceID, groupID id.GroupID) error {
	return s.b.write(ctx, func(st *state) error {
		key := membershipKey{device: deviceID, group: groupID}
		if _, ok := st.memberships[key]; !ok {
			return fmt.Errorf("device %s in group %s: %w", deviceID, groupID, sentinel.ErrNotFound)
		}
		delete(st.memberships, key)
		return nil
	})
}

func (s *MembershipStore) Exists(ctx context.Context, deviceID id.DeviceID, groupID id.GroupID) (bool, error) {
	var exists bool
	err := s.b.read(ctx, func(st *state) error {
		_, exists = st.memberships[membershipKey{device: deviceID, group: groupID}]
		return nil
	})
	return exists, err
}

// ListGroupDevices pages through a group's devices ordered by when they were
// added. The second return value is the total before paging.
func (s *MembershipStore) ListGroupDevices(ctx context.Context, groupID id.GroupID, limit, offset int) ([]domain.GroupDevice, int, error) {
	var all []domain.GroupDevice
	err := s.b.read(ctx, func(st *state) error {
		for k, m := range st.memberships {
			if k.group != groupID {
				continue
			}
			d, ok := st.devices[k.device]
			if !ok {
				continue
			}
			all = append(all, domain.GroupDevice{Device: copyDevice(d), AddedAt: m.AddedAt})
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].AddedAt.Equal(all[j].AddedAt) {
			return all[i].AddedAt.Before(all[j].AddedAt)
		}
		return all[i].Device.ID.String() < all[j].Device.ID.String()
	})
	total := len(all)
	if offset >= total {
		return []domain.GroupDevice{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (s *MembershipStore) ListDeviceGroups(ctx context.Context, deviceID id.DeviceID, viewer id.UserID) ([]domain.DeviceGroup, error) {
	var out []domain.DeviceGroup
	err := s.b.read(ctx, func(st *state) error {
		for k, m := range st.memberships {
			if k.device != deviceID {
				continue
			}
			g, ok := st.groups[k.group]
			if !ok {
				continue
			}
			dg := domain.DeviceGroup{GroupID: g.ID, Name: g.Name, AddedAt: m.AddedAt}
			if member, ok := st.members[g.ID][viewer]; ok {
				dg.Role = member.Role
			}
			out = append(out, dg)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].GroupID.String() < out[j].GroupID.String()
	})
	return out, err
}

// CountDevicesByOwner counts a group's devices per owning user. Devices
// without an owner are not counted.
func (s *MembershipStore) CountDevicesByOwner(ctx context.Context, groupID id.GroupID) (map[id.UserID]int, error) {
	counts := make(map[id.UserID]int)
	err := s.b.read(ctx, func(st *state) error {
		for k := range st.memberships {
			if k.group != groupID {
				continue
			}
			d, ok := st.devices[k.device]
			if !ok || d.OwnerUserID == nil {
				continue
			}
			counts[*d.OwnerUserID]++
		}
		return nil
	})
	return counts, err
}
