package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

// GroupStore keeps authenticated groups and their members in memory.
type GroupStore struct {
	b *Backend
}

func (s *GroupStore) CreateIfNameAvailable(ctx context.Context, group *domain.Group) error {
	if group == nil {
		return fmt.Errorf("create group: nil group")
	}
	return s.b.write(ctx, func(st *state) error {
		if _, taken := st.groupNames[nameKey(group.Name)]; taken {
			return fmt.Errorf("group name %q: %w", group.Name, sentinel.ErrAlreadyUsed)
		}
		if _, exists := st.groups[group.ID]; exists {
			return fmt.Errorf("group %s: %w", group.ID, sentinel.ErrAlreadyUsed)
		}
		st.groups[group.ID] = *group
		st.groupNames[nameKey(group.Name)] = group.ID
		return nil
	})
}

func (s *GroupStore) FindByID(ctx context.Context, groupID id.GroupID) (*domain.Group, error) {
	var found *domain.Group
	err := s.b.read(ctx, func(st *state) error {
		g, ok := st.groups[groupID]
		if !ok {
			return fmt.Errorf("group %s: %w", groupID, sentinel.ErrNotFound)
		}
		found = &g
		return nil
	})
	return found, err
}

func (s *GroupStore) FindByName(ctx context.Context, name string) (*domain.Group, error) {
	var found *domain.Group
	err := s.b.read(ctx, func(st *state) error {
		groupID, ok := st.groupNames[nameKey(name)]
		if !ok {
			return fmt.Errorf("group name %q: %w", name, sentinel.ErrNotFound)
		}
		g := st.groups[groupID]
		found = &g
		return nil
	})
	return found, err
}

func (s *GroupStore) Delete(ctx context.Context, groupID id.GroupID) error {
	return s.b.write(ctx, func(st *state) error {
		g, ok := st.groups[groupID]
		if !ok {
			return fmt.Errorf("group %s: %w", groupID, sentinel.ErrNotFound)
		}
		delete(st.groups, groupID)
		delete(st.groupNames, nameKey(g.Name))
		delete(st.members, groupID)
		for k := range st.memberships {
			if k.group == groupID {
				delete(st.memberships, k)
			}
		}
		return nil
	})
}

func (s *GroupStore) AddMember(ctx context.Context, member domain.GroupMember) error {
	return s.b.write(ctx, func(st *state) error {
		if _, ok := st.groups[member.GroupID]; !ok {
			return fmt.Errorf("group %s: %w", member.GroupID, sentinel.ErrNotFound)
		}
		users, ok := st.members[member.GroupID]
		if !ok {
			users = make(map[id.UserID]domain.GroupMember)
			st.members[member.GroupID] = users
		}
		if _, exists := users[member.UserID]; exists {
			return fmt.Errorf("member %s of group %s: %w", member.UserID, member.GroupID, sentinel.ErrAlreadyUsed)
		}
		users[member.UserID] = member
		return nil
	})
}

func (s *GroupStore) FindMemberRole(ctx context.Context, groupID id.GroupID, userID id.UserID) (domain.GroupRole, error) {
	var role domain.GroupRole
	err := s.b.read(ctx, func(st *state) error {
		m, ok := st.members[groupID][userID]
		if !ok {
			return fmt.Errorf("member %s of group %s: %w", userID, groupID, sentinel.ErrNotFound)
		}
		role = m.Role
		return nil
	})
	return role, err
}

func (s *GroupStore) ListMembers(ctx context.Context, groupID id.GroupID) ([]domain.GroupMember, error) {
	var out []domain.GroupMember
	err := s.b.read(ctx, func(st *state) error {
		for _, m := range st.members[groupID] {
			out = append(out, m)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, err
}
