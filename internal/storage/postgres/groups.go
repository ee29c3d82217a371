package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
	txcontext "github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/tx"
)

// GroupStore persists authenticated groups and group_members.
type GroupStore struct {
	db *sql.DB
}

// CreateIfNameAvailable relies on the unique index on lower(name); a
// concurrent insert of the same name loses with sentinel.ErrAlreadyUsed.
func (s *GroupStore) CreateIfNameAvailable(ctx context.Context, group *domain.Group) error {
	if group == nil {
		return fmt.Errorf("group is required")
	}
	q := txcontext.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO groups (id, name, owner_user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(group.ID), group.Name, uuid.UUID(group.OwnerUserID), group.CreatedAt)
	if err != nil {
		return fmt.Errorf("create group: %w", classify(err))
	}
	return nil
}

func (s *GroupStore) findOne(ctx context.Context, where string, arg any) (*domain.Group, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	var (
		groupID, owner uuid.UUID
		g              domain.Group
	)
	err := q.QueryRowContext(ctx, `SELECT id, name, owner_user_id, created_at FROM groups WHERE `+where, arg).
		Scan(&groupID, &g.Name, &owner, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find group: %w", classify(err))
	}
	g.ID = id.GroupID(groupID)
	g.OwnerUserID = id.UserID(owner)
	return &g, nil
}

func (s *GroupStore) FindByID(ctx context.Context, groupID id.GroupID) (*domain.Group, error) {
	return s.findOne(ctx, `id = $1`, uuid.UUID(groupID))
}

func (s *GroupStore) FindByName(ctx context.Context, name string) (*domain.Group, error) {
	return s.findOne(ctx, `lower(name) = lower($1)`, name)
}

// Delete relies on ON DELETE CASCADE for memberships and group_members.
func (s *GroupStore) Delete(ctx context.Context, groupID id.GroupID) error {
	q := txcontext.QuerierFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, uuid.UUID(groupID))
	if err != nil {
		return fmt.Errorf("delete group: %w", classify(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("group %s: %w", groupID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *GroupStore) AddMember(ctx context.Context, member domain.GroupMember) error {
	q := txcontext.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(member.GroupID), uuid.UUID(member.UserID), string(member.Role), member.JoinedAt)
	if err != nil {
		return fmt.Errorf("add group member: %w", classify(err))
	}
	return nil
}

func (s *GroupStore) FindMemberRole(ctx context.Context, groupID id.GroupID, userID id.UserID) (domain.GroupRole, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	var role string
	err := q.QueryRowContext(ctx, `SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2`,
		uuid.UUID(groupID), uuid.UUID(userID)).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("member %s of group %s: %w", userID, groupID, sentinel.ErrNotFound)
		}
		return "", fmt.Errorf("find member role: %w", classify(err))
	}
	return domain.GroupRole(role), nil
}

func (s *GroupStore) ListMembers(ctx context.Context, groupID id.GroupID) ([]domain.GroupMember, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, role, joined_at FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at, user_id
	`, uuid.UUID(groupID))
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.GroupMember
	for rows.Next() {
		var (
			userID uuid.UUID
			role   string
			m      = domain.GroupMember{GroupID: groupID}
		)
		if err := rows.Scan(&userID, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("list group members: scan: %w", err)
		}
		m.UserID = id.UserID(userID)
		m.Role = domain.GroupRole(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list group members: %w", classify(err))
	}
	return out, nil
}
