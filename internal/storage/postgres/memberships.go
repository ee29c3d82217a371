package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
	txcontext "github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/tx"
)

// MembershipStore persists device_group_memberships.
type MembershipStore struct {
	db *sql.DB
}

func (s *MembershipStore) Add(ctx context.Context, membership *domain.Membership) error {
	if membership == nil {
		return fmt.Errorf("membership is required")
	}
	q := txcontext.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO device_group_memberships (id, device_id, group_id, added_by_user_id, added_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(membership.ID), uuid.UUID(membership.DeviceID), uuid.UUID(membership.GroupID),
		uuid.UUID(membership.AddedByUserID), membership.AddedAt)
	if err != nil {
		return fmt.Errorf("add membership: %w", classify(err))
	}
	return nil
}

// AddBatch inserts all rows in one statement with unnest.
func (s *MembershipStore) AddBatch(ctx context.Context, memberships []domain.Membership) error {
	if len(memberships) == 0 {
		return nil
	}
	n := len(memberships)
	ids := make([]string, 0, n)
	devices := make([]string, 0, n)
	groups := make([]string, 0, n)
	addedBy := make([]string, 0, n)
	addedAt := make([]time.Time, 0, n)
	for _, m := range memberships {
		ids = append(ids, m.ID.String())
		devices = append(devices, m.DeviceID.String())
		groups = append(groups, m.GroupID.String())
		addedBy = append(addedBy, m.AddedByUserID.String())
		addedAt = append(addedAt, m.AddedAt)
	}
	q := txcontext.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO device_group_memberships (id, device_id, group_id, added_by_user_id, added_at)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::uuid[], $4::uuid[], $5::timestamptz[])
	`, pq.Array(ids), pq.Array(devices), pq.Array(groups), pq.Array(addedBy), pq.Array(formatTimes(addedAt)))
	if err != nil {
		return fmt.Errorf("add memberships: %w", classify(err))
	}
	return nil
}

func formatTimes(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (s *MembershipStore) Remove(ctx context.Context, deviceID id.DeviceID, groupID id.GroupID) error {
	q := txcontext.QuerierFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `DELETE FROM device_group_memberships WHERE device_id = $1 AND group_id = $2`,
		uuid.UUID(deviceID), uuid.UUID(groupID))
	if err != nil {
		return fmt.Errorf("remove membership: %w", classify(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("device %s in group %s: %w", deviceID, groupID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *MembershipStore) Exists(ctx context.Context, deviceID id.DeviceID, groupID id.GroupID) (bool, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM device_group_memberships WHERE device_id = $1 AND group_id = $2)
	`, uuid.UUID(deviceID), uuid.UUID(groupID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", classify(err))
	}
	return exists, nil
}

func (s *MembershipStore) ListGroupDevices(ctx context.Context, groupID id.GroupID, limit, offset int) ([]domain.GroupDevice, int, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM device_group_memberships WHERE group_id = $1`,
		uuid.UUID(groupID)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count group devices: %w", classify(err))
	}

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+deviceColumns+`, m.added_at
		FROM device_group_memberships m
		JOIN devices d ON d.id = m.device_id
		WHERE m.group_id = $1
		ORDER BY m.added_at, d.id
		LIMIT $2 OFFSET $3
	`, uuid.UUID(groupID), limitArg, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list group devices: %w", classify(err))
	}
	defer rows.Close()

	out := []domain.GroupDevice{}
	for rows.Next() {
		var gd domain.GroupDevice
		d, err := scanDevice(rows, &gd.AddedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("list group devices: scan: %w", err)
		}
		gd.Device = d
		out = append(out, gd)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list group devices: %w", classify(err))
	}
	return out, total, nil
}

func (s *MembershipStore) ListDeviceGroups(ctx context.Context, deviceID id.DeviceID, viewer id.UserID) ([]domain.DeviceGroup, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT g.id, g.name, COALESCE(gm.role, ''), m.added_at
		FROM device_group_memberships m
		JOIN groups g ON g.id = m.group_id
		LEFT JOIN group_members gm ON gm.group_id = g.id AND gm.user_id = $2
		WHERE m.device_id = $1
		ORDER BY m.added_at, g.id
	`, uuid.UUID(deviceID), uuid.UUID(viewer))
	if err != nil {
		return nil, fmt.Errorf("list device groups: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.DeviceGroup
	for rows.Next() {
		var (
			groupID uuid.UUID
			role    string
			dg      domain.DeviceGroup
		)
		if err := rows.Scan(&groupID, &dg.Name, &role, &dg.AddedAt); err != nil {
			return nil, fmt.Errorf("list device groups: scan: %w", err)
		}
		dg.GroupID = id.GroupID(groupID)
		dg.Role = domain.GroupRole(role)
		out = append(out, dg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list device groups: %w", classify(err))
	}
	return out, nil
}

func (s *MembershipStore) CountDevicesByOwner(ctx context.Context, groupID id.GroupID) (map[id.UserID]int, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT d.owner_user_id, COUNT(*)
		FROM device_group_memberships m
		JOIN devices d ON d.id = m.device_id
		WHERE m.group_id = $1 AND d.owner_user_id IS NOT NULL
		GROUP BY d.owner_user_id
	`, uuid.UUID(groupID))
	if err != nil {
		return nil, fmt.Errorf("count devices by owner: %w", classify(err))
	}
	defer rows.Close()

	counts := make(map[id.UserID]int)
	for rows.Next() {
		var (
			owner uuid.UUID
			n     int
		)
		if err := rows.Scan(&owner, &n); err != nil {
			return nil, fmt.Errorf("count devices by owner: scan: %w", err)
		}
		counts[id.UserID(owner)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count devices by owner: %w", classify(err))
	}
	return counts, nil
}
