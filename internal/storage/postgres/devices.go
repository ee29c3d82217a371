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

// DeviceStore reads and maintains the devices table.
type DeviceStore struct {
	db *sql.DB
}

const deviceColumns = `d.id, d.display_name, d.owner_user_id, d.registration_group_id, d.last_seen_at, d.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner, extra ...any) (domain.Device, error) {
	var (
		deviceID uuid.UUID
		owner    uuid.NullUUID
		rg       sql.NullString
		lastSeen sql.NullTime
		d        domain.Device
	)
	dest := append([]any{&deviceID, &d.DisplayName, &owner, &rg, &lastSeen, &d.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Device{}, err
	}
	d.ID = id.DeviceID(deviceID)
	if owner.Valid {
		u := id.UserID(owner.UUID)
		d.OwnerUserID = &u
	}
	if rg.Valid {
		r := id.RegistrationGroupID(rg.String)
		d.RegistrationGroupID = &r
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeenAt = &t
	}
	return d, nil
}

func nullOwner(owner *id.UserID) uuid.NullUUID {
	if owner == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*owner), Valid: true}
}

func nullRegistrationGroup(rg *id.RegistrationGroupID) sql.NullString {
	if rg == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: rg.String(), Valid: true}
}

func (s *DeviceStore) Save(ctx context.Context, device *domain.Device) error {
	if device == nil {
		return fmt.Errorf("device is required")
	}
	q := txcontext.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO devices (id, display_name, owner_user_id, registration_group_id, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			owner_user_id = EXCLUDED.owner_user_id,
			registration_group_id = EXCLUDED.registration_group_id,
			last_seen_at = EXCLUDED.last_seen_at
	`, uuid.UUID(device.ID), device.DisplayName, nullOwner(device.OwnerUserID),
		nullRegistrationGroup(device.RegistrationGroupID), nullTime(device.LastSeenAt), device.CreatedAt)
	if err != nil {
		return fmt.Errorf("save device: %w", classify(err))
	}
	return nil
}

func (s *DeviceStore) FindByID(ctx context.Context, deviceID id.DeviceID) (*domain.Device, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	row := q.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices d WHERE d.id = $1`, uuid.UUID(deviceID))
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device %s: %w", deviceID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find device: %w", classify(err))
	}
	return &d, nil
}

func (s *DeviceStore) listDevices(ctx context.Context, op, where string, arg any) ([]domain.Device, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices d WHERE `+where+` ORDER BY d.created_at, d.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer rows.Close()

	var out []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return out, nil
}

func (s *DeviceStore) ListByRegistrationGroup(ctx context.Context, rg id.RegistrationGroupID) ([]domain.Device, error) {
	return s.listDevices(ctx, "list devices by registration group", `d.registration_group_id = $1`, rg.String())
}

func (s *DeviceStore) ListByOwner(ctx context.Context, userID id.UserID) ([]domain.Device, error) {
	return s.listDevices(ctx, "list devices by owner", `d.owner_user_id = $1`, uuid.UUID(userID))
}

func (s *DeviceStore) CountByRegistrationGroup(ctx context.Context, rg id.RegistrationGroupID) (int, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE registration_group_id = $1`, rg.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count devices: %w", classify(err))
	}
	return n, nil
}

// Delete relies on ON DELETE CASCADE for memberships and locations.
func (s *DeviceStore) Delete(ctx context.Context, deviceID id.DeviceID) error {
	q := txcontext.QuerierFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, uuid.UUID(deviceID))
	if err != nil {
		return fmt.Errorf("delete device: %w", classify(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("device %s: %w", deviceID, sentinel.ErrNotFound)
	}
	return nil
}
