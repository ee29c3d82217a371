package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	txcontext "github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/tx"
)

// LocationStore reads the locations table owned by the location service.
type LocationStore struct {
	db *sql.DB
}

func (s *LocationStore) Append(ctx context.Context, loc domain.Location) error {
	q := txcontext.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO locations (device_id, latitude, longitude, accuracy, captured_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(loc.DeviceID), loc.Latitude, loc.Longitude, loc.Accuracy, loc.CapturedAt)
	if err != nil {
		return fmt.Errorf("append location: %w", classify(err))
	}
	return nil
}

func (s *LocationStore) LatestForDevices(ctx context.Context, deviceIDs []id.DeviceID) (map[id.DeviceID]domain.Location, error) {
	out := make(map[id.DeviceID]domain.Location, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(deviceIDs))
	for i, d := range deviceIDs {
		keys[i] = d.String()
	}
	q := txcontext.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT ON (device_id) device_id, latitude, longitude, accuracy, captured_at
		FROM locations
		WHERE device_id = ANY($1::uuid[])
		ORDER BY device_id, captured_at DESC
	`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("latest locations: %w", classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			deviceID uuid.UUID
			loc      domain.Location
		)
		if err := rows.Scan(&deviceID, &loc.Latitude, &loc.Longitude, &loc.Accuracy, &loc.CapturedAt); err != nil {
			return nil, fmt.Errorf("latest locations: scan: %w", err)
		}
		loc.DeviceID = id.DeviceID(deviceID)
		out[loc.DeviceID] = loc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latest locations: %w", classify(err))
	}
	return out, nil
}

func (s *LocationStore) CountForDevice(ctx context.Context, deviceID id.DeviceID) (int, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM locations WHERE device_id = $1`, uuid.UUID(deviceID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count locations: %w", classify(err))
	}
	return n, nil
}
