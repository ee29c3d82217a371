package memory

import (
	"context"
	"fmt"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

// LocationStore keeps per-device location history in memory.
type LocationStore struct {
	b *Backend
}

func (s *LocationStore) Append(ctx context.Context, loc domain.Location) error {
	return s.b.write(ctx, func(st *state) error {
		if _, ok := st.devices[loc.DeviceID]; !ok {
			return fmt.Errorf("device %s: %w", loc.DeviceID, sentinel.ErrNotFound)
		}
		st.locations[loc.DeviceID] = append(st.locations[loc.DeviceID], loc)
		return nil
	})
}

// LatestForDevices returns the most recent fix per device. Devices with no
// history are absent from the result.
func (s *LocationStore) LatestForDevices(ctx context.Context, deviceIDs []id.DeviceID) (map[id.DeviceID]domain.Location, error) {
	out := make(map[id.DeviceID]domain.Location, len(deviceIDs))
	err := s.b.read(ctx, func(st *state) error {
		for _, deviceID := range deviceIDs {
			history := st.locations[deviceID]
			if len(history) == 0 {
				continue
			}
			latest := history[0]
			for _, loc := range history[1:] {
				if loc.CapturedAt.After(latest.CapturedAt) {
					latest = loc
				}
			}
			out[deviceID] = latest
		}
		return nil
	})
	return out, err
}

func (s *LocationStore) CountForDevice(ctx context.Context, deviceID id.DeviceID) (int, error) {
	var n int
	err := s.b.read(ctx, func(st *state) error {
		n = len(st.locations[deviceID])
		return nil
	})
	return n, err
}
