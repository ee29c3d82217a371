// Package location serves last-known device locations to listings. Reads go
// through an optional cache in front of the location store.
package location

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
)

// Cache holds latest locations keyed by device.
type Cache interface {
	GetMany(ctx context.Context, deviceIDs []id.DeviceID) (map[id.DeviceID]domain.Location, error)
	SetMany(ctx context.Context, locations map[id.DeviceID]domain.Location) error
	Invalidate(ctx context.Context, deviceID id.DeviceID) error
}

type Service struct {
	store  storage.LocationStore
	cache  Cache
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func New(store storage.LocationStore, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LatestForDevices returns the newest location per device. Devices without
// any location are absent from the map. Cache failures fall back to the
// store.
func (s *Service) LatestForDevices(ctx context.Context, deviceIDs []id.DeviceID) (map[id.DeviceID]domain.Location, error) {
	if len(deviceIDs) == 0 {
		return map[id.DeviceID]domain.Location{}, nil
	}
	if s.cache == nil {
		return s.fromStore(ctx, deviceIDs)
	}

	out, err := s.cache.GetMany(ctx, deviceIDs)
	if err != nil {
		s.logger.WarnContext(ctx, "location cache read failed", "error", err)
		out = make(map[id.DeviceID]domain.Location, len(deviceIDs))
	}
	missing := make([]id.DeviceID, 0, len(deviceIDs))
	for _, d := range deviceIDs {
		if _, ok := out[d]; !ok {
			missing = append(missing, d)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := s.fromStore(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fetched) > 0 {
		if err := s.cache.SetMany(ctx, fetched); err != nil {
			s.logger.WarnContext(ctx, "location cache write failed", "error", err)
		}
	}
	for d, loc := range fetched {
		out[d] = loc
	}
	return out, nil
}

// Record appends a location and drops the device's cached entry.
func (s *Service) Record(ctx context.Context, loc domain.Location) error {
	if err := s.store.Append(ctx, loc); err != nil {
		return fmt.Errorf("append location: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, loc.DeviceID); err != nil {
			s.logger.WarnContext(ctx, "location cache invalidation failed",
				"device_id", loc.DeviceID,
				"error", err,
			)
		}
	}
	return nil
}

func (s *Service) fromStore(ctx context.Context, deviceIDs []id.DeviceID) (map[id.DeviceID]domain.Location, error) {
	out, err := s.store.LatestForDevices(ctx, deviceIDs)
	if err != nil {
		return nil, fmt.Errorf("load latest locations: %w", err)
	}
	return out, nil
}
