// Package status answers whether a user's registration group can still be
// migrated. It only reads.
package status

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

// RegistrationGroupStatus describes the caller's registration group.
type RegistrationGroupStatus struct {
	HasRegistrationGroup bool
	RegistrationGroupID  *id.RegistrationGroupID
	DeviceCount          int
	AlreadyMigrated      bool
	MigratedToGroupID    *id.GroupID
}

type Service struct {
	devices    storage.DeviceStore
	migrations storage.MigrationStore
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(devices storage.DeviceStore, migrations storage.MigrationStore, opts ...Option) *Service {
	s := &Service{
		devices:    devices,
		migrations: migrations,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegistrationGroupStatus reports the registration group of the caller's
// most recently seen device whose group is not migrated yet. When every
// group the caller touches is migrated, the most recent one is reported with
// its target group.
func (s *Service) RegistrationGroupStatus(ctx context.Context, userID id.UserID) (*RegistrationGroupStatus, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	devices, err := s.devices.ListByOwner(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list devices")
	}
	groups := groupsByRecency(devices)
	if len(groups) == 0 {
		return &RegistrationGroupStatus{}, nil
	}

	rg := groups[0]
	var mapping *domain.RegistrationGroupMigration
	for i, candidate := range groups {
		m, err := s.migrations.FindByRegistrationGroup(ctx, candidate)
		if errors.Is(err, sentinel.ErrNotFound) {
			rg, mapping = candidate, nil
			break
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read migration state")
		}
		if i == 0 {
			mapping = m
		}
	}

	out := &RegistrationGroupStatus{
		HasRegistrationGroup: true,
		RegistrationGroupID:  &rg,
	}
	if out.DeviceCount, err = s.devices.CountByRegistrationGroup(ctx, rg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count registration group devices")
	}
	if mapping != nil {
		out.AlreadyMigrated = true
		groupID := mapping.AuthenticatedGroupID
		out.MigratedToGroupID = &groupID
	}
	return out, nil
}

// groupsByRecency returns the distinct registration groups of devices,
// ordered by the most recently seen device in each.
func groupsByRecency(devices []domain.Device) []id.RegistrationGroupID {
	tied := make([]*domain.Device, 0, len(devices))
	for i := range devices {
		if devices[i].RegistrationGroupID != nil {
			tied = append(tied, &devices[i])
		}
	}
	sort.Slice(tied, func(i, j int) bool { return newer(tied[i], tied[j]) })

	seen := make(map[id.RegistrationGroupID]struct{}, len(tied))
	var out []id.RegistrationGroupID
	for _, d := range tied {
		rg := *d.RegistrationGroupID
		if _, ok := seen[rg]; ok {
			continue
		}
		seen[rg] = struct{}{}
		out = append(out, rg)
	}
	return out
}

// newer orders by last_seen_at, falling back to created_at for devices
// that never reported.
func newer(a, b *domain.Device) bool {
	at, bt := seenAt(a), seenAt(b)
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.ID.String() < b.ID.String()
}

func seenAt(d *domain.Device) time.Time {
	if d.LastSeenAt != nil {
		return *d.LastSeenAt
	}
	return d.CreatedAt
}
