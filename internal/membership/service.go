// Package membership manages which devices belong to which authenticated
// groups. A device may belong to many groups; the (device, group) pair is
// unique in storage.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/requestcontext"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

var (
	ErrNotDeviceOwner = errors.New("caller does not own the device")
	ErrNotGroupMember = errors.New("caller is not a member of the group")
)

// LocationProvider enriches device listings with the last known location.
type LocationProvider interface {
	LatestForDevices(ctx context.Context, deviceIDs []id.DeviceID) (map[id.DeviceID]domain.Location, error)
}

// Stores are the storage ports the service reads and writes.
type Stores struct {
	Devices     storage.DeviceStore
	Groups      storage.GroupStore
	Memberships storage.MembershipStore
}

// Page selects a window of a listing. Zero Limit means DefaultPageSize.
type Page struct {
	Limit  int
	Offset int
}

// DeviceItem is one device in a group listing.
type DeviceItem struct {
	DeviceID     id.DeviceID
	DisplayName  string
	OwnerUserID  *id.UserID
	AddedAt      time.Time
	LastSeenAt   *time.Time
	LastLocation *domain.Location
}

// DevicePage is a page of group devices with the total count.
type DevicePage struct {
	Devices []DeviceItem
	Total   int
	Limit   int
	Offset  int
}

type Service struct {
	stores    Stores
	locations LocationProvider
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocations enables include_location enrichment.
func WithLocations(p LocationProvider) Option {
	return func(s *Service) {
		s.locations = p
	}
}

func New(stores Stores, opts ...Option) *Service {
	s := &Service{
		stores: stores,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add puts a device the caller owns into a group the caller belongs to.
func (s *Service) Add(ctx context.Context, caller id.UserID, deviceID id.DeviceID, groupID id.GroupID) (m *domain.Membership, err error) {
	defer func() { s.metrics.observe(OpAdd, err) }()

	device, err := s.loadDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if !device.OwnedBy(caller) {
		return nil, dErrors.Wrap(ErrNotDeviceOwner, dErrors.CodeForbidden, "you do not own this device")
	}
	if _, err := s.requireMember(ctx, groupID, caller); err != nil {
		return nil, err
	}

	m = &domain.Membership{
		ID:            id.NewMembershipID(),
		DeviceID:      deviceID,
		GroupID:       groupID,
		AddedByUserID: caller,
		AddedAt:       requestcontext.Now(ctx).UTC(),
	}
	if err := s.stores.Memberships.Add(ctx, m); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "device is already in this group")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "device or group no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add device to group")
	}

	s.logAudit(ctx, "membership_added",
		"user_id", caller.String(),
		"device_id", deviceID.String(),
		"group_id", groupID.String(),
	)
	return m, nil
}

// Remove takes a device out of a group. The device owner and the group's
// owners and admins may do this.
func (s *Service) Remove(ctx context.Context, caller id.UserID, deviceID id.DeviceID, groupID id.GroupID) (err error) {
	defer func() { s.metrics.observe(OpRemove, err) }()

	device, err := s.loadDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return err
	}
	if !device.OwnedBy(caller) {
		role, err := s.stores.Groups.FindMemberRole(ctx, groupID, caller)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve group role")
		}
		if !role.CanManageDevices() {
			return dErrors.New(dErrors.CodeForbidden, "only the device owner or a group admin can remove this device")
		}
	}

	if err := s.stores.Memberships.Remove(ctx, deviceID, groupID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "device is not in this group")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove device from group")
	}

	s.logAudit(ctx, "membership_removed",
		"user_id", caller.String(),
		"device_id", deviceID.String(),
		"group_id", groupID.String(),
	)
	return nil
}

// ListDevices pages through a group's devices, oldest membership first.
func (s *Service) ListDevices(ctx context.Context, caller id.UserID, groupID id.GroupID, page Page, includeLocation bool) (_ *DevicePage, err error) {
	defer func() { s.metrics.observe(OpListDevices, err) }()

	if page.Limit == 0 {
		page.Limit = DefaultPageSize
	}
	if page.Limit < 0 || page.Limit > MaxPageSize {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("limit must be between 1 and %d", MaxPageSize))
	}
	if page.Offset < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
	}
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, groupID, caller); err != nil {
		return nil, err
	}

	rows, total, err := s.stores.Memberships.ListGroupDevices(ctx, groupID, page.Limit, page.Offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list group devices")
	}

	out := &DevicePage{
		Devices: make([]DeviceItem, 0, len(rows)),
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	}
	for _, r := range rows {
		out.Devices = append(out.Devices, DeviceItem{
			DeviceID:    r.Device.ID,
			DisplayName: r.Device.DisplayName,
			OwnerUserID: r.Device.OwnerUserID,
			AddedAt:     r.AddedAt,
			LastSeenAt:  r.Device.LastSeenAt,
		})
	}
	if includeLocation && len(out.Devices) > 0 {
		s.attachLocations(ctx, out.Devices)
	}
	return out, nil
}

// attachLocations is best effort: a location outage degrades the listing
// instead of failing it.
func (s *Service) attachLocations(ctx context.Context, items []DeviceItem) {
	if s.locations == nil {
		return
	}
	ids := make([]id.DeviceID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.DeviceID)
	}
	latest, err := s.locations.LatestForDevices(ctx, ids)
	if err != nil {
		s.logger.WarnContext(ctx, "location lookup failed, listing without locations",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	for i := range items {
		if loc, ok := latest[items[i].DeviceID]; ok {
			items[i].LastLocation = &loc
		}
	}
}

// ListGroups returns the groups a device belongs to. Only its owner may ask.
func (s *Service) ListGroups(ctx context.Context, caller id.UserID, deviceID id.DeviceID) (_ []domain.DeviceGroup, err error) {
	defer func() { s.metrics.observe(OpListGroups, err) }()

	device, err := s.loadDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.OwnedBy(caller) {
		return nil, dErrors.Wrap(ErrNotDeviceOwner, dErrors.CodeForbidden, "you do not own this device")
	}
	groups, err := s.stores.Memberships.ListDeviceGroups(ctx, deviceID, caller)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list device groups")
	}
	if groups == nil {
		groups = []domain.DeviceGroup{}
	}
	return groups, nil
}

// MemberDeviceCounts returns, for every group member, how many of their
// devices are in the group. Owners of member devices who are not group
// members are listed after the members with an empty role.
func (s *Service) MemberDeviceCounts(ctx context.Context, caller id.UserID, groupID id.GroupID) (_ []domain.MemberDeviceCount, err error) {
	defer func() { s.metrics.observe(OpMemberCounts, err) }()

	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, groupID, caller); err != nil {
		return nil, err
	}

	members, err := s.stores.Groups.ListMembers(ctx, groupID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list group members")
	}
	counts, err := s.stores.Memberships.CountDevicesByOwner(ctx, groupID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count member devices")
	}

	out := make([]domain.MemberDeviceCount, 0, len(members))
	for _, m := range members {
		out = append(out, domain.MemberDeviceCount{
			UserID:      m.UserID,
			Role:        m.Role,
			DeviceCount: counts[m.UserID],
		})
		delete(counts, m.UserID)
	}
	extra := make([]domain.MemberDeviceCount, 0, len(counts))
	for userID, n := range counts {
		extra = append(extra, domain.MemberDeviceCount{UserID: userID, DeviceCount: n})
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].UserID.String() < extra[j].UserID.String() })
	return append(out, extra...), nil
}

func (s *Service) loadDevice(ctx context.Context, deviceID id.DeviceID) (*domain.Device, error) {
	if deviceID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "device_id is required")
	}
	device, err := s.stores.Devices.FindByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "device not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load device")
	}
	return device, nil
}

func (s *Service) loadGroup(ctx context.Context, groupID id.GroupID) (*domain.Group, error) {
	if groupID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "group_id is required")
	}
	group, err := s.stores.Groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "group not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group")
	}
	return group, nil
}

func (s *Service) requireMember(ctx context.Context, groupID id.GroupID, userID id.UserID) (domain.GroupRole, error) {
	role, err := s.stores.Groups.FindMemberRole(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.Wrap(ErrNotGroupMember, dErrors.CodeForbidden, "you are not a member of this group")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve group role")
	}
	return role, nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}
