// Package storage declares the persistence ports shared by the migration,
// membership, ledger and status services. The memory and postgres
// subpackages implement all of them against the same data model so the
// migration transaction can span devices, groups, memberships and the
// migrated-mapping at once.
//
// Stores return pkg/platform/sentinel errors; services translate them.
package storage

import (
	"context"
	"time"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
)

// TxRunner runs fn as one atomic unit. Stores called with the ctx passed to
// fn join the transaction. lockKey, when non-empty, serializes every
// transaction using the same key for its whole duration.
type TxRunner interface {
	RunInTx(ctx context.Context, lockKey string, fn func(ctx context.Context) error) error
}

// DeviceStore is the device directory this service consults. Save and
// Delete exist for the directory's own flows and for seeding.
type DeviceStore interface {
	Save(ctx context.Context, device *domain.Device) error
	FindByID(ctx context.Context, deviceID id.DeviceID) (*domain.Device, error)
	ListByRegistrationGroup(ctx context.Context, rg id.RegistrationGroupID) ([]domain.Device, error)
	ListByOwner(ctx context.Context, userID id.UserID) ([]domain.Device, error)
	CountByRegistrationGroup(ctx context.Context, rg id.RegistrationGroupID) (int, error)
	// Delete removes the device together with its memberships and locations.
	Delete(ctx context.Context, deviceID id.DeviceID) error
}

// GroupStore persists authenticated groups and their role assignments.
type GroupStore interface {
	// CreateIfNameAvailable returns sentinel.ErrAlreadyUsed when another
	// group already has the name, compared case-insensitively.
	CreateIfNameAvailable(ctx context.Context, group *domain.Group) error
	FindByID(ctx context.Context, groupID id.GroupID) (*domain.Group, error)
	FindByName(ctx context.Context, name string) (*domain.Group, error)
	// Delete removes the group together with its memberships and members.
	Delete(ctx context.Context, groupID id.GroupID) error
	AddMember(ctx context.Context, member domain.GroupMember) error
	FindMemberRole(ctx context.Context, groupID id.GroupID, userID id.UserID) (domain.GroupRole, error)
	ListMembers(ctx context.Context, groupID id.GroupID) ([]domain.GroupMember, error)
}

// MembershipStore persists device-group memberships. (device, group) is
// unique at the storage layer.
type MembershipStore interface {
	Add(ctx context.Context, membership *domain.Membership) error
	AddBatch(ctx context.Context, memberships []domain.Membership) error
	Remove(ctx context.Context, deviceID id.DeviceID, groupID id.GroupID) error
	Exists(ctx context.Context, deviceID id.DeviceID, groupID id.GroupID) (bool, error)
	ListGroupDevices(ctx context.Context, groupID id.GroupID, limit, offset int) ([]domain.GroupDevice, int, error)
	ListDeviceGroups(ctx context.Context, deviceID id.DeviceID, viewer id.UserID) ([]domain.DeviceGroup, error)
	CountDevicesByOwner(ctx context.Context, groupID id.GroupID) (map[id.UserID]int, error)
}

// MigrationStore persists the registration group → authenticated group
// mapping. Rows are never updated or deleted.
type MigrationStore interface {
	FindByRegistrationGroup(ctx context.Context, rg id.RegistrationGroupID) (*domain.RegistrationGroupMigration, error)
	Insert(ctx context.Context, mapping domain.RegistrationGroupMigration) error
}

// LedgerStore appends immutable ledger entries and queries them.
type LedgerStore interface {
	// Append writes the entry and its outbox payload atomically.
	Append(ctx context.Context, entry domain.LedgerEntry, payload []byte) error
	Query(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, int, error)
}

// OutboxStore exposes ledger entries not yet published downstream.
type OutboxStore interface {
	PendingOutbox(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, ids []string, at time.Time) error
}

// LocationStore reads location history owned by the location service.
type LocationStore interface {
	Append(ctx context.Context, loc domain.Location) error
	LatestForDevices(ctx context.Context, deviceIDs []id.DeviceID) (map[id.DeviceID]domain.Location, error)
	CountForDevice(ctx context.Context, deviceID id.DeviceID) (int, error)
}
