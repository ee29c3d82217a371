package domain

import (
	"time"

	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
)

// RegistrationGroupMigration is the append-only mapping from a registration
// group to the authenticated group it became. Its existence is what makes a
// registration group "already migrated".
type RegistrationGroupMigration struct {
	RegistrationGroupID  id.RegistrationGroupID
	AuthenticatedGroupID id.GroupID
	MigrationID          id.MigrationID
	MigratedBy           id.UserID
	MigratedAt           time.Time
}

// LedgerStatus is the outcome of a migration attempt.
type LedgerStatus string

const (
	LedgerStatusSuccess LedgerStatus = "success"
	LedgerStatusFailed  LedgerStatus = "failed"
	LedgerStatusPartial LedgerStatus = "partial"
)

func (s LedgerStatus) IsValid() bool {
	switch s {
	case LedgerStatusSuccess, LedgerStatusFailed, LedgerStatusPartial:
		return true
	}
	return false
}

// LedgerEntry is an immutable audit record of one migration attempt.
type LedgerEntry struct {
	MigrationID          id.MigrationID
	UserID               id.UserID
	RegistrationGroupID  id.RegistrationGroupID
	AuthenticatedGroupID *id.GroupID
	DevicesMigrated      int
	DeviceIDs            []id.DeviceID
	Status               LedgerStatus
	ErrorMessage         string
	CreatedAt            time.Time
}

// LedgerFilter narrows ledger queries. Zero values mean "any".
type LedgerFilter struct {
	UserID *id.UserID
	Status *LedgerStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// OutboxMessage is a ledger entry waiting to be published downstream.
type OutboxMessage struct {
	ID          string
	MigrationID id.MigrationID
	Payload     []byte
	CreatedAt   time.Time
}
