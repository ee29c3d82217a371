package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
)

// Typed identifiers keep device, group and user ids from being mixed up at
// compile time. All of them are UUIDs on the wire.
type (
	UserID       uuid.UUID
	DeviceID     uuid.UUID
	GroupID      uuid.UUID
	MembershipID uuid.UUID
	MigrationID  uuid.UUID
)

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id DeviceID) String() string     { return uuid.UUID(id).String() }
func (id GroupID) String() string      { return uuid.UUID(id).String() }
func (id MembershipID) String() string { return uuid.UUID(id).String() }
func (id MigrationID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id DeviceID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id GroupID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id MigrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func NewMembershipID() MembershipID { return MembershipID(uuid.New()) }
func NewMigrationID() MigrationID   { return MigrationID(uuid.New()) }
func NewGroupID() GroupID           { return GroupID(uuid.New()) }

// MarshalText lets typed ids serialize as plain UUID strings in JSON.
func (id UserID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id DeviceID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id GroupID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id MigrationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id MembershipID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *UserID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DeviceID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *GroupID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MigrationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

func ParseDeviceID(s string) (DeviceID, error) {
	u, err := parseUUID(s, "device_id")
	return DeviceID(u), err
}

func ParseGroupID(s string) (GroupID, error) {
	u, err := parseUUID(s, "group_id")
	return GroupID(u), err
}

func ParseMigrationID(s string) (MigrationID, error) {
	u, err := parseUUID(s, "migration_id")
	return MigrationID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs.
func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}

// RegistrationGroupID is the anonymous string key devices share before a
// group is migrated. The string is never deleted once devices carry it.
type RegistrationGroupID string

const (
	MaxRegistrationGroupIDLength = 100
	MaxGroupNameLength           = 100
)

func (r RegistrationGroupID) String() string { return string(r) }

// ParseRegistrationGroupID accepts 1-100 characters of letters, digits,
// '-', '_' and '.', starting with a letter or digit.
func ParseRegistrationGroupID(s string) (RegistrationGroupID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "registration_group_id is required")
	}
	if len(s) > MaxRegistrationGroupIDLength {
		return "", dErrors.New(dErrors.CodeValidation, "registration_group_id must be at most 100 characters")
	}
	for i, r := range s {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
		case i > 0 && (r == '-' || r == '_' || r == '.'):
		default:
			return "", dErrors.New(dErrors.CodeValidation, "registration_group_id contains invalid characters")
		}
	}
	return RegistrationGroupID(s), nil
}

// NormalizeGroupName trims the name and rejects empty, oversized or
// control-character names.
func NormalizeGroupName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "group name is required")
	}
	if utf8.RuneCountInString(s) > MaxGroupNameLength {
		return "", dErrors.New(dErrors.CodeValidation, "group name must be at most 100 characters")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeValidation, "group name must be valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeValidation, "group name contains control characters")
		}
	}
	return s, nil
}
