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

// MigrationStore persists registration_group_migrations. The table has no
// UPDATE or DELETE path.
type MigrationStore struct {
	db *sql.DB
}

func (s *MigrationStore) FindByRegistrationGroup(ctx context.Context, rg id.RegistrationGroupID) (*domain.RegistrationGroupMigration, error) {
	q := txcontext.QuerierFrom(ctx, s.db)
	var (
		groupID, migrationID, migratedBy uuid.UUID
		m                                = domain.RegistrationGroupMigration{RegistrationGroupID: rg}
	)
	err := q.QueryRowContext(ctx, `
		SELECT authenticated_group_id, migration_id, migrated_by, migrated_at
		FROM registration_group_migrations
		WHERE registration_group_id = $1
	`, rg.String()).Scan(&groupID, &migrationID, &migratedBy, &m.MigratedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("migration of %s: %w", rg, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find migration: %w", classify(err))
	}
	m.AuthenticatedGroupID = id.GroupID(groupID)
	m.MigrationID = id.MigrationID(migrationID)
	m.MigratedBy = id.UserID(migratedBy)
	return &m, nil
}

func (s *MigrationStore) Insert(ctx context.Context, mapping domain.RegistrationGroupMigration) error {
	q := txcontext.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO registration_group_migrations
			(registration_group_id, authenticated_group_id, migration_id, migrated_by, migrated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, mapping.RegistrationGroupID.String(), uuid.UUID(mapping.AuthenticatedGroupID),
		uuid.UUID(mapping.MigrationID), uuid.UUID(mapping.MigratedBy), mapping.MigratedAt)
	if err != nil {
		return fmt.Errorf("insert migration: %w", classify(err))
	}
	return nil
}
