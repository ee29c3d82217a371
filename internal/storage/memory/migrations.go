package memory

import (
	"context"
	"fmt"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

// MigrationStore keeps the append-only registration group mapping.
type MigrationStore struct {
	b *Backend
}

func (s *MigrationStore) FindByRegistrationGroup(ctx context.Context, rg id.RegistrationGroupID) (*domain.RegistrationGroupMigration, error) {
	var found *domain.RegistrationGroupMigration
	err := s.b.read(ctx, func(st *state) error {
		m, ok := st.migrations[rg]
		if !ok {
			return fmt.Errorf("migration of %s: %w", rg, sentinel.ErrNotFound)
		}
		found = &m
		return nil
	})
	return found, err
}

func (s *MigrationStore) Insert(ctx context.Context, mapping domain.RegistrationGroupMigration) error {
	return s.b.write(ctx, func(st *state) error {
		if _, exists := st.migrations[mapping.RegistrationGroupID]; exists {
			return fmt.Errorf("migration of %s: %w", mapping.RegistrationGroupID, sentinel.ErrAlreadyUsed)
		}
		st.migrations[mapping.RegistrationGroupID] = mapping
		return nil
	})
}
