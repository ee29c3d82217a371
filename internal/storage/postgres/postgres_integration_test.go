//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage/postgres"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/testutil/containers"
)

type PostgresBackendSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	backend  *postgres.Backend
	ctx      context.Context
}

func TestPostgresBackendSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresBackendSuite))
}

func (s *PostgresBackendSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.backend = postgres.New(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresBackendSuite) SetupTest() {
	err := s.postgres.TruncateTables(s.ctx,
		"ledger_outbox", "migration_audit_logs", "registration_group_migrations",
		"device_group_memberships", "group_members", "groups", "locations", "devices")
	s.Require().NoError(err)
}

func (s *PostgresBackendSuite) newDevice(rg string, owner *id.UserID) *domain.Device {
	regGroup := id.RegistrationGroupID(rg)
	d := &domain.Device{
		ID:                  id.DeviceID(uuid.New()),
		DisplayName:         "phone",
		OwnerUserID:         owner,
		RegistrationGroupID: &regGroup,
		CreatedAt:           time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.backend.Devices().Save(s.ctx, d))
	return d
}

func (s *PostgresBackendSuite) newGroup(name string) *domain.Group {
	g := &domain.Group{
		ID:          id.NewGroupID(),
		Name:        name,
		OwnerUserID: id.UserID(uuid.New()),
		CreatedAt:   time.Now().UTC(),
	}
	s.Require().NoError(s.backend.Groups().CreateIfNameAvailable(s.ctx, g))
	return g
}

func (s *PostgresBackendSuite) TestDeviceRoundTrip() {
	owner := id.UserID(uuid.New())
	d := s.newDevice("camping-2025", &owner)

	found, err := s.backend.Devices().FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(d.ID, found.ID)
	s.Require().NotNil(found.OwnerUserID)
	s.Equal(owner, *found.OwnerUserID)
	s.Equal(id.RegistrationGroupID("camping-2025"), *found.RegistrationGroupID)

	n, err := s.backend.Devices().CountByRegistrationGroup(s.ctx, "camping-2025")
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.backend.Devices().FindByID(s.ctx, id.DeviceID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresBackendSuite) TestGroupNameUniqueCaseInsensitive() {
	s.newGroup("Camping 2025")
	err := s.backend.Groups().CreateIfNameAvailable(s.ctx, &domain.Group{
		ID: id.NewGroupID(), Name: "camping 2025", OwnerUserID: id.UserID(uuid.New()), CreatedAt: time.Now(),
	})
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *PostgresBackendSuite) TestTransactionRollback() {
	d := s.newDevice("rollback", nil)
	g := &domain.Group{ID: id.NewGroupID(), Name: "Rollback", OwnerUserID: id.UserID(uuid.New()), CreatedAt: time.Now()}
	boom := errors.New("boom")

	err := s.backend.RunInTx(s.ctx, "rollback", func(txCtx context.Context) error {
		s.Require().NoError(s.backend.Groups().CreateIfNameAvailable(txCtx, g))
		s.Require().NoError(s.backend.Memberships().AddBatch(txCtx, []domain.Membership{
			{ID: id.NewMembershipID(), DeviceID: d.ID, GroupID: g.ID, AddedByUserID: g.OwnerUserID, AddedAt: time.Now()},
		}))
		return boom
	})
	s.Require().ErrorIs(err, boom)

	_, err = s.backend.Groups().FindByID(s.ctx, g.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	exists, err := s.backend.Memberships().Exists(s.ctx, d.ID, g.ID)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *PostgresBackendSuite) TestMembershipConstraintsAndCascades() {
	owner := id.UserID(uuid.New())
	g := s.newGroup("Family")
	d := s.newDevice("fam", &owner)
	s.Require().NoError(s.backend.Locations().Append(s.ctx, domain.Location{
		DeviceID: d.ID, Latitude: 48.1, Longitude: 17.1, CapturedAt: time.Now(),
	}))

	m := &domain.Membership{ID: id.NewMembershipID(), DeviceID: d.ID, GroupID: g.ID, AddedByUserID: owner, AddedAt: time.Now()}
	s.Require().NoError(s.backend.Memberships().Add(s.ctx, m))

	dup := *m
	dup.ID = id.NewMembershipID()
	s.ErrorIs(s.backend.Memberships().Add(s.ctx, &dup), sentinel.ErrAlreadyUsed)

	missing := &domain.Membership{ID: id.NewMembershipID(), DeviceID: id.DeviceID(uuid.New()), GroupID: g.ID, AddedByUserID: owner, AddedAt: time.Now()}
	s.ErrorIs(s.backend.Memberships().Add(s.ctx, missing), sentinel.ErrNotFound)

	counts, err := s.backend.Memberships().CountDevicesByOwner(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(map[id.UserID]int{owner: 1}, counts)

	s.Require().NoError(s.backend.Groups().Delete(s.ctx, g.ID))
	exists, err := s.backend.Memberships().Exists(s.ctx, d.ID, g.ID)
	s.Require().NoError(err)
	s.False(exists)

	s.Require().NoError(s.backend.Devices().Delete(s.ctx, d.ID))
	n, err := s.backend.Locations().CountForDevice(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PostgresBackendSuite) TestListGroupDevicesPaging() {
	g := s.newGroup("Paged")
	base := time.Now().UTC().Truncate(time.Millisecond)
	var batch []domain.Membership
	var ids []id.DeviceID
	for i := 0; i < 5; i++ {
		d := s.newDevice("paged", nil)
		ids = append(ids, d.ID)
		batch = append(batch, domain.Membership{
			ID: id.NewMembershipID(), DeviceID: d.ID, GroupID: g.ID,
			AddedByUserID: g.OwnerUserID, AddedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	s.Require().NoError(s.backend.Memberships().AddBatch(s.ctx, batch))

	page, total, err := s.backend.Memberships().ListGroupDevices(s.ctx, g.ID, 2, 2)
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Require().Len(page, 2)
	s.Equal(ids[2], page[0].Device.ID)
	s.Equal(ids[3], page[1].Device.ID)
}

func (s *PostgresBackendSuite) TestLedgerAppendQueryAndImmutability() {
	user := id.UserID(uuid.New())
	groupID := id.NewGroupID()
	d1, d2 := id.DeviceID(uuid.New()), id.DeviceID(uuid.New())
	entry := domain.LedgerEntry{
		MigrationID:          id.NewMigrationID(),
		UserID:               user,
		RegistrationGroupID:  "camping-2025",
		AuthenticatedGroupID: &groupID,
		DevicesMigrated:      2,
		DeviceIDs:            []id.DeviceID{d1, d2},
		Status:               domain.LedgerStatusSuccess,
		CreatedAt:            time.Now().UTC(),
	}
	s.Require().NoError(s.backend.Ledger().Append(s.ctx, entry, []byte(`{"status":"success"}`)))
	s.ErrorIs(s.backend.Ledger().Append(s.ctx, entry, []byte(`{}`)), sentinel.ErrAlreadyUsed)

	entries, total, err := s.backend.Ledger().Query(s.ctx, domain.LedgerFilter{UserID: &user, Limit: 10})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(entries, 1)
	s.ElementsMatch([]id.DeviceID{d1, d2}, entries[0].DeviceIDs)
	s.Equal(groupID, *entries[0].AuthenticatedGroupID)

	_, err = s.postgres.DB.ExecContext(s.ctx, `UPDATE migration_audit_logs SET status = 'failed'`)
	s.Error(err, "ledger rows are append-only")
	_, err = s.postgres.DB.ExecContext(s.ctx, `DELETE FROM migration_audit_logs`)
	s.Error(err, "ledger rows are append-only")

	pending, err := s.backend.Ledger().PendingOutbox(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.JSONEq(`{"status":"success"}`, string(pending[0].Payload))
	s.Require().NoError(s.backend.Ledger().MarkOutboxPublished(s.ctx, []string{pending[0].ID}, time.Now()))
	pending, err = s.backend.Ledger().PendingOutbox(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

// TestAdvisoryLockSerializesMigrations verifies that transactions sharing a
// lock key observe each other's committed writes, so exactly one inserts.
func (s *PostgresBackendSuite) TestAdvisoryLockSerializesMigrations() {
	const goroutines = 10
	var wg sync.WaitGroup
	var successCount, alreadyCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.backend.RunInTx(s.ctx, "race", func(txCtx context.Context) error {
				if _, err := s.backend.Migrations().FindByRegistrationGroup(txCtx, "race"); err == nil {
					return sentinel.ErrAlreadyUsed
				}
				return s.backend.Migrations().Insert(txCtx, domain.RegistrationGroupMigration{
					RegistrationGroupID:  "race",
					AuthenticatedGroupID: id.NewGroupID(),
					MigrationID:          id.NewMigrationID(),
					MigratedBy:           id.UserID(uuid.New()),
					MigratedAt:           time.Now(),
				})
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				alreadyCount.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), alreadyCount.Load())
}
