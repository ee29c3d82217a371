package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

type BackendSuite struct {
	suite.Suite
	backend *Backend
	ctx     context.Context
}

func TestBackendSuite(t *testing.T) {
	suite.Run(t, new(BackendSuite))
}

func (s *BackendSuite) SetupTest() {
	s.backend = New()
	s.ctx = context.Background()
}

func (s *BackendSuite) newDevice(rg string, owner *id.UserID) *domain.Device {
	regGroup := id.RegistrationGroupID(rg)
	d := &domain.Device{
		ID:                  id.DeviceID(uuid.New()),
		DisplayName:         "phone",
		OwnerUserID:         owner,
		RegistrationGroupID: &regGroup,
		CreatedAt:           time.Now(),
	}
	s.Require().NoError(s.backend.Devices().Save(s.ctx, d))
	return d
}

func (s *BackendSuite) newGroup(name string) *domain.Group {
	g := &domain.Group{
		ID:          id.NewGroupID(),
		Name:        name,
		OwnerUserID: id.UserID(uuid.New()),
		CreatedAt:   time.Now(),
	}
	s.Require().NoError(s.backend.Groups().CreateIfNameAvailable(s.ctx, g))
	return g
}

func (s *BackendSuite) TestRunInTx() {
	s.Run("commits all writes when fn succeeds", func() {
		d := s.newDevice("family", nil)
		g := &domain.Group{ID: id.NewGroupID(), Name: "Committed", CreatedAt: time.Now()}

		err := s.backend.RunInTx(s.ctx, "family", func(txCtx context.Context) error {
			if err := s.backend.Groups().CreateIfNameAvailable(txCtx, g); err != nil {
				return err
			}
			return s.backend.Memberships().Add(txCtx, &domain.Membership{
				ID: id.NewMembershipID(), DeviceID: d.ID, GroupID: g.ID, AddedAt: time.Now(),
			})
		})
		s.Require().NoError(err)

		exists, err := s.backend.Memberships().Exists(s.ctx, d.ID, g.ID)
		s.Require().NoError(err)
		s.True(exists)
	})

	s.Run("discards all writes when fn fails", func() {
		d := s.newDevice("rollback", nil)
		g := &domain.Group{ID: id.NewGroupID(), Name: "Rolled Back", CreatedAt: time.Now()}
		boom := errors.New("boom")

		err := s.backend.RunInTx(s.ctx, "rollback", func(txCtx context.Context) error {
			s.Require().NoError(s.backend.Groups().CreateIfNameAvailable(txCtx, g))
			s.Require().NoError(s.backend.Memberships().Add(txCtx, &domain.Membership{
				ID: id.NewMembershipID(), DeviceID: d.ID, GroupID: g.ID, AddedAt: time.Now(),
			}))
			return boom
		})
		s.Require().ErrorIs(err, boom)

		_, err = s.backend.Groups().FindByID(s.ctx, g.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.backend.Groups().FindByName(s.ctx, g.Name)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("transaction reads its own writes", func() {
		g := &domain.Group{ID: id.NewGroupID(), Name: "Own Writes", CreatedAt: time.Now()}
		var readErr error

		err := s.backend.RunInTx(s.ctx, "", func(txCtx context.Context) error {
			s.Require().NoError(s.backend.Groups().CreateIfNameAvailable(txCtx, g))
			_, readErr = s.backend.Groups().FindByID(txCtx, g.ID)
			return nil
		})
		s.Require().NoError(err)
		s.NoError(readErr)
	})

	s.Run("nested calls join the outer transaction", func() {
		g := &domain.Group{ID: id.NewGroupID(), Name: "Nested", CreatedAt: time.Now()}
		err := s.backend.RunInTx(s.ctx, "", func(outer context.Context) error {
			_ = s.backend.RunInTx(outer, "", func(inner context.Context) error {
				return s.backend.Groups().CreateIfNameAvailable(inner, g)
			})
			return errors.New("outer fails")
		})
		s.Require().Error(err)
		_, err = s.backend.Groups().FindByID(s.ctx, g.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("cancelled context aborts with timeout code", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		err := s.backend.RunInTx(ctx, "", func(context.Context) error { return nil })
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	s.Run("concurrent transactions on the same data serialize", func() {
		backend := New()
		const workers = 20
		var wg sync.WaitGroup
		var mu sync.Mutex
		successes := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := backend.RunInTx(s.ctx, "race", func(txCtx context.Context) error {
					if _, err := backend.Migrations().FindByRegistrationGroup(txCtx, "race"); err == nil {
						return sentinel.ErrAlreadyUsed
					}
					return backend.Migrations().Insert(txCtx, domain.RegistrationGroupMigration{
						RegistrationGroupID:  "race",
						AuthenticatedGroupID: id.NewGroupID(),
						MigrationID:          id.NewMigrationID(),
						MigratedAt:           time.Now(),
					})
				})
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		s.Equal(1, successes)
	})
}

func (s *BackendSuite) TestGroupNames() {
	s.newGroup("Camping 2025")

	dup := &domain.Group{ID: id.NewGroupID(), Name: "CAMPING 2025"}
	err := s.backend.Groups().CreateIfNameAvailable(s.ctx, dup)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	found, err := s.backend.Groups().FindByName(s.ctx, "camping 2025")
	s.Require().NoError(err)
	s.Equal("Camping 2025", found.Name)
}

func (s *BackendSuite) TestMemberships() {
	owner := id.UserID(uuid.New())
	g := s.newGroup("Family")
	d1 := s.newDevice("fam", &owner)
	d2 := s.newDevice("fam", &owner)
	anon := s.newDevice("fam", nil)

	s.Run("AddBatch is all or nothing", func() {
		missing := id.DeviceID(uuid.New())
		err := s.backend.Memberships().AddBatch(s.ctx, []domain.Membership{
			{ID: id.NewMembershipID(), DeviceID: d1.ID, GroupID: g.ID, AddedAt: time.Now()},
			{ID: id.NewMembershipID(), DeviceID: missing, GroupID: g.ID, AddedAt: time.Now()},
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
		exists, _ := s.backend.Memberships().Exists(s.ctx, d1.ID, g.ID)
		s.False(exists)
	})

	s.Run("duplicate pair is rejected", func() {
		base := time.Now()
		s.Require().NoError(s.backend.Memberships().AddBatch(s.ctx, []domain.Membership{
			{ID: id.NewMembershipID(), DeviceID: d1.ID, GroupID: g.ID, AddedAt: base},
			{ID: id.NewMembershipID(), DeviceID: d2.ID, GroupID: g.ID, AddedAt: base.Add(time.Second)},
			{ID: id.NewMembershipID(), DeviceID: anon.ID, GroupID: g.ID, AddedAt: base.Add(2 * time.Second)},
		}))
		err := s.backend.Memberships().Add(s.ctx, &domain.Membership{
			ID: id.NewMembershipID(), DeviceID: d1.ID, GroupID: g.ID, AddedAt: time.Now(),
		})
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("ListGroupDevices pages in insertion order", func() {
		page, total, err := s.backend.Memberships().ListGroupDevices(s.ctx, g.ID, 2, 1)
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Require().Len(page, 2)
		s.Equal(d2.ID, page[0].Device.ID)
		s.Equal(anon.ID, page[1].Device.ID)

		page, total, err = s.backend.Memberships().ListGroupDevices(s.ctx, g.ID, 10, 5)
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Empty(page)
	})

	s.Run("CountDevicesByOwner skips anonymous devices", func() {
		counts, err := s.backend.Memberships().CountDevicesByOwner(s.ctx, g.ID)
		s.Require().NoError(err)
		s.Equal(map[id.UserID]int{owner: 2}, counts)
	})

	s.Run("deleting a device cascades to its memberships", func() {
		s.Require().NoError(s.backend.Devices().Delete(s.ctx, d2.ID))
		exists, err := s.backend.Memberships().Exists(s.ctx, d2.ID, g.ID)
		s.Require().NoError(err)
		s.False(exists)
	})

	s.Run("deleting a group cascades to memberships and frees the name", func() {
		s.Require().NoError(s.backend.Groups().Delete(s.ctx, g.ID))
		exists, err := s.backend.Memberships().Exists(s.ctx, d1.ID, g.ID)
		s.Require().NoError(err)
		s.False(exists)
		s.newGroup("family")
	})
}

func (s *BackendSuite) TestLedgerQuery() {
	user := id.UserID(uuid.New())
	other := id.UserID(uuid.New())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	failed := domain.LedgerStatusFailed

	for i, e := range []domain.LedgerEntry{
		{UserID: user, Status: domain.LedgerStatusSuccess},
		{UserID: user, Status: domain.LedgerStatusFailed},
		{UserID: other, Status: domain.LedgerStatusFailed},
	} {
		e.MigrationID = id.NewMigrationID()
		e.RegistrationGroupID = "rg"
		e.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		s.Require().NoError(s.backend.Ledger().Append(s.ctx, e, []byte(`{}`)))
	}

	entries, total, err := s.backend.Ledger().Query(s.ctx, domain.LedgerFilter{UserID: &user})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Equal(domain.LedgerStatusFailed, entries[0].Status, "newest first")

	entries, total, err = s.backend.Ledger().Query(s.ctx, domain.LedgerFilter{Status: &failed, Limit: 1})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Len(entries, 1)

	from := base.Add(90 * time.Minute)
	_, total, err = s.backend.Ledger().Query(s.ctx, domain.LedgerFilter{From: &from})
	s.Require().NoError(err)
	s.Equal(1, total)

	pending, err := s.backend.Ledger().PendingOutbox(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 3)
	s.Require().NoError(s.backend.Ledger().MarkOutboxPublished(s.ctx, []string{pending[0].ID}, time.Now()))
	pending, err = s.backend.Ledger().PendingOutbox(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 2)
}
