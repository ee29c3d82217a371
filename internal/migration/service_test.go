package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/ledger"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/migration/metrics"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/migration/mocks"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage/memory"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks LedgerRecorder
type MigrationServiceSuite struct {
	suite.Suite
	ctx      context.Context
	backend  *memory.Backend
	ledger   *ledger.Service
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	service  *Service
	logger   *slog.Logger
}

func TestMigrationServiceSuite(t *testing.T) {
	suite.Run(t, new(MigrationServiceSuite))
}

func (s *MigrationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = memory.New()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ledger = ledger.New(s.backend.Ledger(), ledger.WithLogger(s.logger), ledger.WithRetry(1, time.Millisecond))
	s.registry = prometheus.NewRegistry()
	s.metrics = metrics.New(s.registry)
	s.service = s.newService(s.stores(), s.ledger)
}

func (s *MigrationServiceSuite) stores() Stores {
	return Stores{
		Devices:     s.backend.Devices(),
		Groups:      s.backend.Groups(),
		Memberships: s.backend.Memberships(),
		Migrations:  s.backend.Migrations(),
	}
}

func (s *MigrationServiceSuite) newService(stores Stores, recorder LedgerRecorder) *Service {
	return New(s.backend, stores, recorder,
		WithLogger(s.logger),
		WithMetrics(s.metrics),
	)
}

func (s *MigrationServiceSuite) newUser() id.UserID {
	return id.UserID(uuid.New())
}

func (s *MigrationServiceSuite) seedDevice(rg string, owner *id.UserID) domain.Device {
	regGroup := id.RegistrationGroupID(rg)
	d := domain.Device{
		ID:                  id.DeviceID(uuid.New()),
		DisplayName:         "phone-" + rg,
		OwnerUserID:         owner,
		RegistrationGroupID: &regGroup,
		CreatedAt:           time.Now().UTC(),
	}
	s.Require().NoError(s.backend.Devices().Save(s.ctx, &d))
	return d
}

func (s *MigrationServiceSuite) ledgerEntries(rg string) []domain.LedgerEntry {
	entries, _, err := s.backend.Ledger().Query(s.ctx, domain.LedgerFilter{Limit: 100})
	s.Require().NoError(err)
	var out []domain.LedgerEntry
	for _, e := range entries {
		if e.RegistrationGroupID.String() == rg {
			out = append(out, e)
		}
	}
	return out
}

func (s *MigrationServiceSuite) groupDeviceIDs(groupID id.GroupID) []id.DeviceID {
	devices, _, err := s.backend.Memberships().ListGroupDevices(s.ctx, groupID, 100, 0)
	s.Require().NoError(err)
	ids := make([]id.DeviceID, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.Device.ID)
	}
	return ids
}

func (s *MigrationServiceSuite) TestMigrateCampingScenario() {
	alice := s.newUser()
	bob := s.newUser()
	d1 := s.seedDevice("camping-2025", &alice)
	d2 := s.seedDevice("camping-2025", &alice)
	d3 := s.seedDevice("camping-2025", &bob)
	s.seedDevice("other-trip", &alice)

	result, err := s.service.Migrate(s.ctx, MigrateRequest{
		UserID:              alice,
		RegistrationGroupID: "camping-2025",
		GroupName:           "Camping Crew",
	})
	s.Require().NoError(err)
	s.Equal("Camping Crew", result.Name)
	s.Equal(3, result.DevicesMigrated)
	s.False(result.MigrationID.IsNil())

	s.Run("group is owned by the caller", func() {
		g, err := s.backend.Groups().FindByID(s.ctx, result.AuthenticatedGroupID)
		s.Require().NoError(err)
		s.Equal(alice, g.OwnerUserID)
		role, err := s.backend.Groups().FindMemberRole(s.ctx, g.ID, alice)
		s.Require().NoError(err)
		s.Equal(domain.RoleOwner, role)
	})

	s.Run("every device of the registration group becomes a member", func() {
		s.ElementsMatch([]id.DeviceID{d1.ID, d2.ID, d3.ID}, s.groupDeviceIDs(result.AuthenticatedGroupID))
	})

	s.Run("mapping and ledger agree on the migration id", func() {
		mapping, err := s.backend.Migrations().FindByRegistrationGroup(s.ctx, "camping-2025")
		s.Require().NoError(err)
		s.Equal(result.AuthenticatedGroupID, mapping.AuthenticatedGroupID)
		s.Equal(result.MigrationID, mapping.MigrationID)

		entries := s.ledgerEntries("camping-2025")
		s.Require().Len(entries, 1)
		s.Equal(domain.LedgerStatusSuccess, entries[0].Status)
		s.Equal(result.MigrationID, entries[0].MigrationID)
		s.Equal(3, entries[0].DevicesMigrated)
		s.ElementsMatch([]id.DeviceID{d1.ID, d2.ID, d3.ID}, entries[0].DeviceIDs)
	})

	s.Run("success is counted", func() {
		s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Attempts.WithLabelValues(metrics.OutcomeSuccess)))
	})
}

func (s *MigrationServiceSuite) TestMigrateDefaultsNameToRegistrationGroup() {
	owner := s.newUser()
	s.seedDevice("family.trip_1", &owner)

	result, err := s.service.Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "family.trip_1"})
	s.Require().NoError(err)
	s.Equal("family.trip_1", result.Name)
}

func (s *MigrationServiceSuite) TestMigrateIsIdempotent() {
	owner := s.newUser()
	s.seedDevice("weekend", &owner)
	s.seedDevice("weekend", &owner)

	first, err := s.service.Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "weekend"})
	s.Require().NoError(err)

	_, err = s.service.Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "weekend"})
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))

	am, ok := AsAlreadyMigrated(err)
	s.Require().True(ok)
	s.Equal(first.AuthenticatedGroupID, am.AuthenticatedGroupID)
	s.Equal(first.MigrationID, am.MigrationID)
	s.Equal("weekend", am.GroupName)

	entries := s.ledgerEntries("weekend")
	s.Require().Len(entries, 1)
	s.Equal(domain.LedgerStatusSuccess, entries[0].Status)
	s.Len(s.groupDeviceIDs(first.AuthenticatedGroupID), 2)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Attempts.WithLabelValues(metrics.OutcomeAlreadyMigrated)))
}

func (s *MigrationServiceSuite) TestMigrateZeroDevices() {
	_, err := s.service.Migrate(s.ctx, MigrateRequest{UserID: s.newUser(), RegistrationGroupID: "empty-group"})
	s.Require().Error(err)
	s.ErrorIs(err, ErrNoDevices)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

	_, err = s.backend.Groups().FindByName(s.ctx, "empty-group")
	s.ErrorIs(err, sentinel.ErrNotFound)

	entries := s.ledgerEntries("empty-group")
	s.Require().Len(entries, 1)
	s.Equal(domain.LedgerStatusFailed, entries[0].Status)
	s.Zero(entries[0].DevicesMigrated)
	s.NotEmpty(entries[0].ErrorMessage)
}

func (s *MigrationServiceSuite) TestMigrateRejectsNonOwner() {
	owner := s.newUser()
	s.seedDevice("private", &owner)
	s.seedDevice("private", nil)

	_, err := s.service.Migrate(s.ctx, MigrateRequest{UserID: s.newUser(), RegistrationGroupID: "private"})
	s.Require().Error(err)
	s.ErrorIs(err, ErrNotDeviceOwner)
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
	s.Empty(s.ledgerEntries("private"))

	_, err = s.backend.Migrations().FindByRegistrationGroup(s.ctx, "private")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MigrationServiceSuite) TestMigrateNameTaken() {
	owner := s.newUser()
	s.seedDevice("road-trip", &owner)
	s.Require().NoError(s.backend.Groups().CreateIfNameAvailable(s.ctx, &domain.Group{
		ID: id.NewGroupID(), Name: "Road Trip", OwnerUserID: s.newUser(), CreatedAt: time.Now(),
	}))

	_, err := s.service.Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "road-trip", GroupName: "road trip"})
	s.Require().Error(err)
	s.ErrorIs(err, ErrGroupNameTaken)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	_, isAlready := AsAlreadyMigrated(err)
	s.False(isAlready)

	entries := s.ledgerEntries("road-trip")
	s.Require().Len(entries, 1)
	s.Equal(domain.LedgerStatusFailed, entries[0].Status)

	_, err = s.backend.Migrations().FindByRegistrationGroup(s.ctx, "road-trip")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MigrationServiceSuite) TestMigrateValidation() {
	cases := []struct {
		name string
		req  MigrateRequest
		code dErrors.Code
	}{
		{"missing user", MigrateRequest{RegistrationGroupID: "abc"}, dErrors.CodeUnauthorized},
		{"empty registration group", MigrateRequest{UserID: s.newUser()}, dErrors.CodeValidation},
		{"bad characters", MigrateRequest{UserID: s.newUser(), RegistrationGroupID: "a b"}, dErrors.CodeValidation},
		{"control characters in name", MigrateRequest{UserID: s.newUser(), RegistrationGroupID: "abc", GroupName: "bad\x01name"}, dErrors.CodeValidation},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Migrate(s.ctx, tc.req)
			s.Require().Error(err)
			s.Equal(tc.code, dErrors.CodeOf(err))
		})
	}
	entries, total, err := s.backend.Ledger().Query(s.ctx, domain.LedgerFilter{Limit: 10})
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(entries)
}

// failingMigrations fails the mapping insert, the last write of the
// transaction, so every earlier write must be rolled back.
type failingMigrations struct {
	storage.MigrationStore
	err error
}

func (f *failingMigrations) Insert(context.Context, domain.RegistrationGroupMigration) error {
	return f.err
}

func (s *MigrationServiceSuite) TestMigrateIsAtomic() {
	owner := s.newUser()
	d := s.seedDevice("atomic", &owner)
	stores := s.stores()
	stores.Migrations = &failingMigrations{MigrationStore: stores.Migrations, err: errors.New("disk full")}
	svc := s.newService(stores, s.ledger)

	_, err := svc.Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "atomic", GroupName: "Atomic"})
	s.Require().Error(err)
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))

	_, err = s.backend.Groups().FindByName(s.ctx, "Atomic")
	s.ErrorIs(err, sentinel.ErrNotFound)
	groups, err := s.backend.Memberships().ListDeviceGroups(s.ctx, d.ID, owner)
	s.Require().NoError(err)
	s.Empty(groups)

	entries := s.ledgerEntries("atomic")
	s.Require().Len(entries, 1)
	s.Equal(domain.LedgerStatusFailed, entries[0].Status)
	s.Contains(entries[0].ErrorMessage, "disk full")
	s.Equal([]id.DeviceID{d.ID}, entries[0].DeviceIDs)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Attempts.WithLabelValues(metrics.OutcomeFailed)))
}

// flakyMigrations fails the first n inserts with a transient error.
type flakyMigrations struct {
	storage.MigrationStore
	failures atomic.Int32
}

func (f *flakyMigrations) Insert(ctx context.Context, m domain.RegistrationGroupMigration) error {
	if f.failures.Add(-1) >= 0 {
		return fmt.Errorf("%w: could not serialize access", sentinel.ErrTransient)
	}
	return f.MigrationStore.Insert(ctx, m)
}

func (s *MigrationServiceSuite) TestMigrateRetriesTransientFailureOnce() {
	s.Run("one transient failure is retried", func() {
		owner := s.newUser()
		s.seedDevice("flaky-once", &owner)
		stores := s.stores()
		flaky := &flakyMigrations{MigrationStore: stores.Migrations}
		flaky.failures.Store(1)
		stores.Migrations = flaky

		result, err := s.newService(stores, s.ledger).Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "flaky-once"})
		s.Require().NoError(err)
		s.Len(s.groupDeviceIDs(result.AuthenticatedGroupID), 1)
		s.Len(s.ledgerEntries("flaky-once"), 1)
	})

	s.Run("a second transient failure is internal", func() {
		owner := s.newUser()
		s.seedDevice("flaky-twice", &owner)
		stores := s.stores()
		flaky := &flakyMigrations{MigrationStore: stores.Migrations}
		flaky.failures.Store(2)
		stores.Migrations = flaky

		_, err := s.newService(stores, s.ledger).Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "flaky-twice"})
		s.Require().Error(err)
		s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
		_, err = s.backend.Groups().FindByName(s.ctx, "flaky-twice")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MigrationServiceSuite) TestMigrateIsConcurrencySafe() {
	owner := s.newUser()
	for range 5 {
		s.seedDevice("race", &owner)
	}

	const workers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		groupIDs  sync.Map
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := s.service.Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "race"})
			if err == nil {
				successes.Add(1)
				groupIDs.Store(res.AuthenticatedGroupID, struct{}{})
				return
			}
			if am, ok := AsAlreadyMigrated(err); ok {
				conflicts.Add(1)
				groupIDs.Store(am.AuthenticatedGroupID, struct{}{})
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(workers-1), conflicts.Load())
	distinct := 0
	groupIDs.Range(func(_, _ any) bool { distinct++; return true })
	s.Equal(1, distinct, "all callers observe the same group")
	s.Len(s.ledgerEntries("race"), 1)
}

func (s *MigrationServiceSuite) TestMigrateTwoUserRace() {
	alice := s.newUser()
	bob := s.newUser()
	s.seedDevice("shared", &alice)
	s.seedDevice("shared", &bob)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, user := range []id.UserID{alice, bob} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = s.service.Migrate(s.ctx, MigrateRequest{UserID: user, RegistrationGroupID: "shared"})
		}()
	}
	wg.Wait()

	var ok, already int
	for _, err := range results {
		if err == nil {
			ok++
		} else if _, isAlready := AsAlreadyMigrated(err); isAlready {
			already++
		}
	}
	s.Equal(1, ok)
	s.Equal(1, already)

	mapping, err := s.backend.Migrations().FindByRegistrationGroup(s.ctx, "shared")
	s.Require().NoError(err)
	s.Len(s.groupDeviceIDs(mapping.AuthenticatedGroupID), 2)
}

func (s *MigrationServiceSuite) TestMigratePreservesDeviceData() {
	owner := s.newUser()
	d := s.seedDevice("preserve", &owner)
	for i := range 3 {
		s.Require().NoError(s.backend.Locations().Append(s.ctx, domain.Location{
			DeviceID:   d.ID,
			Latitude:   48.1 + float64(i),
			Longitude:  17.1,
			Accuracy:   5,
			CapturedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}))
	}

	_, err := s.service.Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "preserve"})
	s.Require().NoError(err)

	after, err := s.backend.Devices().FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(d.DisplayName, after.DisplayName)
	s.Require().NotNil(after.RegistrationGroupID)
	s.Equal(id.RegistrationGroupID("preserve"), *after.RegistrationGroupID)
	count, err := s.backend.Locations().CountForDevice(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(3, count)
}

func (s *MigrationServiceSuite) TestMigrateLedgerFailureDoesNotChangeOutcome() {
	ctrl := gomock.NewController(s.T())
	recorder := mocks.NewMockLedgerRecorder(ctrl)
	owner := s.newUser()
	s.seedDevice("ledger-down", &owner)

	recorder.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a ledger.Attempt) (id.MigrationID, error) {
			s.Equal(domain.LedgerStatusSuccess, a.Status)
			s.Require().NotNil(a.AuthenticatedGroupID)
			return a.MigrationID, errors.New("ledger unavailable")
		})

	result, err := s.newService(s.stores(), recorder).Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "ledger-down"})
	s.Require().NoError(err)
	s.Equal(1, result.DevicesMigrated)
}

func (s *MigrationServiceSuite) TestMigrateCountsSlowAttempts() {
	owner := s.newUser()
	s.seedDevice("slow", &owner)
	svc := New(s.backend, s.stores(), s.ledger,
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithSlowThreshold(time.Nanosecond),
	)

	_, err := svc.Migrate(s.ctx, MigrateRequest{UserID: owner, RegistrationGroupID: "slow"})
	s.Require().NoError(err)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Slow))
}
