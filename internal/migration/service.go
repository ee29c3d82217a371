// Package migration converts an anonymous registration group into an
// authenticated group in one serialized transaction and records every
// attempt in the ledger.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/ledger"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/migration/metrics"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/requestcontext"
)

const (
	tracerName = "github.com/hanibalsk/phone-manager-backend-sub002/internal/migration"

	// DefaultSlowThreshold matches the progress signal the HTTP layer sends.
	DefaultSlowThreshold = 2 * time.Second
)

// LedgerRecorder appends ledger entries.
type LedgerRecorder interface {
	Record(ctx context.Context, a ledger.Attempt) (id.MigrationID, error)
}

// Stores are the storage ports the engine touches inside its transaction.
type Stores struct {
	Devices     storage.DeviceStore
	Groups      storage.GroupStore
	Memberships storage.MembershipStore
	Migrations  storage.MigrationStore
}

// MigrateRequest is one migration call. GroupName is optional and defaults
// to the registration group id.
type MigrateRequest struct {
	UserID              id.UserID
	RegistrationGroupID string
	GroupName           string
}

// Result describes a completed migration.
type Result struct {
	AuthenticatedGroupID id.GroupID
	Name                 string
	DevicesMigrated      int
	MigrationID          id.MigrationID
}

// Service is the migration engine.
type Service struct {
	tx            storage.TxRunner
	stores        Stores
	ledger        LedgerRecorder
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	slowThreshold time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithSlowThreshold sets the duration after which an attempt counts as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.slowThreshold = d
		}
	}
}

func New(tx storage.TxRunner, stores Stores, recorder LedgerRecorder, opts ...Option) *Service {
	s := &Service{
		tx:            tx,
		stores:        stores,
		ledger:        recorder,
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
		slowThreshold: DefaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockKey scopes the advisory lock to one registration group.
func lockKey(rg id.RegistrationGroupID) string {
	return "registration-group:" + rg.String()
}

// Migrate converts the registration group into a new authenticated group
// owned by the caller. Preconditions, in order: the group has devices, the
// caller owns one of them, it was not migrated before, and the target name
// is free. A retry after success gets *AlreadyMigratedError carrying the
// original group and migration ids.
func (s *Service) Migrate(ctx context.Context, req MigrateRequest) (*Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "migration.Migrate")
	defer span.End()

	result, outcome, err := s.migrate(ctx, req, span)

	elapsed := time.Since(start)
	s.metrics.ObserveAttempt(outcome, elapsed)
	if elapsed > s.slowThreshold {
		s.metrics.IncrementSlow()
		s.logger.WarnContext(ctx, "migration exceeded progress threshold",
			"registration_group_id", req.RegistrationGroupID,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	span.SetAttributes(attribute.String("migration.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	return result, err
}

type execution struct {
	result    *Result
	deviceIDs []id.DeviceID
}

func (s *Service) migrate(ctx context.Context, req MigrateRequest, span trace.Span) (*Result, string, error) {
	if req.UserID.IsNil() {
		return nil, metrics.OutcomeForbidden, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	rg, err := id.ParseRegistrationGroupID(req.RegistrationGroupID)
	if err != nil {
		return nil, metrics.OutcomeInvalid, err
	}
	rawName := strings.TrimSpace(req.GroupName)
	if rawName == "" {
		rawName = rg.String()
	}
	name, err := id.NormalizeGroupName(rawName)
	if err != nil {
		return nil, metrics.OutcomeInvalid, err
	}
	span.SetAttributes(attribute.String("migration.registration_group_id", rg.String()))

	migrationID := id.NewMigrationID()
	var exec execution
	attempt := func() error {
		exec = execution{}
		return s.tx.RunInTx(ctx, lockKey(rg), func(txCtx context.Context) error {
			var err error
			exec, err = s.execute(txCtx, req.UserID, rg, name, migrationID)
			return err
		})
	}

	err = attempt()
	if errors.Is(err, sentinel.ErrTransient) {
		s.logger.InfoContext(ctx, "retrying migration after transient failure",
			"registration_group_id", rg,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		err = attempt()
		if errors.Is(err, sentinel.ErrTransient) {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "migration could not complete, please retry")
		}
	}
	if err != nil {
		err = classifyFailure(err)
		outcome := outcomeFor(err)
		if recordable(err) {
			_, _ = s.ledger.Record(ctx, ledger.Attempt{
				MigrationID:         migrationID,
				UserID:              req.UserID,
				RegistrationGroupID: rg,
				DeviceIDs:           exec.deviceIDs,
				Status:              domain.LedgerStatusFailed,
				ErrorMessage:        err.Error(),
			})
		}
		s.logAudit(ctx, "migration_failed",
			"user_id", req.UserID.String(),
			"registration_group_id", rg.String(),
			"outcome", outcome,
			"reason", dErrors.MessageOf(err),
		)
		return nil, outcome, err
	}

	span.SetAttributes(attribute.Int("migration.devices", len(exec.deviceIDs)))
	groupID := exec.result.AuthenticatedGroupID
	_, _ = s.ledger.Record(ctx, ledger.Attempt{
		MigrationID:          migrationID,
		UserID:               req.UserID,
		RegistrationGroupID:  rg,
		AuthenticatedGroupID: &groupID,
		DeviceIDs:            exec.deviceIDs,
		Status:               domain.LedgerStatusSuccess,
	})
	s.logAudit(ctx, "migration_succeeded",
		"user_id", req.UserID.String(),
		"registration_group_id", rg.String(),
		"group_id", groupID.String(),
		"migration_id", migrationID.String(),
		"devices_migrated", len(exec.deviceIDs),
	)
	return exec.result, metrics.OutcomeSuccess, nil
}

// execute runs inside the transaction. The returned device ids are set as
// soon as they are known so failures can still be recorded with them.
func (s *Service) execute(ctx context.Context, userID id.UserID, rg id.RegistrationGroupID, name string, migrationID id.MigrationID) (execution, error) {
	var exec execution

	devices, err := s.stores.Devices.ListByRegistrationGroup(ctx, rg)
	if err != nil {
		return exec, fmt.Errorf("list registration group devices: %w", err)
	}
	if len(devices) == 0 {
		return exec, dErrors.Wrap(ErrNoDevices, dErrors.CodeNotFound, "registration group has no devices")
	}
	owned, foreign := 0, 0
	for _, d := range devices {
		exec.deviceIDs = append(exec.deviceIDs, d.ID)
		if d.OwnedBy(userID) {
			owned++
		} else if d.OwnerUserID != nil {
			foreign++
		}
	}
	if owned == 0 {
		return exec, dErrors.Wrap(ErrNotDeviceOwner, dErrors.CodeForbidden, "you do not own a device in this registration group")
	}

	prior, err := s.stores.Migrations.FindByRegistrationGroup(ctx, rg)
	switch {
	case err == nil:
		am := &AlreadyMigratedError{
			RegistrationGroupID:  rg,
			AuthenticatedGroupID: prior.AuthenticatedGroupID,
			MigrationID:          prior.MigrationID,
		}
		if g, err := s.stores.Groups.FindByID(ctx, prior.AuthenticatedGroupID); err == nil {
			am.GroupName = g.Name
		}
		return exec, am
	case !errors.Is(err, sentinel.ErrNotFound):
		return exec, fmt.Errorf("check migration state: %w", err)
	}

	now := time.Now().UTC()
	group := &domain.Group{
		ID:          id.NewGroupID(),
		Name:        name,
		OwnerUserID: userID,
		CreatedAt:   now,
	}
	if err := s.stores.Groups.CreateIfNameAvailable(ctx, group); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return exec, dErrors.Wrap(ErrGroupNameTaken, dErrors.CodeConflict, fmt.Sprintf("a group named %q already exists", name))
		}
		return exec, fmt.Errorf("create group: %w", err)
	}
	if err := s.stores.Groups.AddMember(ctx, domain.GroupMember{
		GroupID:  group.ID,
		UserID:   userID,
		Role:     domain.RoleOwner,
		JoinedAt: now,
	}); err != nil {
		return exec, fmt.Errorf("add group owner: %w", err)
	}

	memberships := make([]domain.Membership, 0, len(devices))
	for _, d := range devices {
		memberships = append(memberships, domain.Membership{
			ID:            id.NewMembershipID(),
			DeviceID:      d.ID,
			GroupID:       group.ID,
			AddedByUserID: userID,
			AddedAt:       now,
		})
	}
	if err := s.stores.Memberships.AddBatch(ctx, memberships); err != nil {
		return exec, fmt.Errorf("add memberships: %w", err)
	}

	if err := s.stores.Migrations.Insert(ctx, domain.RegistrationGroupMigration{
		RegistrationGroupID:  rg,
		AuthenticatedGroupID: group.ID,
		MigrationID:          migrationID,
		MigratedBy:           userID,
		MigratedAt:           now,
	}); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Lost a race the lock should have prevented; the retry sees the winner.
			return exec, fmt.Errorf("%w: mapping written concurrently: %v", sentinel.ErrTransient, err)
		}
		return exec, fmt.Errorf("record migration mapping: %w", err)
	}

	if foreign > 0 {
		s.logger.InfoContext(ctx, "migrating devices owned by other users",
			"registration_group_id", rg,
			"foreign_devices", foreign,
		)
	}

	exec.result = &Result{
		AuthenticatedGroupID: group.ID,
		Name:                 group.Name,
		DevicesMigrated:      len(devices),
		MigrationID:          migrationID,
	}
	return exec, nil
}

// classifyFailure gives every failure a domain code.
func classifyFailure(err error) error {
	if _, ok := AsAlreadyMigrated(err); ok {
		return err
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "migration timed out, please retry")
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "storage unavailable, please retry")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "migration failed")
}

// recordable reports whether a failure gets a ledger entry. Rejected requests
// (bad input, wrong caller) and idempotent short-circuits do not.
func recordable(err error) bool {
	if _, ok := AsAlreadyMigrated(err); ok {
		return false
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeUnauthorized, dErrors.CodeForbidden:
		return false
	}
	return true
}

func outcomeFor(err error) string {
	if _, ok := AsAlreadyMigrated(err); ok {
		return metrics.OutcomeAlreadyMigrated
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return metrics.OutcomeInvalid
	case dErrors.CodeUnauthorized, dErrors.CodeForbidden:
		return metrics.OutcomeForbidden
	}
	return metrics.OutcomeFailed
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
