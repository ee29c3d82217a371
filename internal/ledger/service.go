// Package ledger records every migration attempt in an append-only audit
// ledger and relays the entries downstream through a transactional outbox.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/requestcontext"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 50 * time.Millisecond
	recordTimeout       = 5 * time.Second
	maxErrorMessageLen  = 1000

	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Attempt describes one migration attempt to be recorded.
type Attempt struct {
	// MigrationID is generated when zero.
	MigrationID          id.MigrationID
	UserID               id.UserID
	RegistrationGroupID  id.RegistrationGroupID
	AuthenticatedGroupID *id.GroupID
	DeviceIDs            []id.DeviceID
	Status               domain.LedgerStatus
	ErrorMessage         string
}

// Filter narrows Query. Zero values mean "any".
type Filter struct {
	UserID *id.UserID
	Status *domain.LedgerStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// Page is one page of ledger entries, newest first.
type Page struct {
	Entries []domain.LedgerEntry
	Total   int
	Limit   int
	Offset  int
}

// Event is the wire form of a ledger entry, used for the outbox payload and
// the admin API.
type Event struct {
	MigrationID          string    `json:"migration_id"`
	UserID               string    `json:"user_id"`
	RegistrationGroupID  string    `json:"registration_group_id"`
	AuthenticatedGroupID *string   `json:"authenticated_group_id,omitempty"`
	DevicesMigrated      int       `json:"devices_migrated"`
	DeviceIDs            []string  `json:"device_ids"`
	Status               string    `json:"status"`
	ErrorMessage         string    `json:"error_message,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// EventFromEntry converts an entry to its wire form.
func EventFromEntry(e domain.LedgerEntry) Event {
	ev := Event{
		MigrationID:         e.MigrationID.String(),
		UserID:              e.UserID.String(),
		RegistrationGroupID: e.RegistrationGroupID.String(),
		DevicesMigrated:     e.DevicesMigrated,
		DeviceIDs:           make([]string, 0, len(e.DeviceIDs)),
		Status:              string(e.Status),
		ErrorMessage:        e.ErrorMessage,
		CreatedAt:           e.CreatedAt,
	}
	if e.AuthenticatedGroupID != nil {
		g := e.AuthenticatedGroupID.String()
		ev.AuthenticatedGroupID = &g
	}
	for _, d := range e.DeviceIDs {
		ev.DeviceIDs = append(ev.DeviceIDs, d.String())
	}
	return ev
}

// Service writes and queries the migration ledger.
type Service struct {
	store       storage.LedgerStore
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRetry overrides how many times Record tries the write and the base
// backoff between tries.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

func New(store storage.LedgerStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends an entry for the attempt and returns its migration id. The
// id is returned even when the write fails; the error is for logging only
// and must not change the caller's outcome. The write runs detached from
// ctx cancellation so a disconnected client cannot suppress it.
func (s *Service) Record(ctx context.Context, a Attempt) (id.MigrationID, error) {
	migrationID := a.MigrationID
	if migrationID.IsNil() {
		migrationID = id.NewMigrationID()
	}
	entry := domain.LedgerEntry{
		MigrationID:          migrationID,
		UserID:               a.UserID,
		RegistrationGroupID:  a.RegistrationGroupID,
		AuthenticatedGroupID: a.AuthenticatedGroupID,
		DevicesMigrated:      len(a.DeviceIDs),
		DeviceIDs:            a.DeviceIDs,
		Status:               a.Status,
		ErrorMessage:         truncate(a.ErrorMessage, maxErrorMessageLen),
		CreatedAt:            requestcontext.Now(ctx).UTC(),
	}
	if entry.Status != domain.LedgerStatusSuccess {
		entry.DevicesMigrated = 0
	}

	payload, err := json.Marshal(EventFromEntry(entry))
	if err != nil {
		return migrationID, err
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.store.Append(writeCtx, entry, payload)
		if err == nil {
			return migrationID, nil
		}
		// A duplicate after a failed try means that try committed.
		if attempt > 1 && errors.Is(err, sentinel.ErrAlreadyUsed) {
			return migrationID, nil
		}
		lastErr = err
		s.logger.WarnContext(ctx, "ledger write failed",
			"migration_id", migrationID,
			"attempt", attempt,
			"error", err,
		)
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-time.After(s.backoff * time.Duration(attempt)):
		case <-writeCtx.Done():
			return migrationID, writeCtx.Err()
		}
	}
	s.logger.ErrorContext(ctx, "ledger entry dropped",
		"migration_id", migrationID,
		"registration_group_id", a.RegistrationGroupID,
		"status", a.Status,
		"error", lastErr,
	)
	return migrationID, lastErr
}

// Query returns ledger entries matching the filter, newest first.
func (s *Service) Query(ctx context.Context, f Filter) (*Page, error) {
	if f.Limit == 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit < 0 || f.Limit > MaxPageSize {
		return nil, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 200")
	}
	if f.Offset < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
	}
	if f.Status != nil && !f.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be one of success, failed, partial")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, dErrors.New(dErrors.CodeValidation, "to must not be before from")
	}

	entries, total, err := s.store.Query(ctx, domain.LedgerFilter{
		UserID: f.UserID,
		Status: f.Status,
		From:   f.From,
		To:     f.To,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query migration ledger")
	}
	return &Page{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
