// Package memory implements the storage ports in process. A transaction
// takes the backend's write lock, works on a private copy of the state and
// swaps it in on success, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
)

// defaultTxTimeout is the maximum duration for a transaction.
const defaultTxTimeout = 5 * time.Second

type membershipKey struct {
	device id.DeviceID
	group  id.GroupID
}

type outboxRow struct {
	msg         domain.OutboxMessage
	publishedAt *time.Time
}

type state struct {
	devices     map[id.DeviceID]domain.Device
	locations   map[id.DeviceID][]domain.Location
	groups      map[id.GroupID]domain.Group
	groupNames  map[string]id.GroupID
	members     map[id.GroupID]map[id.UserID]domain.GroupMember
	memberships map[membershipKey]domain.Membership
	migrations  map[id.RegistrationGroupID]domain.RegistrationGroupMigration
	ledger      []domain.LedgerEntry
	outbox      []outboxRow
}

func newState() *state {
	return &state{
		devices:     make(map[id.DeviceID]domain.Device),
		locations:   make(map[id.DeviceID][]domain.Location),
		groups:      make(map[id.GroupID]domain.Group),
		groupNames:  make(map[string]id.GroupID),
		members:     make(map[id.GroupID]map[id.UserID]domain.GroupMember),
		memberships: make(map[membershipKey]domain.Membership),
		migrations:  make(map[id.RegistrationGroupID]domain.RegistrationGroupMigration),
	}
}

// clone copies every table. Values are plain structs; pointer fields inside
// them are never mutated in place, so a shallow copy per row is enough.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.devices {
		c.devices[k] = v
	}
	for k, v := range s.locations {
		c.locations[k] = append([]domain.Location(nil), v...)
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.groupNames {
		c.groupNames[k] = v
	}
	for g, users := range s.members {
		m := make(map[id.UserID]domain.GroupMember, len(users))
		for u, member := range users {
			m[u] = member
		}
		c.members[g] = m
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.migrations {
		c.migrations[k] = v
	}
	c.ledger = append([]domain.LedgerEntry(nil), s.ledger...)
	c.outbox = append([]outboxRow(nil), s.outbox...)
	return c
}

func nameKey(name string) string {
	return strings.ToLower(name)
}

// Backend owns the in-memory state behind every store.
type Backend struct {
	mu      sync.RWMutex
	st      *state
	timeout time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithTxTimeout bounds how long a transaction may run.
func WithTxTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// New constructs an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{st: newState(), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type txKey struct{}

type memTx struct {
	owner *Backend
	st    *state
}

func (b *Backend) txState(ctx context.Context) *state {
	if t, ok := ctx.Value(txKey{}).(*memTx); ok && t.owner == b {
		return t.st
	}
	return nil
}

func (b *Backend) read(ctx context.Context, fn func(*state) error) error {
	if st := b.txState(ctx); st != nil {
		return fn(st)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fn(b.st)
}

func (b *Backend) write(ctx context.Context, fn func(*state) error) error {
	if st := b.txState(ctx); st != nil {
		return fn(st)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.st)
}

// RunInTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds. All transactions are serialized, so lockKey is only
// informational here. Nested calls join the outer transaction.
func (b *Backend) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if b.txState(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	scratch := b.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, &memTx{owner: b, st: scratch})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	b.st = scratch
	return nil
}

// Reset drops all data. Used by tests.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st = newState()
}

func (b *Backend) Devices() *DeviceStore         { return &DeviceStore{b: b} }
func (b *Backend) Groups() *GroupStore           { return &GroupStore{b: b} }
func (b *Backend) Memberships() *MembershipStore { return &MembershipStore{b: b} }
func (b *Backend) Migrations() *MigrationStore   { return &MigrationStore{b: b} }
func (b *Backend) Ledger() *LedgerStore          { return &LedgerStore{b: b} }
func (b *Backend) Locations() *LocationStore     { return &LocationStore{b: b} }
