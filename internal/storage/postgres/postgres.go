// Package postgres implements the storage ports on PostgreSQL through
// database/sql. The pgx stdlib driver is the default; lib/pq is accepted as
// an alternate driver name.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	DriverPGX = "pgx"
	DriverPQ  = "postgres"

	defaultTxTimeout = 10 * time.Second
)

// Open connects and pings the database.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverPGX
	}
	if driver != DriverPGX && driver != DriverPQ {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Backend groups the PostgreSQL stores over one connection pool.
type Backend struct {
	db        *sql.DB
	txTimeout time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithTxTimeout bounds transactions started without a deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.txTimeout = d
		}
	}
}

func New(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{db: db, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DB exposes the pool for health checks.
func (b *Backend) DB() *sql.DB { return b.db }

func (b *Backend) Devices() *DeviceStore         { return &DeviceStore{db: b.db} }
func (b *Backend) Groups() *GroupStore           { return &GroupStore{db: b.db} }
func (b *Backend) Memberships() *MembershipStore { return &MembershipStore{db: b.db} }
func (b *Backend) Migrations() *MigrationStore   { return &MigrationStore{db: b.db} }
func (b *Backend) Ledger() *LedgerStore          { return &LedgerStore{db: b.db} }
func (b *Backend) Locations() *LocationStore     { return &LocationStore{db: b.db} }

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
