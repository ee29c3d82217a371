package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/config"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage/memory"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage/postgres"
)

// backend is the set of stores the services run on, whichever database
// holds them.
type backend struct {
	name        string
	tx          storage.TxRunner
	devices     storage.DeviceStore
	groups      storage.GroupStore
	memberships storage.MembershipStore
	migrations  storage.MigrationStore
	ledger      storage.LedgerStore
	outbox      storage.OutboxStore
	locations   storage.LocationStore
	ping        func(ctx context.Context) error
	close       func() error
}

// openBackend selects PostgreSQL when a database URL is configured and the
// in-memory backend otherwise.
func openBackend(ctx context.Context, cfg config.Database, log *slog.Logger) (*backend, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory storage")
		mem := memory.New()
		ledgerStore := mem.Ledger()
		return &backend{
			name:        "memory",
			tx:          mem,
			devices:     mem.Devices(),
			groups:      mem.Groups(),
			memberships: mem.Memberships(),
			migrations:  mem.Migrations(),
			ledger:      ledgerStore,
			outbox:      ledgerStore,
			locations:   mem.Locations(),
			ping:        func(context.Context) error { return nil },
			close:       func() error { return nil },
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.Driver, cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("connected to postgres", "driver", cfg.Driver)
	return postgresBackend(db), nil
}

func postgresBackend(db *sql.DB) *backend {
	pg := postgres.New(db)
	ledgerStore := pg.Ledger()
	return &backend{
		name:        "postgres",
		tx:          pg,
		devices:     pg.Devices(),
		groups:      pg.Groups(),
		memberships: pg.Memberships(),
		migrations:  pg.Migrations(),
		ledger:      ledgerStore,
		outbox:      ledgerStore,
		locations:   pg.Locations(),
		ping:        db.PingContext,
		close:       db.Close,
	}
}
