package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; their index+1 is the schema version.
// Never edit an applied entry, append a new one.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		id UUID PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		owner_user_id UUID NULL,
		registration_group_id TEXT NULL,
		last_seen_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS devices_registration_group_idx ON devices (registration_group_id);
	CREATE INDEX IF NOT EXISTS devices_owner_idx ON devices (owner_user_id);

	CREATE TABLE IF NOT EXISTS locations (
		id BIGSERIAL PRIMARY KEY,
		device_id UUID NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
		captured_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS locations_device_captured_idx ON locations (device_id, captured_at DESC);`,

	`CREATE TABLE IF NOT EXISTS groups (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		owner_user_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS groups_name_lower_key ON groups (lower(name));

	CREATE TABLE IF NOT EXISTS group_members (
		group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id UUID NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member')),
		joined_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (group_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS device_group_memberships (
		id UUID PRIMARY KEY,
		device_id UUID NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		added_by_user_id UUID NOT NULL,
		added_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT device_group_memberships_device_group_key UNIQUE (device_id, group_id)
	);
	CREATE INDEX IF NOT EXISTS device_group_memberships_group_added_idx ON device_group_memberships (group_id, added_at);`,

	`CREATE TABLE IF NOT EXISTS registration_group_migrations (
		registration_group_id TEXT PRIMARY KEY,
		authenticated_group_id UUID NOT NULL,
		migration_id UUID NOT NULL UNIQUE,
		migrated_by UUID NOT NULL,
		migrated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS migration_audit_logs (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		registration_group_id TEXT NOT NULL,
		authenticated_group_id UUID NULL,
		devices_migrated INTEGER NOT NULL DEFAULT 0,
		device_ids UUID[] NOT NULL DEFAULT '{}',
		status TEXT NOT NULL CHECK (status IN ('success', 'failed', 'partial')),
		error_message TEXT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS migration_audit_logs_user_idx ON migration_audit_logs (user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS migration_audit_logs_status_idx ON migration_audit_logs (status, created_at DESC);
	CREATE INDEX IF NOT EXISTS migration_audit_logs_created_idx ON migration_audit_logs (created_at DESC);

	CREATE OR REPLACE FUNCTION reject_migration_audit_log_change() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'migration_audit_logs is append-only';
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS migration_audit_logs_immutable ON migration_audit_logs;
	CREATE TRIGGER migration_audit_logs_immutable
		BEFORE UPDATE OR DELETE ON migration_audit_logs
		FOR EACH ROW EXECUTE FUNCTION reject_migration_audit_log_change();

	CREATE TABLE IF NOT EXISTS ledger_outbox (
		id UUID PRIMARY KEY,
		migration_id UUID NOT NULL REFERENCES migration_audit_logs(id),
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ NULL
	);
	CREATE INDEX IF NOT EXISTS ledger_outbox_pending_idx ON ledger_outbox (created_at) WHERE published_at IS NULL;`,
}

// schemaLockKey serializes Migrate across replicas starting at once.
const schemaLockKey = 7420051

// Migrate applies pending schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("lock schema: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, schemaLockKey)
	}()

	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		sqlTx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		if _, err := sqlTx.ExecContext(ctx, migrations[i]); err != nil {
			_ = sqlTx.Rollback()
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := sqlTx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			_ = sqlTx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}
	return nil
}
