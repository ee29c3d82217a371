package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	txcontext "github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/tx"
)

// LedgerStore persists migration_audit_logs and ledger_outbox.
type LedgerStore struct {
	db *sql.DB
}

// Append inserts the ledger row and its outbox row in one transaction,
// joining the caller's transaction when there is one.
func (s *LedgerStore) Append(ctx context.Context, entry domain.LedgerEntry, payload []byte) error {
	if sqlTx, ok := txcontext.From(ctx); ok {
		return appendEntry(ctx, sqlTx, entry, payload)
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append ledger entry: begin: %w", classify(err))
	}
	if err := appendEntry(ctx, sqlTx, entry, payload); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("append ledger entry: commit: %w", classify(err))
	}
	return nil
}

func appendEntry(ctx context.Context, q txcontext.Querier, entry domain.LedgerEntry, payload []byte) error {
	deviceIDs := make([]string, len(entry.DeviceIDs))
	for i, d := range entry.DeviceIDs {
		deviceIDs[i] = d.String()
	}
	var groupID uuid.NullUUID
	if entry.AuthenticatedGroupID != nil {
		groupID = uuid.NullUUID{UUID: uuid.UUID(*entry.AuthenticatedGroupID), Valid: true}
	}
	var errMsg sql.NullString
	if entry.ErrorMessage != "" {
		errMsg = sql.NullString{String: entry.ErrorMessage, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO migration_audit_logs
			(id, user_id, registration_group_id, authenticated_group_id, devices_migrated,
			 device_ids, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::uuid[], $7, $8, $9)
	`, uuid.UUID(entry.MigrationID), uuid.UUID(entry.UserID), entry.RegistrationGroupID.String(), groupID,
		entry.DevicesMigrated, pq.Array(deviceIDs), string(entry.Status), errMsg, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", classify(err))
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO ledger_outbox (id, migration_id, payload, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
	`, uuid.New(), uuid.UUID(entry.MigrationID), string(payload), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger outbox: %w", classify(err))
	}
	return nil
}

// Query returns matching entries newest first and the total match count.
func (s *LedgerStore) Query(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != nil {
		add("user_id = $%d", uuid.UUID(*filter.UserID))
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	q := txcontext.QuerierFrom(ctx, s.db)
	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM migration_audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", classify(err))
	}

	var limitArg any
	if filter.Limit > 0 {
		limitArg = filter.Limit
	}
	pageArgs := append(append([]any{}, args...), limitArg, filter.Offset)
	query := fmt.Sprintf(`
		SELECT id, user_id, registration_group_id, authenticated_group_id, devices_migrated,
			array_to_string(device_ids, ','), status, COALESCE(error_message, ''), created_at
		FROM migration_audit_logs%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := q.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query ledger entries: %w", classify(err))
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		var (
			migrationID, userID uuid.UUID
			groupID             uuid.NullUUID
			rg, deviceIDs       string
			status              string
			e                   domain.LedgerEntry
		)
		if err := rows.Scan(&migrationID, &userID, &rg, &groupID, &e.DevicesMigrated,
			&deviceIDs, &status, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("query ledger entries: scan: %w", err)
		}
		e.MigrationID = id.MigrationID(migrationID)
		e.UserID = id.UserID(userID)
		e.RegistrationGroupID = id.RegistrationGroupID(rg)
		e.Status = domain.LedgerStatus(status)
		if groupID.Valid {
			g := id.GroupID(groupID.UUID)
			e.AuthenticatedGroupID = &g
		}
		e.DeviceIDs, err = parseDeviceIDs(deviceIDs)
		if err != nil {
			return nil, 0, fmt.Errorf("query ledger entries: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query ledger entries: %w", classify(err))
	}
	return entries, total, nil
}

func parseDeviceIDs(joined string) ([]id.DeviceID, error) {
	if joined == "" {
		return nil, nil
	}
	parts := strings.Split(joined, ",")
	out := make([]id.DeviceID, 0, len(parts))
	for _, p := range parts {
		u, err := uuid.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("parse device id %q: %w", p, err)
		}
		out = append(out, id.DeviceID(u))
	}
	return out, nil
}

// PendingOutbox returns unpublished rows oldest first.
func (s *LedgerStore) PendingOutbox(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, migration_id, payload::text, created_at
		FROM ledger_outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.OutboxMessage
	for rows.Next() {
		var (
			rowID, migrationID uuid.UUID
			payload            string
			msg                domain.OutboxMessage
		)
		if err := rows.Scan(&rowID, &migrationID, &payload, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("list pending outbox: scan: %w", err)
		}
		msg.ID = rowID.String()
		msg.MigrationID = id.MigrationID(migrationID)
		msg.Payload = []byte(payload)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", classify(err))
	}
	return out, nil
}

func (s *LedgerStore) MarkOutboxPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE ledger_outbox SET published_at = $2
		WHERE id = ANY($1::uuid[]) AND published_at IS NULL
	`, pq.Array(ids), at)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", classify(err))
	}
	return nil
}
