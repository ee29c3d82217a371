package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	txcontext "github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/tx"
)

// RunInTx runs fn in a SERIALIZABLE transaction. When lockKey is set, a
// session advisory lock on the key is taken on the same connection before
// the transaction begins, so the transaction's snapshot already includes
// whatever the previous lock holder committed.
func (b *Backend) RunInTx(ctx context.Context, lockKey string, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.txTimeout)
		defer cancel()
	}

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", classify(err))
	}
	defer conn.Close()

	if lockKey != "" {
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", classify(err))
		}
		defer releaseLock(ctx, conn, lockKey)
	}

	sqlTx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(txcontext.WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	committed = true
	return nil
}

// releaseLock unlocks on a context that survives the caller's cancellation.
// If the unlock fails the connection is discarded, which ends the session
// and with it the lock.
func releaseLock(ctx context.Context, conn *sql.Conn, lockKey string) {
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, lockKey); err != nil {
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}
