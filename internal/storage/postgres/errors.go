package postgres

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

// SQLSTATE codes this package reacts to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
)

// sqlState extracts the SQLSTATE from either driver's error type.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// classify wraps driver errors with the matching sentinel so services can
// branch on errors.Is without knowing the driver.
func classify(err error) error {
	if err == nil {
		return nil
	}
	code := sqlState(err)
	switch {
	case code == codeUniqueViolation:
		return fmt.Errorf("%w: %w", sentinel.ErrAlreadyUsed, err)
	case code == codeForeignKeyViolation:
		return fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	case code == codeSerializationFailure, code == codeDeadlockDetected:
		return fmt.Errorf("%w: %w", sentinel.ErrTransient, err)
	case strings.HasPrefix(code, "08"), code == codeAdminShutdown:
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
