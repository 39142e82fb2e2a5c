package persistence

import (
	"context"
	"errors"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// SQLSTATE codes the repositories react to
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateUniqueViolation      = "23505"
)

// sqlState extracts the SQLSTATE of a driver error. Both the pgx driver used
// by gorm and lib/pq (cmd/migrate) are recognised.
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

// IsSerializationFailure reports whether the database aborted the transaction
// in a way a fresh attempt may resolve
func IsSerializationFailure(err error) bool {
	switch sqlState(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return true
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) || sqlState(err) == sqlStateUniqueViolation {
		return true
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// translate maps driver errors onto the domain taxonomy. notFound is
// returned for gorm.ErrRecordNotFound; domain errors pass through unchanged.
func translate(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if notFound == nil {
			return shared.ErrNotFound
		}
		return notFound
	case IsSerializationFailure(err):
		return shared.NewTransientStorageError("serialization failure", err)
	case errors.Is(err, context.DeadlineExceeded):
		return shared.NewTransientStorageError("database timeout", err)
	case IsUniqueViolation(err):
		return shared.ErrAlreadyExists.WithCause(err)
	}
	return err
}
