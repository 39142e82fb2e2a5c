package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/erp/stockflow/internal/infrastructure/config"
	"github.com/erp/stockflow/internal/testutil"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDatabase_PingStatsClose(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	d := &Database{DB: mockDB.DB}

	require.NoError(t, d.Ping(context.Background()))

	stats, err := d.Stats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)

	mockDB.Mock.ExpectClose()
	require.NoError(t, d.Close())
	mockDB.ExpectationsWereMet(t)
}

func TestIsolationLevel(t *testing.T) {
	tests := []struct {
		name string
		want sql.IsolationLevel
	}{
		{config.IsolationSerializable, sql.LevelSerializable},
		{config.IsolationRepeatableRead, sql.LevelRepeatableRead},
		{config.IsolationReadCommitted, sql.LevelReadCommitted},
		{"", sql.LevelSerializable},
		{"chaos", sql.LevelSerializable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsolationLevel(tt.name))
		})
	}
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsSerializationFailure(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	assert.True(t, IsSerializationFailure(&pq.Error{Code: "55P03"}))
	assert.True(t, IsSerializationFailure(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsSerializationFailure(errors.New("boom")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	assert.False(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil, nil))

	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound, nil), shared.ErrNotFound)
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound, transfer.ErrTransferNotFound), transfer.ErrTransferNotFound)

	transient := translate(&pgconn.PgError{Code: "40001"}, nil)
	assert.True(t, shared.IsTransient(transient))

	timeout := translate(fmt.Errorf("query: %w", context.DeadlineExceeded), nil)
	assert.True(t, shared.IsTransient(timeout))

	dup := translate(gorm.ErrDuplicatedKey, nil)
	assert.ErrorIs(t, dup, shared.ErrAlreadyExists)
	assert.ErrorIs(t, dup, gorm.ErrDuplicatedKey)

	domain := shared.ErrInsufficientStock
	assert.Same(t, domain, translate(domain, nil))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, translate(plain, nil))
}
