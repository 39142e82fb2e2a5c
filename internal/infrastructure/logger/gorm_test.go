package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newGorm(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), logs
}

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogMode(t *testing.T) {
	gl, _ := newGorm(gormlogger.Info, WithSlowThreshold(time.Second))
	changed, ok := gl.LogMode(gormlogger.Error).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Info, gl.level, "original is unchanged")
	assert.Equal(t, gormlogger.Error, changed.level)
	assert.Equal(t, time.Second, changed.slowThreshold)
}

func TestGormLogger_Messages(t *testing.T) {
	gl, logs := newGorm(gormlogger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "suppressed %d", 1)
	gl.Warn(ctx, "pool at %d%%", 90)
	gl.Error(ctx, "lost connection to %s", "primary")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "pool at 90%", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "lost connection to primary", entries[1].Message)
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := context.Background()

	t.Run("error", func(t *testing.T) {
		gl, logs := newGorm(gormlogger.Error)
		gl.Trace(ctx, time.Now(), statement("UPDATE lots SET qty_remaining = 0", 0), errors.New("serialization failure"))

		entries := logs.FilterMessage("SQL error").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "UPDATE lots SET qty_remaining = 0", fields["sql"])
		assert.Equal(t, "serialization failure", fields["error"])
	})

	t.Run("record not found is dropped", func(t *testing.T) {
		gl, logs := newGorm(gormlogger.Info)
		gl.Trace(ctx, time.Now(), statement("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Empty(t, logs.FilterMessage("SQL error").All())
		assert.Len(t, logs.FilterMessage("SQL").All(), 1, "falls through to the debug trace")
	})

	t.Run("record not found on request", func(t *testing.T) {
		gl, logs := newGorm(gormlogger.Error, WithRecordNotFound())
		gl.Trace(ctx, time.Now(), statement("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Len(t, logs.FilterMessage("SQL error").All(), 1)
	})

	t.Run("slow", func(t *testing.T) {
		gl, logs := newGorm(gormlogger.Warn, WithSlowThreshold(10*time.Millisecond))
		gl.Trace(ctx, time.Now().Add(-50*time.Millisecond), statement("SELECT * FROM lots", 3), nil)

		entries := logs.FilterMessage("Slow SQL").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, int64(3), entries[0].ContextMap()["rows"])
	})

	t.Run("slow disabled", func(t *testing.T) {
		gl, logs := newGorm(gormlogger.Warn, WithSlowThreshold(0))
		gl.Trace(ctx, time.Now().Add(-time.Hour), statement("SELECT 1", 1), nil)
		assert.Zero(t, logs.Len())
	})

	t.Run("info traces at debug without row count", func(t *testing.T) {
		gl, logs := newGorm(gormlogger.Info)
		gl.Trace(ctx, time.Now(), statement("BEGIN", -1), nil)

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.NotContains(t, entries[0].ContextMap(), "rows")
	})

	t.Run("silent", func(t *testing.T) {
		gl, logs := newGorm(gormlogger.Silent)
		gl.Trace(ctx, time.Now(), statement("SELECT 1", 1), errors.New("x"))
		assert.Zero(t, logs.Len())
	})
}

func TestGormLogger_TraceCarriesRequestID(t *testing.T) {
	gl, logs := newGorm(gormlogger.Info)
	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-sql")

	gl.Trace(ctx, time.Now(), statement("SELECT 1", 1), nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-sql", logs.All()[0].ContextMap()["request_id"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"ERROR":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"unknown": gormlogger.Warn,
		"":        gormlogger.Warn,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapGormLogLevel(in), in)
	}
}
