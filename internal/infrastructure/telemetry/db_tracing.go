package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type dbContextKey string

const queryStartKey dbContextKey = "stockflow_query_start"

// DBTracingConfig controls SQL spans
type DBTracingConfig struct {
	Enabled        bool
	DBName         string
	WithVariables  bool
	SlowQueryAbove time.Duration
}

// RegisterDBTracing installs the otelgorm plugin and a slow-query logger on db
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.WithVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if cfg.SlowQueryAbove <= 0 {
		return nil
	}

	start := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey, time.Now())
		}
	}
	finish := func(tx *gorm.DB) {
		if tx.Statement.Context == nil {
			return
		}
		began, ok := tx.Statement.Context.Value(queryStartKey).(time.Time)
		if !ok {
			return
		}
		if elapsed := time.Since(began); elapsed > cfg.SlowQueryAbove {
			logger.Warn("Slow query",
				zap.String("table", tx.Statement.Table),
				zap.Duration("elapsed", elapsed),
				zap.Int64("rows", tx.Statement.RowsAffected),
				zap.String("trace_id", GetTraceID(tx.Statement.Context)),
			)
		}
	}

	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("stockflow:start_create", start); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("stockflow:slow_create", finish); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("stockflow:start_query", start); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("stockflow:slow_query", finish); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("stockflow:start_update", start); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("stockflow:slow_update", finish); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("stockflow:start_raw", start); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("stockflow:slow_raw", finish)
}
