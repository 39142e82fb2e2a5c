package persistence

import (
	"context"
	"database/sql"
	"math/rand/v2"
	"time"

	appinv "github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/erp/stockflow/internal/infrastructure/logger"
	"github.com/erp/stockflow/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TxConfig controls isolation and retry of a GormTransactionScope
type TxConfig struct {
	Isolation  sql.IsolationLevel
	MaxRetries int
	// Backoff is the base delay; attempt n waits up to Backoff*2^n plus jitter
	Backoff time.Duration
}

// DefaultTxConfig is serializable with five retries
func DefaultTxConfig() TxConfig {
	return TxConfig{Isolation: sql.LevelSerializable, MaxRetries: 5, Backoff: 20 * time.Millisecond}
}

// GormTransactionScope implements TransactionScope using GORM transactions.
// A transaction the database aborts with a serialization failure or deadlock
// is rolled back and run again from the start.
type GormTransactionScope struct {
	db      *gorm.DB
	cfg     TxConfig
	metrics *telemetry.StockMetrics
	sleep   func(context.Context, time.Duration) error
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, cfg TxConfig) *GormTransactionScope {
	return &GormTransactionScope{db: db, cfg: cfg, sleep: sleepCtx}
}

// SetMetrics sets the metrics that count retried attempts
func (s *GormTransactionScope) SetMetrics(metrics *telemetry.StockMetrics) {
	s.metrics = metrics
}

// Execute runs fn within one database transaction. If fn returns an error
// the transaction is rolled back; transient failures are retried up to
// MaxRetries times, after which ErrRetriesExhausted is returned.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.attempt(ctx, fn)
		if err == nil || !shared.IsTransient(err) {
			return err
		}
		if attempt >= s.cfg.MaxRetries {
			break
		}
		s.metrics.TxRetry(ctx)
		logger.L(ctx).Debug("Retrying transaction", zap.Int("attempt", attempt+1), zap.Error(err))
		if serr := s.sleep(ctx, s.backoff(attempt)); serr != nil {
			return shared.NewTransientStorageError("transaction cancelled during retry", serr)
		}
	}
	logger.L(ctx).Warn("Transaction retries exhausted", zap.Int("retries", s.cfg.MaxRetries), zap.Error(err))
	return shared.ErrRetriesExhausted.WithCause(err)
}

func (s *GormTransactionScope) attempt(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	}, &sql.TxOptions{Isolation: s.cfg.Isolation})
	return translate(err, nil)
}

func (s *GormTransactionScope) backoff(attempt int) time.Duration {
	if s.cfg.Backoff <= 0 {
		return 0
	}
	base := s.cfg.Backoff << min(attempt, 8)
	return base/2 + rand.N(base/2+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Repositories returns repositories bound to db outside any explicit
// transaction, for reads
func Repositories(db *gorm.DB) appinv.TransactionalRepositories {
	return &gormTransactionalRepositories{tx: db}
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) Lots() ledger.LotRepository {
	return NewGormLotRepository(r.tx)
}

func (r *gormTransactionalRepositories) Entries() ledger.EntryRepository {
	return NewGormEntryRepository(r.tx)
}

func (r *gormTransactionalRepositories) Levels() ledger.LevelRepository {
	return NewGormLevelRepository(r.tx)
}

func (r *gormTransactionalRepositories) Transfers() transfer.Repository {
	return NewGormTransferRepository(r.tx)
}

func (r *gormTransactionalRepositories) Rules() approval.RuleRepository {
	return NewGormRuleRepository(r.tx)
}

func (r *gormTransactionalRepositories) Approvals() approval.RecordRepository {
	return NewGormApprovalRecordRepository(r.tx)
}

func (r *gormTransactionalRepositories) Idempotency() appinv.IdempotencyRepository {
	return NewGormIdempotencyRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appinv.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appinv.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
