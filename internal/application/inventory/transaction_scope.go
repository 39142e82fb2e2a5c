package inventory

import (
	"context"

	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/transfer"
)

// TransactionScope provides transactional access to the core repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs fn within one serializable transaction. If fn returns an
	// error the transaction is rolled back. Implementations may run fn more
	// than once when the database reports a serialization failure, so fn must
	// not leak side effects outside the repositories it is given.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all core repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Lock order inside one transaction: stock level rows first (GetForUpdate,
// products in ascending id order when several are touched), then their lots.
type TransactionalRepositories interface {
	Lots() ledger.LotRepository
	Entries() ledger.EntryRepository
	Levels() ledger.LevelRepository
	Transfers() transfer.Repository
	Rules() approval.RuleRepository
	Approvals() approval.RecordRepository
	Idempotency() IdempotencyRepository
}
