package ledger

import (
	"context"

	"github.com/google/uuid"
)

// LotFilter narrows lot listings
type LotFilter struct {
	TenantID  uuid.UUID
	BranchID  uuid.UUID
	ProductID *uuid.UUID
	OpenOnly  bool
	Limit     int
}

// EntryFilter narrows ledger entry listings
type EntryFilter struct {
	TenantID  uuid.UUID
	BranchID  uuid.UUID
	ProductID *uuid.UUID
	LotID     *uuid.UUID
	Limit     int
}

// LotRepository defines persistence for stock lots
type LotRepository interface {
	// FindOpenForUpdate returns the open lots of one branch/product in FIFO
	// order, locked for the rest of the transaction
	FindOpenForUpdate(ctx context.Context, tenantID, branchID, productID uuid.UUID) ([]*StockLot, error)

	// FindByIDs returns the named lots without locking them
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*StockLot, error)

	// FindByIDsForUpdate locks and returns the named lots; missing ids are an error
	FindByIDsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*StockLot, error)

	// Create inserts a new lot
	Create(ctx context.Context, lot *StockLot) error

	// SaveRemaining persists QtyRemaining of lots already loaded in this transaction
	SaveRemaining(ctx context.Context, lots ...*StockLot) error

	// List returns lots in FIFO order
	List(ctx context.Context, filter LotFilter) ([]*StockLot, error)
}

// EntryRepository is the append-only ledger
type EntryRepository interface {
	// Append inserts entries; there is no update or delete
	Append(ctx context.Context, entries ...*LedgerEntry) error

	// List returns entries ordered by (occurred_at, id) descending
	List(ctx context.Context, filter EntryFilter) ([]*LedgerEntry, error)
}

// LevelRepository defines persistence for stock levels
type LevelRepository interface {
	// GetForUpdate locks the level row, creating an empty one when missing.
	// It is the first lock taken by every mutation of a branch/product.
	GetForUpdate(ctx context.Context, tenantID, branchID, productID uuid.UUID) (*StockLevel, error)

	// Save persists quantities of a level loaded with GetForUpdate
	Save(ctx context.Context, level *StockLevel) error

	// Find returns levels of a branch, optionally for one product
	Find(ctx context.Context, tenantID, branchID uuid.UUID, productID *uuid.UUID) ([]*StockLevel, error)
}
