package ledger

import (
	"time"

	"github.com/google/uuid"
)

// StockLevel is the per (tenant, branch, product) aggregate row.
// QtyOnHand always equals the sum of QtyRemaining over the open lots and is
// written in the same transaction as every lot mutation.
type StockLevel struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	BranchID     uuid.UUID
	ProductID    uuid.UUID
	QtyOnHand    int64
	QtyAllocated int64
	UpdatedAt    time.Time
}

// NewStockLevel creates an empty level row
func NewStockLevel(tenantID, branchID, productID uuid.UUID) *StockLevel {
	return &StockLevel{
		ID:        uuid.New(),
		TenantID:  tenantID,
		BranchID:  branchID,
		ProductID: productID,
		UpdatedAt: time.Now().UTC(),
	}
}

// Available returns on-hand stock not allocated to anything else
func (s *StockLevel) Available() int64 {
	return s.QtyOnHand - s.QtyAllocated
}

// Increase adds qty to on-hand stock
func (s *StockLevel) Increase(qty int64) error {
	if qty <= 0 {
		return ErrNonPositiveQuantity
	}
	s.QtyOnHand += qty
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Decrease removes qty from on-hand stock; on-hand never goes negative
func (s *StockLevel) Decrease(qty int64) error {
	if qty <= 0 {
		return ErrNonPositiveQuantity
	}
	if qty > s.QtyOnHand {
		return InsufficientStock(qty, s.QtyOnHand)
	}
	s.QtyOnHand -= qty
	s.UpdatedAt = time.Now().UTC()
	return nil
}
