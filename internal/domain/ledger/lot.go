package ledger

import (
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// StockLot is one cost-bearing receipt of a product at a branch.
// QtyReceived never changes; QtyRemaining only grows again through Restore.
type StockLot struct {
	shared.BaseEntity
	TenantID     uuid.UUID
	BranchID     uuid.UUID
	ProductID    uuid.UUID
	QtyReceived  int64
	QtyRemaining int64
	UnitCost     *int64 // minor units, nil when unknown
	SourceRef    string
	ReceivedAt   time.Time
}

// NewStockLot creates a full lot
func NewStockLot(tenantID, branchID, productID uuid.UUID, qty int64, unitCost *int64, sourceRef string, receivedAt time.Time) (*StockLot, error) {
	if qty <= 0 {
		return nil, ErrNonPositiveQuantity
	}
	if unitCost != nil && *unitCost < 0 {
		return nil, shared.NewValidationError("INVALID_UNIT_COST", "Unit cost cannot be negative")
	}
	if tenantID == uuid.Nil || branchID == uuid.Nil || productID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_LOT_SCOPE", "Tenant, branch and product are required")
	}
	base := shared.NewBaseEntity()
	if receivedAt.IsZero() {
		receivedAt = base.CreatedAt
	}
	return &StockLot{
		BaseEntity:   base,
		TenantID:     tenantID,
		BranchID:     branchID,
		ProductID:    productID,
		QtyReceived:  qty,
		QtyRemaining: qty,
		UnitCost:     unitCost,
		SourceRef:    sourceRef,
		ReceivedAt:   receivedAt.UTC(),
	}, nil
}

// IsOpen returns true while the lot still holds stock
func (l *StockLot) IsOpen() bool {
	return l.QtyRemaining > 0
}

// Draw takes up to qty from the lot and returns how much was taken
func (l *StockLot) Draw(qty int64) int64 {
	take := min(qty, l.QtyRemaining)
	if take <= 0 {
		return 0
	}
	l.QtyRemaining -= take
	l.UpdatedAt = time.Now().UTC()
	return take
}

// Restore puts qty back into the lot; the lot can never hold more than it received
func (l *StockLot) Restore(qty int64) error {
	if qty <= 0 {
		return ErrNonPositiveQuantity
	}
	if l.QtyRemaining+qty > l.QtyReceived {
		return ErrLotOverRestore.WithMessage("lot %s would hold %d of %d received", l.ID, l.QtyRemaining+qty, l.QtyReceived)
	}
	l.QtyRemaining += qty
	l.UpdatedAt = time.Now().UTC()
	return nil
}
