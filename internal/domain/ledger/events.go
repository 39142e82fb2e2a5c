package ledger

import (
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeStockLevel = "StockLevel"

// Event type constants
const (
	EventTypeStockReceived = "StockReceived"
	EventTypeStockConsumed = "StockConsumed"
	EventTypeStockAdjusted = "StockAdjusted"
	EventTypeLotsRestored  = "LotsRestored"
)

// StockMovedEvent is raised after a committed ledger mutation on one branch/product
type StockMovedEvent struct {
	shared.BaseDomainEvent
	BranchID  uuid.UUID `json:"branch_id"`
	ProductID uuid.UUID `json:"product_id"`
	Kind      EntryKind `json:"kind"`
	QtyDelta  int64     `json:"qty_delta"`
	QtyOnHand int64     `json:"qty_on_hand"`
	Draws     []LotDraw `json:"draws,omitempty"`
	SourceRef string    `json:"source_ref,omitempty"`
}

// NewStockMovedEvent creates the event for a level after a mutation of delta
func NewStockMovedEvent(eventType string, level *StockLevel, kind EntryKind, delta int64, draws []LotDraw, sourceRef string) *StockMovedEvent {
	return &StockMovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeStockLevel, level.ID, level.TenantID),
		BranchID:        level.BranchID,
		ProductID:       level.ProductID,
		Kind:            kind,
		QtyDelta:        delta,
		QtyOnHand:       level.QtyOnHand,
		Draws:           draws,
		SourceRef:       sourceRef,
	}
}
