package inventory

import (
	"time"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/google/uuid"
)

// ReceiveStockRequest represents a request to receive stock into a new lot
type ReceiveStockRequest struct {
	BranchID   uuid.UUID  `json:"branch_id" binding:"required"`
	ProductID  uuid.UUID  `json:"product_id" binding:"required"`
	Quantity   int64      `json:"quantity" binding:"required,gt=0"`
	UnitCost   *int64     `json:"unit_cost,omitempty" binding:"omitempty,gte=0"` // minor units
	SourceRef  string     `json:"source_ref,omitempty" binding:"max=100"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`

	IdempotencyKey string `json:"-"`
}

// ConsumeStockRequest represents a request to consume stock oldest lot first
type ConsumeStockRequest struct {
	BranchID   uuid.UUID  `json:"branch_id" binding:"required"`
	ProductID  uuid.UUID  `json:"product_id" binding:"required"`
	Quantity   int64      `json:"quantity" binding:"required,gt=0"`
	Reason     string     `json:"reason,omitempty" binding:"max=255"`
	SourceRef  string     `json:"source_ref,omitempty" binding:"max=100"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`

	IdempotencyKey string `json:"-"`
}

// AdjustStockRequest represents a signed stock correction. A positive delta
// opens a lot at UnitCost; a negative one drains lots in FIFO order.
type AdjustStockRequest struct {
	BranchID   uuid.UUID  `json:"branch_id" binding:"required"`
	ProductID  uuid.UUID  `json:"product_id" binding:"required"`
	QtyDelta   int64      `json:"qty_delta" binding:"required"`
	UnitCost   *int64     `json:"unit_cost,omitempty" binding:"omitempty,gte=0"`
	Reason     string     `json:"reason" binding:"required,max=255"`
	SourceRef  string     `json:"source_ref,omitempty" binding:"max=100"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`

	IdempotencyKey string `json:"-"`
}

// StockLevelFilter selects levels of one branch
type StockLevelFilter struct {
	BranchID  uuid.UUID  `form:"branch_id" binding:"required"`
	ProductID *uuid.UUID `form:"product_id"`
}

// LotFilter selects lots of one branch
type LotFilter struct {
	BranchID  uuid.UUID  `form:"branch_id" binding:"required"`
	ProductID *uuid.UUID `form:"product_id"`
	OpenOnly  bool       `form:"open_only"`
	Limit     int        `form:"limit" binding:"omitempty,min=1,max=500"`
}

// LedgerEntryFilter selects ledger entries of one branch
type LedgerEntryFilter struct {
	BranchID  uuid.UUID  `form:"branch_id" binding:"required"`
	ProductID *uuid.UUID `form:"product_id"`
	LotID     *uuid.UUID `form:"lot_id"`
	Limit     int        `form:"limit" binding:"omitempty,min=1,max=500"`
}

// StockLevelResponse represents a stock level in API responses
type StockLevelResponse struct {
	ID           uuid.UUID `json:"id"`
	BranchID     uuid.UUID `json:"branch_id"`
	ProductID    uuid.UUID `json:"product_id"`
	QtyOnHand    int64     `json:"qty_on_hand"`
	QtyAllocated int64     `json:"qty_allocated"`
	QtyAvailable int64     `json:"qty_available"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LotResponse represents a stock lot in API responses
type LotResponse struct {
	ID           uuid.UUID `json:"id"`
	BranchID     uuid.UUID `json:"branch_id"`
	ProductID    uuid.UUID `json:"product_id"`
	QtyReceived  int64     `json:"qty_received"`
	QtyRemaining int64     `json:"qty_remaining"`
	UnitCost     *int64    `json:"unit_cost,omitempty"`
	SourceRef    string    `json:"source_ref,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// LotDrawResponse represents the quantity taken from or returned to one lot
type LotDrawResponse struct {
	LotID    uuid.UUID `json:"lot_id"`
	Qty      int64     `json:"qty"`
	UnitCost *int64    `json:"unit_cost,omitempty"`
}

// LedgerEntryResponse represents a ledger entry in API responses
type LedgerEntryResponse struct {
	ID         uuid.UUID  `json:"id"`
	BranchID   uuid.UUID  `json:"branch_id"`
	ProductID  uuid.UUID  `json:"product_id"`
	LotID      *uuid.UUID `json:"lot_id,omitempty"`
	Kind       string     `json:"kind"`
	QtyDelta   int64      `json:"qty_delta"`
	Reason     string     `json:"reason,omitempty"`
	SourceRef  string     `json:"source_ref,omitempty"`
	ActorID    uuid.UUID  `json:"actor_id"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// StockMovementResponse is the result of receive, consume and adjust
type StockMovementResponse struct {
	Level StockLevelResponse `json:"level"`
	// Lot is the lot opened by a receipt or positive adjustment
	Lot   *LotResponse      `json:"lot,omitempty"`
	Draws []LotDrawResponse `json:"draws"`
}

// ToStockLevelResponse converts a domain stock level
func ToStockLevelResponse(l *ledger.StockLevel) StockLevelResponse {
	return StockLevelResponse{
		ID:           l.ID,
		BranchID:     l.BranchID,
		ProductID:    l.ProductID,
		QtyOnHand:    l.QtyOnHand,
		QtyAllocated: l.QtyAllocated,
		QtyAvailable: l.Available(),
		UpdatedAt:    l.UpdatedAt,
	}
}

// ToLotResponse converts a domain stock lot
func ToLotResponse(l *ledger.StockLot) LotResponse {
	return LotResponse{
		ID:           l.ID,
		BranchID:     l.BranchID,
		ProductID:    l.ProductID,
		QtyReceived:  l.QtyReceived,
		QtyRemaining: l.QtyRemaining,
		UnitCost:     l.UnitCost,
		SourceRef:    l.SourceRef,
		ReceivedAt:   l.ReceivedAt,
		CreatedAt:    l.CreatedAt,
	}
}

// ToLotDrawResponses converts lot draws
func ToLotDrawResponses(draws []ledger.LotDraw) []LotDrawResponse {
	out := make([]LotDrawResponse, 0, len(draws))
	for _, d := range draws {
		out = append(out, LotDrawResponse{LotID: d.LotID, Qty: d.Qty, UnitCost: d.UnitCost})
	}
	return out
}

// ToLedgerEntryResponse converts a ledger entry
func ToLedgerEntryResponse(e *ledger.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:         e.ID,
		BranchID:   e.BranchID,
		ProductID:  e.ProductID,
		LotID:      e.LotID,
		Kind:       e.Kind.String(),
		QtyDelta:   e.QtyDelta,
		Reason:     e.Reason,
		SourceRef:  e.SourceRef,
		ActorID:    e.ActorID,
		OccurredAt: e.OccurredAt,
	}
}

func toMovementResponse(m *Movement) StockMovementResponse {
	resp := StockMovementResponse{
		Level: ToStockLevelResponse(m.Level),
		Draws: ToLotDrawResponses(m.Draws),
	}
	if m.Lot != nil {
		lot := ToLotResponse(m.Lot)
		resp.Lot = &lot
	}
	return resp
}
