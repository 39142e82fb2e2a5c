package transfer

import (
	"time"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/google/uuid"
)

// Item is one product line of a transfer.
// Invariants: QtyApproved <= QtyRequested, QtyShipped <= QtyApproved,
// QtyReceived <= QtyShipped and QtyShipped == sum of shipment batch quantities.
type Item struct {
	ID              uuid.UUID
	TransferID      uuid.UUID
	ProductID       uuid.UUID
	QtyRequested    int64
	QtyApproved     *int64
	QtyShipped      int64
	QtyReceived     int64
	ShipmentBatches []ShipmentBatch
	Receipts        []ReceiptBatch
}

// ShipmentBatch is one act of shipping part of an item, with the exact lots drawn
type ShipmentBatch struct {
	ID               uuid.UUID
	BatchNumber      int
	Qty              int64
	ShippedAt        time.Time
	ShippedByActorID uuid.UUID
	LotsConsumed     []ledger.LotDraw
}

// ReceiptBatch is one act of receiving part of an item into a destination lot
type ReceiptBatch struct {
	ID                uuid.UUID
	BatchNumber       int
	Qty               int64
	LotID             uuid.UUID
	UnitCost          *int64
	ReceivedAt        time.Time
	ReceivedByActorID uuid.UUID
}

// ItemLine is the requested shape of a new item
type ItemLine struct {
	ProductID uuid.UUID
	Qty       int64
}

func newItem(transferID uuid.UUID, line ItemLine) *Item {
	return &Item{
		ID:           uuid.New(),
		TransferID:   transferID,
		ProductID:    line.ProductID,
		QtyRequested: line.Qty,
	}
}

// Approved returns the approved quantity, 0 before review
func (i *Item) Approved() int64 {
	if i.QtyApproved == nil {
		return 0
	}
	return *i.QtyApproved
}

// RemainingToShip returns the approved quantity not shipped yet
func (i *Item) RemainingToShip() int64 {
	return i.Approved() - i.QtyShipped
}

// InTransit returns the shipped quantity not received yet
func (i *Item) InTransit() int64 {
	return i.QtyShipped - i.QtyReceived
}

// IsFullyReceived reports whether the whole approved quantity arrived
func (i *Item) IsFullyReceived() bool {
	return i.QtyReceived == i.Approved()
}

// ShippedDraws returns every lot draw over all shipment batches
func (i *Item) ShippedDraws() []ledger.LotDraw {
	var draws []ledger.LotDraw
	for _, b := range i.ShipmentBatches {
		draws = append(draws, b.LotsConsumed...)
	}
	return draws
}

// ReceivedLots returns the destination lots this item was received into
func (i *Item) ReceivedLots() []ledger.LotDraw {
	draws := make([]ledger.LotDraw, 0, len(i.Receipts))
	for _, r := range i.Receipts {
		draws = append(draws, ledger.LotDraw{LotID: r.LotID, Qty: r.Qty, UnitCost: r.UnitCost})
	}
	return ledger.MergeDraws(draws)
}

// ShippedCost returns the weighted average unit cost over all shipped lots.
// It is nil when none of those lots carried a cost.
func (i *Item) ShippedCost() *int64 {
	draws := i.ShippedDraws()
	for _, d := range draws {
		if d.UnitCost != nil {
			cost := ledger.WeightedAverageCost(draws)
			return &cost
		}
	}
	return nil
}
