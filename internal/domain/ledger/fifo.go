package ledger

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LotDraw records how much was taken from (or returned to) one lot
type LotDraw struct {
	LotID    uuid.UUID `json:"lot_id"`
	Qty      int64     `json:"qty"`
	UnitCost *int64    `json:"unit_cost,omitempty"`
}

// fifoLess orders lots by receivedAt, then createdAt, then id. The id
// tie-break keeps the order deterministic when timestamps collide.
func fifoLess(a, b *StockLot) bool {
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// SortFIFO sorts lots oldest first
func SortFIFO(lots []*StockLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		return fifoLess(lots[i], lots[j])
	})
}

// DrawFIFO drains qty from lots oldest first, mutating the lots it touches.
// Nothing is drawn unless the open lots cover the full quantity.
func DrawFIFO(lots []*StockLot, qty int64) ([]LotDraw, error) {
	if qty <= 0 {
		return nil, ErrNonPositiveQuantity
	}

	open := make([]*StockLot, 0, len(lots))
	var available int64
	for _, lot := range lots {
		if lot.IsOpen() {
			open = append(open, lot)
			available += lot.QtyRemaining
		}
	}
	if available < qty {
		return nil, InsufficientStock(qty, available)
	}
	SortFIFO(open)

	draws := make([]LotDraw, 0, 2)
	remaining := qty
	for _, lot := range open {
		if remaining == 0 {
			break
		}
		take := lot.Draw(remaining)
		if take == 0 {
			continue
		}
		draws = append(draws, LotDraw{LotID: lot.ID, Qty: take, UnitCost: lot.UnitCost})
		remaining -= take
	}
	return draws, nil
}

// WeightedAverageCost returns round(sum(qty*unitCost) / sum(qty)) over the
// draws with a known cost. Draws without cost are excluded from both sums.
// Returns 0 when no costed quantity exists.
func WeightedAverageCost(draws []LotDraw) int64 {
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, d := range draws {
		if d.UnitCost == nil || d.Qty <= 0 {
			continue
		}
		q := decimal.NewFromInt(d.Qty)
		totalQty = totalQty.Add(q)
		totalCost = totalCost.Add(q.Mul(decimal.NewFromInt(*d.UnitCost)))
	}
	if totalQty.IsZero() {
		return 0
	}
	return totalCost.DivRound(totalQty, 0).IntPart()
}

// MergeDraws sums draws per lot, keeping first-seen order
func MergeDraws(draws []LotDraw) []LotDraw {
	index := make(map[uuid.UUID]int, len(draws))
	merged := make([]LotDraw, 0, len(draws))
	for _, d := range draws {
		if i, ok := index[d.LotID]; ok {
			merged[i].Qty += d.Qty
			continue
		}
		index[d.LotID] = len(merged)
		merged = append(merged, d)
	}
	return merged
}

// TotalQty sums the quantity of draws
func TotalQty(draws []LotDraw) int64 {
	var total int64
	for _, d := range draws {
		total += d.Qty
	}
	return total
}
