package inventory

import (
	"bytes"
	"context"
	"sort"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// Movement is the outcome of one ledger mutation on one branch/product
type Movement struct {
	Before  ledger.StockLevel
	Level   *ledger.StockLevel
	Lot     *ledger.StockLot
	Draws   []ledger.LotDraw
	Entries []*ledger.LedgerEntry
}

// FIFOEngine applies lot arithmetic to the ledger store of one transaction.
// Every method locks the stock level row before touching lots.
type FIFOEngine struct {
	repos TransactionalRepositories
	fx    *Effects
}

// NewFIFOEngine binds an engine to a transaction and its effects
func NewFIFOEngine(repos TransactionalRepositories, fx *Effects) *FIFOEngine {
	return &FIFOEngine{repos: repos, fx: fx}
}

// Receive creates a lot of qty and a matching entry of kind RECEIPT or ADJUSTMENT
func (e *FIFOEngine) Receive(ctx context.Context, ec ledger.EntryContext, branchID, productID uuid.UUID, qty int64, unitCost *int64, kind ledger.EntryKind) (*Movement, error) {
	if qty <= 0 {
		return nil, ledger.ErrNonPositiveQuantity
	}
	level, err := e.repos.Levels().GetForUpdate(ctx, ec.TenantID, branchID, productID)
	if err != nil {
		return nil, err
	}
	m := &Movement{Before: *level, Level: level}

	lot, err := ledger.NewStockLot(ec.TenantID, branchID, productID, qty, unitCost, ec.SourceRef, ec.OccurredAt)
	if err != nil {
		return nil, err
	}
	if err := e.repos.Lots().Create(ctx, lot); err != nil {
		return nil, err
	}
	entry, err := ledger.NewLedgerEntry(ec, branchID, productID, &lot.ID, kind, qty)
	if err != nil {
		return nil, err
	}
	if err := e.repos.Entries().Append(ctx, entry); err != nil {
		return nil, err
	}
	if err := level.Increase(qty); err != nil {
		return nil, err
	}
	if err := e.repos.Levels().Save(ctx, level); err != nil {
		return nil, err
	}

	m.Lot = lot
	m.Draws = []ledger.LotDraw{{LotID: lot.ID, Qty: qty, UnitCost: unitCost}}
	m.Entries = []*ledger.LedgerEntry{entry}
	e.record(m, kind, qty, ec.SourceRef)
	return m, nil
}

// Consume drains qty oldest lot first, writing one entry per lot touched.
// kind is CONSUMPTION or ADJUSTMENT.
func (e *FIFOEngine) Consume(ctx context.Context, ec ledger.EntryContext, branchID, productID uuid.UUID, qty int64, kind ledger.EntryKind) (*Movement, error) {
	if qty <= 0 {
		return nil, ledger.ErrNonPositiveQuantity
	}
	level, err := e.repos.Levels().GetForUpdate(ctx, ec.TenantID, branchID, productID)
	if err != nil {
		return nil, err
	}
	if qty > level.QtyOnHand {
		return nil, ledger.InsufficientStock(qty, level.QtyOnHand)
	}
	m := &Movement{Before: *level, Level: level}

	lots, err := e.repos.Lots().FindOpenForUpdate(ctx, ec.TenantID, branchID, productID)
	if err != nil {
		return nil, err
	}
	draws, err := ledger.DrawFIFO(lots, qty)
	if err != nil {
		return nil, err
	}
	if err := e.applyDraws(ctx, ec, m, lots, draws, kind); err != nil {
		return nil, err
	}
	if err := level.Decrease(qty); err != nil {
		return nil, err
	}
	if err := e.repos.Levels().Save(ctx, level); err != nil {
		return nil, err
	}
	e.record(m, kind, -qty, ec.SourceRef)
	return m, nil
}

// DrawBack takes exact quantities out of named lots of one product, the way
// a reversal empties the lots a transfer receipt created. A lot that no
// longer holds its share fails the whole draw.
func (e *FIFOEngine) DrawBack(ctx context.Context, ec ledger.EntryContext, branchID, productID uuid.UUID, draws []ledger.LotDraw) (*Movement, error) {
	draws = ledger.MergeDraws(draws)
	qty := ledger.TotalQty(draws)
	if qty <= 0 {
		return nil, ledger.ErrNonPositiveQuantity
	}
	level, err := e.repos.Levels().GetForUpdate(ctx, ec.TenantID, branchID, productID)
	if err != nil {
		return nil, err
	}
	if qty > level.QtyOnHand {
		return nil, ledger.InsufficientStock(qty, level.QtyOnHand)
	}
	m := &Movement{Before: *level, Level: level}

	lots, err := e.repos.Lots().FindByIDsForUpdate(ctx, ec.TenantID, lotIDs(draws))
	if err != nil {
		return nil, err
	}
	byID := indexLots(lots)
	taken := make([]ledger.LotDraw, 0, len(draws))
	for _, d := range draws {
		lot, ok := byID[d.LotID]
		if !ok {
			return nil, ledger.ErrLotNotFound.WithMessage("lot %s not found", d.LotID)
		}
		if lot.BranchID != branchID || lot.ProductID != productID {
			return nil, ledger.ErrLotScopeMismatch
		}
		if lot.QtyRemaining < d.Qty {
			return nil, ledger.InsufficientStock(d.Qty, lot.QtyRemaining).WithMessage(
				"lot %s holds %d, cannot draw back %d", lot.ID, lot.QtyRemaining, d.Qty)
		}
		lot.Draw(d.Qty)
		taken = append(taken, ledger.LotDraw{LotID: lot.ID, Qty: d.Qty, UnitCost: lot.UnitCost})
	}
	if err := e.applyDraws(ctx, ec, m, lots, taken, ledger.EntryKindConsumption); err != nil {
		return nil, err
	}
	if err := level.Decrease(qty); err != nil {
		return nil, err
	}
	if err := e.repos.Levels().Save(ctx, level); err != nil {
		return nil, err
	}
	e.record(m, ledger.EntryKindConsumption, -qty, ec.SourceRef)
	return m, nil
}

// applyDraws persists the lots drawn from and appends one entry per draw
func (e *FIFOEngine) applyDraws(ctx context.Context, ec ledger.EntryContext, m *Movement, lots []*ledger.StockLot, draws []ledger.LotDraw, kind ledger.EntryKind) error {
	byID := indexLots(lots)
	touched := make([]*ledger.StockLot, 0, len(draws))
	entries := make([]*ledger.LedgerEntry, 0, len(draws))
	for _, d := range draws {
		lot := byID[d.LotID]
		touched = append(touched, lot)
		lotID := lot.ID
		entry, err := ledger.NewLedgerEntry(ec, lot.BranchID, lot.ProductID, &lotID, kind, -d.Qty)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	if err := e.repos.Lots().SaveRemaining(ctx, touched...); err != nil {
		return err
	}
	if err := e.repos.Entries().Append(ctx, entries...); err != nil {
		return err
	}
	m.Draws = draws
	m.Entries = entries
	return nil
}

// RestoreLots returns exact quantities to pre-existing lots of branchID,
// writing one REVERSAL entry per lot. Restores may span products; one
// Movement per product is returned in ascending product id order.
func (e *FIFOEngine) RestoreLots(ctx context.Context, ec ledger.EntryContext, branchID uuid.UUID, restores []ledger.LotDraw) ([]*Movement, error) {
	restores = ledger.MergeDraws(restores)
	if len(restores) == 0 {
		return nil, nil
	}
	for _, r := range restores {
		if r.Qty <= 0 {
			return nil, ledger.ErrNonPositiveQuantity
		}
	}
	ids := lotIDs(restores)

	// learn the products first so level rows are locked before the lots
	peek, err := e.repos.Lots().FindByIDs(ctx, ec.TenantID, ids)
	if err != nil {
		return nil, err
	}
	products := make(map[uuid.UUID][]ledger.LotDraw)
	peeked := indexLots(peek)
	for _, r := range restores {
		lot, ok := peeked[r.LotID]
		if !ok {
			return nil, ledger.ErrLotNotFound.WithMessage("lot %s not found", r.LotID)
		}
		if lot.BranchID != branchID {
			return nil, ledger.ErrLotScopeMismatch
		}
		products[lot.ProductID] = append(products[lot.ProductID], r)
	}
	order := sortedIDs(products)

	levels := make(map[uuid.UUID]*ledger.StockLevel, len(order))
	movements := make([]*Movement, 0, len(order))
	for _, productID := range order {
		level, err := e.repos.Levels().GetForUpdate(ctx, ec.TenantID, branchID, productID)
		if err != nil {
			return nil, err
		}
		levels[productID] = level
		movements = append(movements, &Movement{Before: *level, Level: level})
	}

	lots, err := e.repos.Lots().FindByIDsForUpdate(ctx, ec.TenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := indexLots(lots)
	for i, productID := range order {
		m := movements[i]
		var total int64
		touched := make([]*ledger.StockLot, 0, len(products[productID]))
		for _, r := range products[productID] {
			lot := byID[r.LotID]
			if lot == nil {
				return nil, ledger.ErrLotNotFound.WithMessage("lot %s not found", r.LotID)
			}
			if err := lot.Restore(r.Qty); err != nil {
				return nil, err
			}
			lotID := lot.ID
			entry, err := ledger.NewLedgerEntry(ec, branchID, productID, &lotID, ledger.EntryKindReversal, r.Qty)
			if err != nil {
				return nil, err
			}
			touched = append(touched, lot)
			m.Entries = append(m.Entries, entry)
			m.Draws = append(m.Draws, ledger.LotDraw{LotID: lot.ID, Qty: r.Qty, UnitCost: lot.UnitCost})
			total += r.Qty
		}
		if err := e.repos.Lots().SaveRemaining(ctx, touched...); err != nil {
			return nil, err
		}
		if err := e.repos.Entries().Append(ctx, m.Entries...); err != nil {
			return nil, err
		}
		if err := levels[productID].Increase(total); err != nil {
			return nil, err
		}
		if err := e.repos.Levels().Save(ctx, levels[productID]); err != nil {
			return nil, err
		}
		e.record(m, ledger.EntryKindReversal, total, ec.SourceRef)
	}
	return movements, nil
}

// WeightedAverageCost is the unit cost carried by a set of draws
func (e *FIFOEngine) WeightedAverageCost(draws []ledger.LotDraw) int64 {
	return ledger.WeightedAverageCost(draws)
}

func (e *FIFOEngine) record(m *Movement, kind ledger.EntryKind, delta int64, sourceRef string) {
	if e.fx == nil {
		return
	}
	e.fx.Publish(ledger.NewStockMovedEvent(eventTypeFor(kind), m.Level, kind, delta, m.Draws, sourceRef))
	e.fx.Measure(func(ctx context.Context, metrics *telemetry.StockMetrics) {
		metrics.LedgerMutation(ctx, kind.String(), delta)
	})
}

func eventTypeFor(kind ledger.EntryKind) string {
	switch kind {
	case ledger.EntryKindReceipt:
		return ledger.EventTypeStockReceived
	case ledger.EntryKindReversal:
		return ledger.EventTypeLotsRestored
	case ledger.EntryKindAdjustment:
		return ledger.EventTypeStockAdjusted
	}
	return ledger.EventTypeStockConsumed
}

func lotIDs(draws []ledger.LotDraw) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(draws))
	for _, d := range draws {
		ids = append(ids, d.LotID)
	}
	return ids
}

func indexLots(lots []*ledger.StockLot) map[uuid.UUID]*ledger.StockLot {
	byID := make(map[uuid.UUID]*ledger.StockLot, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}
	return byID
}

// SortIDs orders ids ascending, the order level rows are locked in
func SortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

func sortedIDs[V any](m map[uuid.UUID]V) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}
