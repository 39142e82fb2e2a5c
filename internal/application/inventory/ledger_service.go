package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// Idempotency scopes of ledger mutations
const (
	ScopeReceiveStock = "inventory.receive"
	ScopeConsumeStock = "inventory.consume"
	ScopeAdjustStock  = "inventory.adjust"
)

const defaultDrillDownLimit = 100

// LedgerService handles receive, consume and adjust on the lot ledger
type LedgerService struct {
	exec    *Executor
	guard   *Guard
	lots    ledger.LotRepository
	entries ledger.EntryRepository
	levels  ledger.LevelRepository
}

// NewLedgerService creates a new LedgerService. The repositories serve reads
// outside any transaction.
func NewLedgerService(
	exec *Executor,
	guard *Guard,
	lots ledger.LotRepository,
	entries ledger.EntryRepository,
	levels ledger.LevelRepository,
) *LedgerService {
	return &LedgerService{
		exec:    exec,
		guard:   guard,
		lots:    lots,
		entries: entries,
		levels:  levels,
	}
}

func (s *LedgerService) authorize(ctx context.Context, actor shared.Actor, permission string, branchID, productID uuid.UUID) error {
	if err := s.guard.RequirePermission(ctx, actor, permission); err != nil {
		return err
	}
	if err := s.guard.RequireMembership(ctx, actor, branchID); err != nil {
		return err
	}
	return s.guard.RequireProducts(ctx, actor.TenantID, productID)
}

func entryContext(actor shared.Actor, reason, sourceRef string, occurredAt *time.Time) ledger.EntryContext {
	ec := ledger.EntryContext{
		TenantID:  actor.TenantID,
		ActorID:   actor.ID,
		Reason:    reason,
		SourceRef: sourceRef,
	}
	if occurredAt != nil {
		ec.OccurredAt = *occurredAt
	}
	return ec
}

// ReceiveStock opens a new lot and raises on-hand stock
func (s *LedgerService) ReceiveStock(ctx context.Context, actor shared.Actor, req ReceiveStockRequest) (*StockMovementResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "receive_stock",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrBranchID, req.BranchID.String(),
		telemetry.AttrProductID, req.ProductID.String(),
		telemetry.AttrQuantity, req.Quantity,
	)
	defer span.End()

	if req.Quantity <= 0 {
		return nil, ledger.ErrNonPositiveQuantity
	}
	if err := s.authorize(ctx, actor, PermInventoryReceive, req.BranchID, req.ProductID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := Mutation{TenantID: actor.TenantID, Scope: ScopeReceiveStock, Key: req.IdempotencyKey, Request: req}
	resp, err := Execute(ctx, s.exec, m, func(ctx context.Context, repos TransactionalRepositories, fx *Effects) (StockMovementResponse, error) {
		ec := entryContext(actor, "receipt", req.SourceRef, req.OccurredAt)
		mv, err := NewFIFOEngine(repos, fx).Receive(ctx, ec, req.BranchID, req.ProductID, req.Quantity, req.UnitCost, ledger.EntryKindReceipt)
		if err != nil {
			return StockMovementResponse{}, err
		}
		fx.Audit(NewAuditEvent(actor, AuditEntityStock, mv.Level.ID, AuditActionReceive, levelSnapshot(&mv.Before), levelSnapshot(mv.Level)))
		return toMovementResponse(mv), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// ConsumeStock drains stock oldest lot first
func (s *LedgerService) ConsumeStock(ctx context.Context, actor shared.Actor, req ConsumeStockRequest) (*StockMovementResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "consume_stock",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrBranchID, req.BranchID.String(),
		telemetry.AttrProductID, req.ProductID.String(),
		telemetry.AttrQuantity, req.Quantity,
	)
	defer span.End()

	if req.Quantity <= 0 {
		return nil, ledger.ErrNonPositiveQuantity
	}
	if err := s.authorize(ctx, actor, PermInventoryConsume, req.BranchID, req.ProductID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := Mutation{TenantID: actor.TenantID, Scope: ScopeConsumeStock, Key: req.IdempotencyKey, Request: req}
	resp, err := Execute(ctx, s.exec, m, func(ctx context.Context, repos TransactionalRepositories, fx *Effects) (StockMovementResponse, error) {
		ec := entryContext(actor, req.Reason, req.SourceRef, req.OccurredAt)
		mv, err := NewFIFOEngine(repos, fx).Consume(ctx, ec, req.BranchID, req.ProductID, req.Quantity, ledger.EntryKindConsumption)
		if err != nil {
			return StockMovementResponse{}, err
		}
		fx.Audit(NewAuditEvent(actor, AuditEntityStock, mv.Level.ID, AuditActionConsume, levelSnapshot(&mv.Before), levelSnapshot(mv.Level)))
		return toMovementResponse(mv), nil
	})
	if err != nil {
		s.observeFailure(ctx, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// AdjustStock applies a signed correction: up opens a lot, down drains FIFO
func (s *LedgerService) AdjustStock(ctx context.Context, actor shared.Actor, req AdjustStockRequest) (*StockMovementResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "adjust_stock",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrBranchID, req.BranchID.String(),
		telemetry.AttrProductID, req.ProductID.String(),
		telemetry.AttrQuantity, req.QtyDelta,
	)
	defer span.End()

	if req.QtyDelta == 0 {
		return nil, ledger.ErrZeroAdjustment
	}
	if err := s.authorize(ctx, actor, PermInventoryAdjust, req.BranchID, req.ProductID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := Mutation{TenantID: actor.TenantID, Scope: ScopeAdjustStock, Key: req.IdempotencyKey, Request: req}
	resp, err := Execute(ctx, s.exec, m, func(ctx context.Context, repos TransactionalRepositories, fx *Effects) (StockMovementResponse, error) {
		ec := entryContext(actor, req.Reason, req.SourceRef, req.OccurredAt)
		engine := NewFIFOEngine(repos, fx)
		var (
			mv  *Movement
			err error
		)
		if req.QtyDelta > 0 {
			mv, err = engine.Receive(ctx, ec, req.BranchID, req.ProductID, req.QtyDelta, req.UnitCost, ledger.EntryKindAdjustment)
		} else {
			mv, err = engine.Consume(ctx, ec, req.BranchID, req.ProductID, -req.QtyDelta, ledger.EntryKindAdjustment)
		}
		if err != nil {
			return StockMovementResponse{}, err
		}
		fx.Audit(NewAuditEvent(actor, AuditEntityStock, mv.Level.ID, AuditActionAdjust, levelSnapshot(&mv.Before), levelSnapshot(mv.Level)))
		return toMovementResponse(mv), nil
	})
	if err != nil {
		s.observeFailure(ctx, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

func (s *LedgerService) observeFailure(ctx context.Context, err error) {
	if errors.Is(err, shared.ErrInsufficientStock) {
		s.exec.Metrics().InsufficientStock(ctx)
	}
}

// GetStockLevels returns the levels of a branch, optionally for one product
func (s *LedgerService) GetStockLevels(ctx context.Context, actor shared.Actor, filter StockLevelFilter) ([]StockLevelResponse, error) {
	if err := s.guard.RequirePermission(ctx, actor, PermInventoryView); err != nil {
		return nil, err
	}
	if err := s.guard.RequireMembership(ctx, actor, filter.BranchID); err != nil {
		return nil, err
	}
	levels, err := s.levels.Find(ctx, actor.TenantID, filter.BranchID, filter.ProductID)
	if err != nil {
		return nil, err
	}
	out := make([]StockLevelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, ToStockLevelResponse(l))
	}
	return out, nil
}

// ListLots returns a branch's lots in FIFO order
func (s *LedgerService) ListLots(ctx context.Context, actor shared.Actor, filter LotFilter) ([]LotResponse, error) {
	if err := s.guard.RequirePermission(ctx, actor, PermInventoryView); err != nil {
		return nil, err
	}
	if err := s.guard.RequireMembership(ctx, actor, filter.BranchID); err != nil {
		return nil, err
	}
	lots, err := s.lots.List(ctx, ledger.LotFilter{
		TenantID:  actor.TenantID,
		BranchID:  filter.BranchID,
		ProductID: filter.ProductID,
		OpenOnly:  filter.OpenOnly,
		Limit:     drillDownLimit(filter.Limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]LotResponse, 0, len(lots))
	for _, l := range lots {
		out = append(out, ToLotResponse(l))
	}
	return out, nil
}

// ListLedgerEntries returns the newest entries of a branch first
func (s *LedgerService) ListLedgerEntries(ctx context.Context, actor shared.Actor, filter LedgerEntryFilter) ([]LedgerEntryResponse, error) {
	if err := s.guard.RequirePermission(ctx, actor, PermInventoryView); err != nil {
		return nil, err
	}
	if err := s.guard.RequireMembership(ctx, actor, filter.BranchID); err != nil {
		return nil, err
	}
	entries, err := s.entries.List(ctx, ledger.EntryFilter{
		TenantID:  actor.TenantID,
		BranchID:  filter.BranchID,
		ProductID: filter.ProductID,
		LotID:     filter.LotID,
		Limit:     drillDownLimit(filter.Limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToLedgerEntryResponse(e))
	}
	return out, nil
}

func drillDownLimit(limit int) int {
	if limit <= 0 {
		return defaultDrillDownLimit
	}
	return min(limit, 500)
}

type levelState struct {
	QtyOnHand    int64 `json:"qty_on_hand"`
	QtyAllocated int64 `json:"qty_allocated"`
}

func levelSnapshot(l *ledger.StockLevel) levelState {
	return levelState{QtyOnHand: l.QtyOnHand, QtyAllocated: l.QtyAllocated}
}
