package transfer

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/erp/stockflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// Idempotency scopes of transfer mutations
const (
	ScopeCreateTransfer  = "transfer.create"
	ScopeReviewTransfer  = "transfer.review"
	ScopeShipTransfer    = "transfer.ship"
	ScopeReceiveTransfer = "transfer.receive"
	ScopeCancelTransfer  = "transfer.cancel"
	ScopeReverseTransfer = "transfer.reverse"
	ScopeSubmitApproval  = "transfer.approval"
)

// Audit actions on the TRANSFER entity
const (
	AuditActionRequest          = "REQUEST"
	AuditActionApprove          = "APPROVE"
	AuditActionReject           = "REJECT"
	AuditActionShip             = "SHIP"
	AuditActionReceive          = "RECEIVE"
	AuditActionCancel           = "CANCEL"
	AuditActionReverse          = "REVERSE"
	AuditActionReversalCreated  = "REVERSAL_CREATED"
	AuditActionApprovalDecision = "APPROVAL_DECISION"
)

// Ledger reasons written by transfer movements
const (
	reasonShipment = "transfer shipment"
	reasonReceipt  = "transfer receipt"
	reasonCancel   = "transfer cancelled"
	reasonReversal = "transfer reversal"
)

// TransferService orchestrates the transfer lifecycle over the lot ledger
// and the approval gate
type TransferService struct {
	exec      *inventory.Executor
	guard     *inventory.Guard
	transfers transfer.Repository
	records   approval.RecordRepository
	audit     inventory.AuditSink
}

// NewTransferService creates a new TransferService. The repositories serve
// reads outside any transaction; audit may be nil.
func NewTransferService(
	exec *inventory.Executor,
	guard *inventory.Guard,
	transfers transfer.Repository,
	records approval.RecordRepository,
	audit inventory.AuditSink,
) *TransferService {
	return &TransferService{
		exec:      exec,
		guard:     guard,
		transfers: transfers,
		records:   records,
		audit:     audit,
	}
}

// keyedRequest fingerprints a request body together with its path parameters
type keyedRequest struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Level      int       `json:"level,omitempty"`
	Body       any       `json:"body"`
}

// transferSnapshot is the audit view of a transfer
type transferSnapshot struct {
	Status       transfer.Status      `json:"status"`
	Version      int                  `json:"version"`
	Items        []transfer.EventItem `json:"items"`
	ReversedByID *uuid.UUID           `json:"reversed_by_id,omitempty"`
}

func snapshotOf(t *transfer.Transfer) transferSnapshot {
	s := transferSnapshot{
		Status:       t.Status,
		Version:      t.Version,
		Items:        make([]transfer.EventItem, 0, len(t.Items)),
		ReversedByID: t.ReversedByID,
	}
	for _, item := range t.Items {
		s.Items = append(s.Items, transfer.EventItem{
			ProductID:    item.ProductID,
			QtyRequested: item.QtyRequested,
			QtyApproved:  item.Approved(),
			QtyShipped:   item.QtyShipped,
			QtyReceived:  item.QtyReceived,
		})
	}
	return s
}

func measureTransition(fx *inventory.Effects, status transfer.Status) {
	fx.Measure(func(ctx context.Context, m *telemetry.StockMetrics) {
		m.Transition(ctx, status.String())
	})
}

func (s *TransferService) entryContext(actor shared.Actor, reason string, t *transfer.Transfer) ledger.EntryContext {
	return ledger.EntryContext{
		TenantID:   actor.TenantID,
		ActorID:    actor.ID,
		Reason:     reason,
		SourceRef:  t.TransferNumber,
		OccurredAt: time.Now().UTC(),
	}
}

// load reads a transfer outside the transaction for access checks; branches
// never change after creation
func (s *TransferService) load(ctx context.Context, actor shared.Actor, id uuid.UUID) (*transfer.Transfer, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.transfers.FindByID(ctx, actor.TenantID, id)
}

func (s *TransferService) recordsOf(ctx context.Context, repos inventory.TransactionalRepositories, t *transfer.Transfer) ([]*approval.Record, error) {
	if !t.RequiresMultiLevelApproval {
		return nil, nil
	}
	return repos.Approvals().FindByTransfer(ctx, t.TenantID, t.ID)
}

// commit saves t and queues its events, audit and transition metric
func (s *TransferService) commit(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects, actor shared.Actor, t *transfer.Transfer, action string, before transferSnapshot) (TransferResponse, error) {
	if err := repos.Transfers().Save(ctx, t); err != nil {
		return TransferResponse{}, err
	}
	fx.PublishFrom(t)
	fx.Audit(inventory.NewAuditEvent(actor, inventory.AuditEntityTransfer, t.ID, action, before, snapshotOf(t)))
	if before.Status != t.Status {
		measureTransition(fx, t.Status)
	}
	records, err := s.recordsOf(ctx, repos, t)
	if err != nil {
		return TransferResponse{}, err
	}
	return ToTransferResponse(t, records), nil
}

// skipPending closes the approval gate of a transfer that will not proceed
func (s *TransferService) skipPending(ctx context.Context, repos inventory.TransactionalRepositories, t *transfer.Transfer) error {
	records, err := s.recordsOf(ctx, repos, t)
	if err != nil {
		return err
	}
	for _, rec := range approval.SkipPending(records) {
		if err := repos.Approvals().Transition(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *TransferService) observeFailure(ctx context.Context, err error) {
	if errors.Is(err, shared.ErrInsufficientStock) {
		s.exec.Metrics().InsufficientStock(ctx)
	}
}

// CreateTransfer requests a transfer. PUSH is initiated by a member of the
// source branch, PULL by a member of the destination. The highest priority
// matching approval rule, if any, gates shipment.
func (s *TransferService) CreateTransfer(ctx context.Context, actor shared.Actor, req CreateTransferRequest) (*TransferResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "create_transfer",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrBranchID, req.SourceBranchID.String(),
	)
	defer span.End()

	params := transfer.NewTransferParams{
		TenantID:            actor.TenantID,
		ActorID:             actor.ID,
		SourceBranchID:      req.SourceBranchID,
		DestinationBranchID: req.DestinationBranchID,
		InitiationType:      transfer.InitiationType(req.InitiationType),
		Priority:            transfer.Priority(req.Priority),
		Notes:               req.Notes,
	}
	productIDs := make([]uuid.UUID, 0, len(req.Items))
	for _, it := range req.Items {
		params.Items = append(params.Items, transfer.ItemLine{ProductID: it.ProductID, Qty: it.Quantity})
		productIDs = append(productIDs, it.ProductID)
	}
	probe, err := transfer.NewTransfer(params)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireMembership(ctx, actor, probe.InitiatedByBranchID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.guard.RequireProducts(ctx, actor.TenantID, productIDs...); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := inventory.Mutation{TenantID: actor.TenantID, Scope: ScopeCreateTransfer, Key: req.IdempotencyKey, Request: req}
	resp, err := inventory.Execute(ctx, s.exec, m, func(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects) (TransferResponse, error) {
		t, err := transfer.NewTransfer(params)
		if err != nil {
			return TransferResponse{}, err
		}
		rule, err := s.selectRule(ctx, repos, t)
		if err != nil {
			return TransferResponse{}, err
		}
		var records []*approval.Record
		if rule != nil {
			ruleID := rule.ID
			t.RequiresMultiLevelApproval = true
			t.ApprovalRuleID = &ruleID
			records = approval.NewRecords(rule, t.ID)
		}
		if err := repos.Transfers().Create(ctx, t); err != nil {
			return TransferResponse{}, err
		}
		if len(records) > 0 {
			if err := repos.Approvals().CreateBatch(ctx, records); err != nil {
				return TransferResponse{}, err
			}
		}
		fx.PublishFrom(t)
		fx.Audit(inventory.NewAuditEvent(actor, inventory.AuditEntityTransfer, t.ID, AuditActionRequest, nil, snapshotOf(t)))
		measureTransition(fx, t.Status)
		return ToTransferResponse(t, records), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.AttrTransferID, resp.ID.String())
	return &resp, nil
}

// selectRule evaluates active rules against the transfer. Prices are only
// looked up when some rule tests total value.
func (s *TransferService) selectRule(ctx context.Context, repos inventory.TransactionalRepositories, t *transfer.Transfer) (*approval.Rule, error) {
	rules, err := repos.Rules().FindActive(ctx, t.TenantID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	shape := approval.Shape{
		SourceBranchID:      t.SourceBranchID,
		DestinationBranchID: t.DestinationBranchID,
		TotalQty:            t.TotalRequested(),
	}
	if approval.AnyNeedsValue(rules) {
		for _, item := range t.Items {
			price, err := s.guard.ProductPrice(ctx, t.TenantID, item.ProductID)
			if err != nil {
				return nil, err
			}
			shape.TotalValue += price * item.QtyRequested
		}
	}
	return approval.Evaluate(rules, shape), nil
}

// ReviewTransfer approves or rejects a REQUESTED transfer. Reviewers belong
// to the destination for PUSH and to the source for PULL.
func (s *TransferService) ReviewTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req ReviewTransferRequest) (*TransferResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "review_transfer",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrTransferID, id.String(),
	)
	defer span.End()

	var approved map[uuid.UUID]int64
	switch req.Action {
	case ReviewApprove:
		var err error
		if approved, err = quantities(req.Items); err != nil {
			return nil, err
		}
	case ReviewReject:
		if strings.TrimSpace(req.Notes) == "" {
			return nil, transfer.ErrRejectionNotes
		}
	default:
		return nil, shared.NewValidationError("INVALID_REVIEW_ACTION", "Action must be approve or reject")
	}

	current, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireMembership(ctx, actor, current.ReviewingBranchID()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := inventory.Mutation{TenantID: actor.TenantID, Scope: ScopeReviewTransfer, Key: req.IdempotencyKey, Request: keyedRequest{TransferID: id, Body: req}}
	resp, err := inventory.Execute(ctx, s.exec, m, func(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects) (TransferResponse, error) {
		t, err := repos.Transfers().FindByIDForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return TransferResponse{}, err
		}
		before := snapshotOf(t)
		if req.Action == ReviewApprove {
			if err := t.Approve(actor.ID, approved, req.Notes); err != nil {
				return TransferResponse{}, err
			}
			return s.commit(ctx, repos, fx, actor, t, AuditActionApprove, before)
		}
		if err := t.Reject(actor.ID, req.Notes); err != nil {
			return TransferResponse{}, err
		}
		if err := s.skipPending(ctx, repos, t); err != nil {
			return TransferResponse{}, err
		}
		return s.commit(ctx, repos, fx, actor, t, AuditActionReject, before)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// ShipTransfer draws approved quantities from the source branch, oldest lot
// first, recording the exact lots on a new shipment batch per item.
// Without items everything remaining is shipped.
func (s *TransferService) ShipTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req ShipTransferRequest) (*TransferResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "ship_transfer",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrTransferID, id.String(),
	)
	defer span.End()

	requested, err := quantities(req.Items)
	if err != nil {
		return nil, err
	}
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireMembership(ctx, actor, current.SourceBranchID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := inventory.Mutation{TenantID: actor.TenantID, Scope: ScopeShipTransfer, Key: req.IdempotencyKey, Request: keyedRequest{TransferID: id, Body: req}}
	resp, err := inventory.Execute(ctx, s.exec, m, func(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects) (TransferResponse, error) {
		t, err := repos.Transfers().FindByIDForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return TransferResponse{}, err
		}
		if t.RequiresMultiLevelApproval {
			records, err := s.recordsOf(ctx, repos, t)
			if err != nil {
				return TransferResponse{}, err
			}
			if !approval.Satisfied(records) {
				return TransferResponse{}, transfer.ErrApprovalPending
			}
		}
		before := snapshotOf(t)
		lines, err := t.PlanShipment(requested)
		if err != nil {
			return TransferResponse{}, err
		}
		sort.Slice(lines, func(i, j int) bool {
			return bytes.Compare(lines[i].ProductID[:], lines[j].ProductID[:]) < 0
		})

		engine := inventory.NewFIFOEngine(repos, fx)
		ec := s.entryContext(actor, reasonShipment, t)
		shipments := make([]transfer.ItemShipment, 0, len(lines))
		for _, line := range lines {
			mv, err := engine.Consume(ctx, ec, t.SourceBranchID, line.ProductID, line.Qty, ledger.EntryKindConsumption)
			if err != nil {
				return TransferResponse{}, err
			}
			shipments = append(shipments, transfer.ItemShipment{ShipLine: line, Draws: mv.Draws})
		}
		if err := t.Ship(actor.ID, ec.OccurredAt, shipments); err != nil {
			return TransferResponse{}, err
		}
		return s.commit(ctx, repos, fx, actor, t, AuditActionShip, before)
	})
	if err != nil {
		s.observeFailure(ctx, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// ReceiveTransfer books in-transit quantities into new lots at the
// destination. Each lot carries the weighted average cost of the lots the
// item was shipped from.
func (s *TransferService) ReceiveTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req ReceiveTransferRequest) (*TransferResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "receive_transfer",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrTransferID, id.String(),
	)
	defer span.End()

	requested, err := quantities(req.Items)
	if err != nil {
		return nil, err
	}
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireMembership(ctx, actor, current.DestinationBranchID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := inventory.Mutation{TenantID: actor.TenantID, Scope: ScopeReceiveTransfer, Key: req.IdempotencyKey, Request: keyedRequest{TransferID: id, Body: req}}
	resp, err := inventory.Execute(ctx, s.exec, m, func(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects) (TransferResponse, error) {
		t, err := repos.Transfers().FindByIDForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return TransferResponse{}, err
		}
		before := snapshotOf(t)
		lines, err := t.PlanReceipt(requested)
		if err != nil {
			return TransferResponse{}, err
		}
		sort.Slice(lines, func(i, j int) bool {
			return bytes.Compare(lines[i].ProductID[:], lines[j].ProductID[:]) < 0
		})

		engine := inventory.NewFIFOEngine(repos, fx)
		ec := s.entryContext(actor, reasonReceipt, t)
		receipts := make([]transfer.ItemReceipt, 0, len(lines))
		for _, line := range lines {
			mv, err := engine.Receive(ctx, ec, t.DestinationBranchID, line.ProductID, line.Qty, line.UnitCost, ledger.EntryKindReceipt)
			if err != nil {
				return TransferResponse{}, err
			}
			receipts = append(receipts, transfer.ItemReceipt{ReceiveLine: line, LotID: mv.Lot.ID})
		}
		if err := t.Receive(actor.ID, ec.OccurredAt, receipts); err != nil {
			return TransferResponse{}, err
		}
		return s.commit(ctx, repos, fx, actor, t, AuditActionReceive, before)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// CancelTransfer closes a transfer before anything was received. Lots drawn
// by shipments already made are restored at the source.
func (s *TransferService) CancelTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req CancelTransferRequest) (*TransferResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "cancel_transfer",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrTransferID, id.String(),
	)
	defer span.End()

	if strings.TrimSpace(req.Reason) == "" {
		return nil, shared.NewValidationError("CANCEL_REASON_REQUIRED", "Cancellation requires a reason")
	}
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireAnyMembership(ctx, actor, current.SourceBranchID, current.DestinationBranchID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := inventory.Mutation{TenantID: actor.TenantID, Scope: ScopeCancelTransfer, Key: req.IdempotencyKey, Request: keyedRequest{TransferID: id, Body: req}}
	resp, err := inventory.Execute(ctx, s.exec, m, func(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects) (TransferResponse, error) {
		t, err := repos.Transfers().FindByIDForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return TransferResponse{}, err
		}
		before := snapshotOf(t)
		draws, err := t.Cancel(actor.ID, req.Reason)
		if err != nil {
			return TransferResponse{}, err
		}
		if len(draws) > 0 {
			ec := s.entryContext(actor, reasonCancel, t)
			if _, err := inventory.NewFIFOEngine(repos, fx).RestoreLots(ctx, ec, t.SourceBranchID, draws); err != nil {
				return TransferResponse{}, err
			}
		}
		if err := s.skipPending(ctx, repos, t); err != nil {
			return TransferResponse{}, err
		}
		return s.commit(ctx, repos, fx, actor, t, AuditActionCancel, before)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// ReverseTransfer undoes a COMPLETED transfer: the lots it created at the
// destination are drawn back and the lots it consumed at the source are
// restored, as a sibling transfer created directly in COMPLETED
func (s *TransferService) ReverseTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req ReverseTransferRequest) (*ReverseTransferResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "reverse_transfer",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrTransferID, id.String(),
	)
	defer span.End()

	current, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireMembership(ctx, actor, current.DestinationBranchID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := inventory.Mutation{TenantID: actor.TenantID, Scope: ScopeReverseTransfer, Key: req.IdempotencyKey, Request: keyedRequest{TransferID: id, Body: req}}
	resp, err := inventory.Execute(ctx, s.exec, m, func(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects) (ReverseTransferResponse, error) {
		orig, err := repos.Transfers().FindByIDForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return ReverseTransferResponse{}, err
		}
		if err := orig.CheckReversible(); err != nil {
			return ReverseTransferResponse{}, err
		}
		before := snapshotOf(orig)
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = "reversal of " + orig.TransferNumber
		}

		items := make([]*transfer.Item, len(orig.Items))
		copy(items, orig.Items)
		sort.Slice(items, func(i, j int) bool {
			return bytes.Compare(items[i].ProductID[:], items[j].ProductID[:]) < 0
		})

		engine := inventory.NewFIFOEngine(repos, fx)
		ec := s.entryContext(actor, reasonReversal, orig)
		var (
			lines    []transfer.ReversalLine
			restores []ledger.LotDraw
		)
		for _, item := range items {
			if item.QtyReceived == 0 {
				continue
			}
			mv, err := engine.DrawBack(ctx, ec, orig.DestinationBranchID, item.ProductID, item.ReceivedLots())
			if err != nil {
				return ReverseTransferResponse{}, err
			}
			lines = append(lines, transfer.ReversalLine{ProductID: item.ProductID, Qty: item.QtyReceived, DrawnBack: mv.Draws})
			restores = append(restores, item.ShippedDraws()...)
		}
		movements, err := engine.RestoreLots(ctx, ec, orig.SourceBranchID, restores)
		if err != nil {
			return ReverseTransferResponse{}, err
		}
		restored := make(map[uuid.UUID][]ledger.LotDraw, len(movements))
		for _, mv := range movements {
			restored[mv.Level.ProductID] = mv.Draws
		}
		for i := range lines {
			lines[i].RestoredLots = restored[lines[i].ProductID]
		}

		rev, err := transfer.NewReversal(orig, actor.ID, reason, lines)
		if err != nil {
			return ReverseTransferResponse{}, err
		}
		if err := repos.Transfers().Create(ctx, rev); err != nil {
			return ReverseTransferResponse{}, err
		}
		original, err := s.commit(ctx, repos, fx, actor, orig, AuditActionReverse, before)
		if err != nil {
			return ReverseTransferResponse{}, err
		}
		fx.PublishFrom(rev)
		fx.Audit(inventory.NewAuditEvent(actor, inventory.AuditEntityTransfer, rev.ID, AuditActionReversalCreated, nil, snapshotOf(rev)))
		measureTransition(fx, rev.Status)
		return ReverseTransferResponse{Original: original, Reversal: ToTransferResponse(rev, nil)}, nil
	})
	if err != nil {
		s.observeFailure(ctx, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// GetTransfer returns one transfer with its approval progress
func (s *TransferService) GetTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID) (*TransferResponse, error) {
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	records, err := s.readRecords(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, actor, t, records); err != nil {
		return nil, err
	}
	resp := ToTransferResponse(t, records)
	return &resp, nil
}

// ListTransfers returns one keyset page of transfers
func (s *TransferService) ListTransfers(ctx context.Context, actor shared.Actor, req ListTransfersRequest) (*TransferPage, error) {
	if err := s.guard.RequirePermission(ctx, actor, inventory.PermTransferView); err != nil {
		return nil, err
	}
	filter, err := toListFilter(actor.TenantID, req)
	if err != nil {
		return nil, err
	}
	transfers, err := s.transfers.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]TransferResponse, 0, len(transfers))
	for _, t := range transfers {
		items = append(items, ToTransferResponse(t, nil))
	}
	page := shared.NewPage(items, filter.Limit, func(r TransferResponse) shared.Cursor {
		if filter.SortBy == transfer.SortByUpdatedAt {
			return shared.Cursor{SortValue: r.UpdatedAt, ID: r.ID}
		}
		return shared.Cursor{SortValue: r.CreatedAt, ID: r.ID}
	})
	return &page, nil
}

func toListFilter(tenantID uuid.UUID, req ListTransfersRequest) (transfer.ListFilter, error) {
	filter := transfer.ListFilter{
		TenantID:            tenantID,
		SourceBranchID:      req.SourceBranchID,
		DestinationBranchID: req.DestinationBranchID,
		BranchID:            req.BranchID,
		CreatedFrom:         req.CreatedFrom,
		CreatedTo:           req.CreatedTo,
		SortBy:              transfer.SortByCreatedAt,
		Ascending:           strings.EqualFold(req.SortDir, "asc"),
		Limit:               shared.NormalizeLimit(req.Limit),
	}
	for _, raw := range req.Statuses {
		for _, part := range strings.Split(raw, ",") {
			status := transfer.Status(strings.ToUpper(strings.TrimSpace(part)))
			if status == "" {
				continue
			}
			if !status.IsValid() {
				return filter, shared.NewValidationError("INVALID_STATUS", "Unknown transfer status "+string(status))
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if req.Priority != "" {
		p := transfer.Priority(req.Priority)
		if !p.IsValid() {
			return filter, transfer.ErrInvalidPriority
		}
		filter.Priority = &p
	}
	if req.SortBy != "" {
		filter.SortBy = transfer.SortField(req.SortBy)
		if !filter.SortBy.IsValid() {
			return filter, shared.NewValidationError("INVALID_SORT", "Sort must be created_at or updated_at")
		}
	}
	if req.CreatedFrom != nil && req.CreatedTo != nil && req.CreatedFrom.After(*req.CreatedTo) {
		return filter, shared.NewValidationError("INVALID_DATE_RANGE", "created_from must not be after created_to")
	}
	cursor, err := shared.DecodeCursor(req.Cursor)
	if err != nil {
		return filter, err
	}
	filter.Cursor = cursor
	return filter, nil
}

// GetTransferAudit returns the audit trail of a transfer with actor names resolved
func (s *TransferService) GetTransferAudit(ctx context.Context, actor shared.Actor, id uuid.UUID) ([]inventory.AuditEvent, error) {
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	records, err := s.readRecords(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, actor, t, records); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []inventory.AuditEvent{}, nil
	}
	events, err := s.audit.ListEvents(ctx, actor.TenantID, inventory.AuditEntityTransfer, id)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string)
	for i := range events {
		name, ok := names[events[i].ActorID]
		if !ok {
			name = s.guard.ActorDisplay(ctx, events[i].ActorID)
			names[events[i].ActorID] = name
		}
		events[i].ActorDisplay = name
	}
	return events, nil
}

func (s *TransferService) readRecords(ctx context.Context, t *transfer.Transfer) ([]*approval.Record, error) {
	if !t.RequiresMultiLevelApproval {
		return nil, nil
	}
	return s.records.FindByTransfer(ctx, t.TenantID, t.ID)
}

// requireViewer admits members of either branch, approvers named on the
// transfer's approval records and holders of transfer.view
func (s *TransferService) requireViewer(ctx context.Context, actor shared.Actor, t *transfer.Transfer, records []*approval.Record) error {
	err := s.guard.RequireAnyMembership(ctx, actor, t.SourceBranchID, t.DestinationBranchID)
	if err == nil || !shared.IsKind(err, shared.KindPermissionDenied) {
		return err
	}
	for _, rec := range records {
		if rec.Approver != nil && rec.Approver.Allows(actor) {
			return nil
		}
	}
	return s.guard.RequirePermission(ctx, actor, inventory.PermTransferView)
}
