package transfer

import (
	"strconv"
	"strings"
	"time"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// Transfer is the aggregate root for moving stock between two branches.
// It is mutated only through the lifecycle methods below and never deleted.
type Transfer struct {
	shared.TenantAggregateRoot
	TransferNumber      string
	SourceBranchID      uuid.UUID
	DestinationBranchID uuid.UUID
	InitiationType      InitiationType
	InitiatedByBranchID uuid.UUID
	Status              Status
	Priority            Priority
	Notes               string

	RequestedByActorID uuid.UUID
	RequestedAt        time.Time
	ReviewedByActorID  *uuid.UUID
	ReviewedAt         *time.Time
	ReviewNotes        string
	ShippedByActorID   *uuid.UUID
	ShippedAt          *time.Time
	ReceivedByActorID  *uuid.UUID
	ReceivedAt         *time.Time
	CompletedAt        *time.Time
	CancelledByActorID *uuid.UUID
	CancelledAt        *time.Time
	CancelReason       string

	RequiresMultiLevelApproval bool
	ApprovalRuleID             *uuid.UUID

	ReversalOfID   *uuid.UUID
	ReversedByID   *uuid.UUID
	ReversalReason string

	Items []*Item
}

// NewTransferParams holds the inputs of a transfer request
type NewTransferParams struct {
	TenantID            uuid.UUID
	ActorID             uuid.UUID
	SourceBranchID      uuid.UUID
	DestinationBranchID uuid.UUID
	InitiationType      InitiationType
	Priority            Priority
	Notes               string
	Items               []ItemLine
}

// NewTransfer creates a transfer in REQUESTED
func NewTransfer(p NewTransferParams) (*Transfer, error) {
	if p.SourceBranchID == uuid.Nil || p.DestinationBranchID == uuid.Nil {
		return nil, shared.NewValidationError("BRANCH_REQUIRED", "Source and destination branches are required")
	}
	if p.SourceBranchID == p.DestinationBranchID {
		return nil, ErrSameBranch
	}
	if !p.InitiationType.IsValid() {
		return nil, ErrInvalidInitiation
	}
	if p.Priority == "" {
		p.Priority = PriorityNormal
	}
	if !p.Priority.IsValid() {
		return nil, ErrInvalidPriority
	}
	if len(p.Items) == 0 {
		return nil, ErrNoItems
	}

	t := &Transfer{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(p.TenantID),
		SourceBranchID:      p.SourceBranchID,
		DestinationBranchID: p.DestinationBranchID,
		InitiationType:      p.InitiationType,
		Status:              StatusRequested,
		Priority:            p.Priority,
		Notes:               p.Notes,
		RequestedByActorID:  p.ActorID,
	}
	t.RequestedAt = t.CreatedAt
	t.TransferNumber = GenerateNumber(t.CreatedAt)
	t.InitiatedByBranchID = t.SourceBranchID
	if p.InitiationType == InitiationPull {
		t.InitiatedByBranchID = t.DestinationBranchID
	}

	seen := make(map[uuid.UUID]struct{}, len(p.Items))
	for _, line := range p.Items {
		if line.ProductID == uuid.Nil {
			return nil, shared.NewValidationError("PRODUCT_REQUIRED", "Item product is required")
		}
		if line.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
		if _, dup := seen[line.ProductID]; dup {
			return nil, ErrDuplicateProduct
		}
		seen[line.ProductID] = struct{}{}
		t.Items = append(t.Items, newItem(t.ID, line))
	}

	t.AddDomainEvent(NewTransferEvent(EventTypeTransferRequested, t, p.ActorID))
	return t, nil
}

// ReviewingBranchID is the branch whose members review the request:
// the destination for PUSH, the source for PULL
func (t *Transfer) ReviewingBranchID() uuid.UUID {
	if t.InitiationType == InitiationPull {
		return t.SourceBranchID
	}
	return t.DestinationBranchID
}

// TotalRequested sums requested quantities over all items
func (t *Transfer) TotalRequested() int64 {
	var total int64
	for _, item := range t.Items {
		total += item.QtyRequested
	}
	return total
}

// ItemByProduct finds the item for a product
func (t *Transfer) ItemByProduct(productID uuid.UUID) (*Item, bool) {
	for _, item := range t.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return nil, false
}

func (t *Transfer) transition(next Status, action string) error {
	if !t.Status.CanTransitionTo(next) {
		return invalidTransition(t.Status, action)
	}
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *Transfer) checkProducts(qty map[uuid.UUID]int64) error {
	for productID := range qty {
		if _, ok := t.ItemByProduct(productID); !ok {
			return ErrUnknownItem.WithMessage("product %s is not part of transfer %s", productID, t.TransferNumber)
		}
	}
	return nil
}

// Approve fixes approved quantities and moves the transfer to APPROVED.
// Items missing from approvedQty are approved in full.
func (t *Transfer) Approve(actorID uuid.UUID, approvedQty map[uuid.UUID]int64, notes string) error {
	if t.Status != StatusRequested {
		return invalidTransition(t.Status, "approve")
	}
	if err := t.checkProducts(approvedQty); err != nil {
		return err
	}
	var total int64
	fixed := make([]int64, len(t.Items))
	for i, item := range t.Items {
		qty, ok := approvedQty[item.ProductID]
		if !ok {
			qty = item.QtyRequested
		}
		if qty < 0 || qty > item.QtyRequested {
			return ErrInvalidApprovedQty.WithMessage("approved quantity %d for product %s must be between 0 and %d", qty, item.ProductID, item.QtyRequested)
		}
		fixed[i] = qty
		total += qty
	}
	if total == 0 {
		return ErrNothingApproved
	}
	for i, item := range t.Items {
		q := fixed[i]
		item.QtyApproved = &q
	}
	if err := t.transition(StatusApproved, "approve"); err != nil {
		return err
	}
	t.markReviewed(actorID, notes)
	t.AddDomainEvent(NewTransferEvent(EventTypeTransferApproved, t, actorID))
	return nil
}

// Reject closes the request; notes are mandatory
func (t *Transfer) Reject(actorID uuid.UUID, notes string) error {
	if strings.TrimSpace(notes) == "" {
		return ErrRejectionNotes
	}
	if t.Status != StatusRequested {
		return invalidTransition(t.Status, "reject")
	}
	if err := t.transition(StatusRejected, "reject"); err != nil {
		return err
	}
	t.markReviewed(actorID, notes)
	t.AddDomainEvent(NewTransferEvent(EventTypeTransferRejected, t, actorID))
	return nil
}

func (t *Transfer) markReviewed(actorID uuid.UUID, notes string) {
	now := t.UpdatedAt
	t.ReviewedAt = &now
	t.ReviewedByActorID = &actorID
	t.ReviewNotes = notes
}

// ShipLine is the planned quantity of one item in a shipment
type ShipLine struct {
	ItemID    uuid.UUID
	ProductID uuid.UUID
	Qty       int64
}

// PlanShipment clamps requested per-product quantities to what remains to be
// shipped. A nil map ships everything remaining. Lines with zero quantity are dropped.
func (t *Transfer) PlanShipment(requested map[uuid.UUID]int64) ([]ShipLine, error) {
	if !t.canShip() {
		return nil, invalidTransition(t.Status, "ship")
	}
	if err := t.checkProducts(requested); err != nil {
		return nil, err
	}
	var lines []ShipLine
	for _, item := range t.Items {
		qty := item.RemainingToShip()
		if requested != nil {
			want, ok := requested[item.ProductID]
			if !ok {
				continue
			}
			if want < 0 {
				return nil, ErrInvalidQuantity
			}
			qty = min(want, qty)
		}
		if qty > 0 {
			lines = append(lines, ShipLine{ItemID: item.ID, ProductID: item.ProductID, Qty: qty})
		}
	}
	if len(lines) == 0 {
		return nil, ErrNothingToShip
	}
	return lines, nil
}

// ItemShipment is a planned line together with the lots the ledger drew for it
type ItemShipment struct {
	ShipLine
	Draws []ledger.LotDraw
}

// canShip reports whether another shipment batch may leave the source.
// A partially received transfer still ships its unshipped remainder.
func (t *Transfer) canShip() bool {
	switch t.Status {
	case StatusApproved, StatusInTransit, StatusPartiallyReceived:
		return true
	}
	return false
}

// Ship records shipment batches and moves the transfer to IN_TRANSIT. A
// shipment made after a partial receipt keeps the status PARTIALLY_RECEIVED.
func (t *Transfer) Ship(actorID uuid.UUID, at time.Time, shipments []ItemShipment) error {
	if !t.canShip() {
		return invalidTransition(t.Status, "ship")
	}
	if len(shipments) == 0 {
		return ErrNothingToShip
	}
	for _, s := range shipments {
		item, err := t.itemByID(s.ItemID)
		if err != nil {
			return err
		}
		if s.Qty <= 0 || s.Qty > item.RemainingToShip() {
			return ErrInvalidQuantity.WithMessage("cannot ship %d of product %s, %d remaining", s.Qty, item.ProductID, item.RemainingToShip())
		}
		if ledger.TotalQty(s.Draws) != s.Qty {
			return ErrDrawMismatch
		}
	}

	at = at.UTC()
	for _, s := range shipments {
		item, _ := t.itemByID(s.ItemID)
		item.ShipmentBatches = append(item.ShipmentBatches, ShipmentBatch{
			ID:               uuid.New(),
			BatchNumber:      len(item.ShipmentBatches) + 1,
			Qty:              s.Qty,
			ShippedAt:        at,
			ShippedByActorID: actorID,
			LotsConsumed:     s.Draws,
		})
		item.QtyShipped += s.Qty
	}
	if t.ShippedAt == nil {
		t.ShippedAt = &at
		t.ShippedByActorID = &actorID
	}
	next := StatusInTransit
	if t.Status == StatusPartiallyReceived {
		next = StatusPartiallyReceived
	}
	if err := t.transition(next, "ship"); err != nil {
		return err
	}
	t.AddDomainEvent(NewTransferEvent(EventTypeTransferShipped, t, actorID))
	return nil
}

// ReceiveLine is the planned quantity of one item in a receipt, with the
// unit cost carried over from the shipped lots
type ReceiveLine struct {
	ItemID    uuid.UUID
	ProductID uuid.UUID
	Qty       int64
	UnitCost  *int64
}

// PlanReceipt clamps requested per-product quantities to what is in transit.
// A nil map receives everything in transit.
func (t *Transfer) PlanReceipt(requested map[uuid.UUID]int64) ([]ReceiveLine, error) {
	if t.Status != StatusInTransit && t.Status != StatusPartiallyReceived {
		return nil, invalidTransition(t.Status, "receive")
	}
	if err := t.checkProducts(requested); err != nil {
		return nil, err
	}
	var lines []ReceiveLine
	for _, item := range t.Items {
		qty := item.InTransit()
		if requested != nil {
			want, ok := requested[item.ProductID]
			if !ok {
				continue
			}
			if want < 0 {
				return nil, ErrInvalidQuantity
			}
			qty = min(want, qty)
		}
		if qty > 0 {
			lines = append(lines, ReceiveLine{ItemID: item.ID, ProductID: item.ProductID, Qty: qty, UnitCost: item.ShippedCost()})
		}
	}
	if len(lines) == 0 {
		return nil, ErrNothingToReceive
	}
	return lines, nil
}

// ItemReceipt is a planned receipt line with the destination lot it created
type ItemReceipt struct {
	ReceiveLine
	LotID uuid.UUID
}

// Receive records receipts and moves the transfer to PARTIALLY_RECEIVED or,
// once every item's received quantity equals its approved quantity, COMPLETED
func (t *Transfer) Receive(actorID uuid.UUID, at time.Time, receipts []ItemReceipt) error {
	if t.Status != StatusInTransit && t.Status != StatusPartiallyReceived {
		return invalidTransition(t.Status, "receive")
	}
	if len(receipts) == 0 {
		return ErrNothingToReceive
	}
	for _, r := range receipts {
		item, err := t.itemByID(r.ItemID)
		if err != nil {
			return err
		}
		if r.Qty <= 0 || r.Qty > item.InTransit() {
			return ErrInvalidQuantity.WithMessage("cannot receive %d of product %s, %d in transit", r.Qty, item.ProductID, item.InTransit())
		}
	}

	at = at.UTC()
	for _, r := range receipts {
		item, _ := t.itemByID(r.ItemID)
		item.Receipts = append(item.Receipts, ReceiptBatch{
			ID:                uuid.New(),
			BatchNumber:       len(item.Receipts) + 1,
			Qty:               r.Qty,
			LotID:             r.LotID,
			UnitCost:          r.UnitCost,
			ReceivedAt:        at,
			ReceivedByActorID: actorID,
		})
		item.QtyReceived += r.Qty
	}
	if t.ReceivedAt == nil {
		t.ReceivedAt = &at
	}
	t.ReceivedByActorID = &actorID

	next := StatusCompleted
	for _, item := range t.Items {
		if !item.IsFullyReceived() {
			next = StatusPartiallyReceived
			break
		}
	}
	if err := t.transition(next, "receive"); err != nil {
		return err
	}
	t.AddDomainEvent(NewTransferEvent(EventTypeTransferReceived, t, actorID))
	if next == StatusCompleted {
		t.CompletedAt = &at
		t.AddDomainEvent(NewTransferEvent(EventTypeTransferCompleted, t, actorID))
	}
	return nil
}

// Cancel closes the transfer from REQUESTED, APPROVED or IN_TRANSIT.
// It returns the lots drawn by every shipment so the caller can restore them
// at the source branch; nothing has been received while IN_TRANSIT.
func (t *Transfer) Cancel(actorID uuid.UUID, reason string) ([]ledger.LotDraw, error) {
	if err := t.transition(StatusCancelled, "cancel"); err != nil {
		return nil, err
	}
	now := t.UpdatedAt
	t.CancelledAt = &now
	t.CancelledByActorID = &actorID
	t.CancelReason = reason

	var draws []ledger.LotDraw
	for _, item := range t.Items {
		draws = append(draws, item.ShippedDraws()...)
	}
	t.AddDomainEvent(NewTransferEvent(EventTypeTransferCancelled, t, actorID))
	return ledger.MergeDraws(draws), nil
}

// RejectByApproval applies a rejected approval level: a pending request is
// rejected, an approved but unshipped transfer is cancelled
func (t *Transfer) RejectByApproval(actorID uuid.UUID, level int, notes string) error {
	reason := "approval level " + strconv.Itoa(level) + " rejected"
	if strings.TrimSpace(notes) != "" {
		reason += ": " + notes
	}
	switch t.Status {
	case StatusRequested:
		return t.Reject(actorID, reason)
	case StatusApproved:
		_, err := t.Cancel(actorID, reason)
		return err
	default:
		return invalidTransition(t.Status, "reject approval of")
	}
}

// CheckReversible enforces a single reversal from COMPLETED
func (t *Transfer) CheckReversible() error {
	if t.Status != StatusCompleted {
		return invalidTransition(t.Status, "reverse")
	}
	if t.ReversalOfID != nil {
		return ErrReversalOfReversal
	}
	if t.ReversedByID != nil {
		return ErrAlreadyReversed
	}
	return nil
}

// ReversalLine carries, per item of the original, the destination lots drawn
// back and the source lots restored
type ReversalLine struct {
	ProductID    uuid.UUID
	Qty          int64
	DrawnBack    []ledger.LotDraw
	RestoredLots []ledger.LotDraw
}

// NewReversal builds the sibling transfer that undoes a completed one. The
// sibling runs in the opposite direction and is created directly in COMPLETED.
func NewReversal(original *Transfer, actorID uuid.UUID, reason string, lines []ReversalLine) (*Transfer, error) {
	if err := original.CheckReversible(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNothingToShip
	}
	r := &Transfer{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(original.TenantID),
		SourceBranchID:      original.DestinationBranchID,
		DestinationBranchID: original.SourceBranchID,
		InitiationType:      original.InitiationType,
		InitiatedByBranchID: original.DestinationBranchID,
		Status:              StatusCompleted,
		Priority:            original.Priority,
		Notes:               reason,
		RequestedByActorID:  actorID,
		ReversalOfID:        &original.ID,
		ReversalReason:      reason,
	}
	now := r.CreatedAt
	r.TransferNumber = GenerateNumber(now)
	r.RequestedAt = now
	r.ReviewedAt, r.ReviewedByActorID = &now, &actorID
	r.ShippedAt, r.ShippedByActorID = &now, &actorID
	r.ReceivedAt, r.ReceivedByActorID = &now, &actorID
	r.CompletedAt = &now

	for _, line := range lines {
		if line.Qty <= 0 || ledger.TotalQty(line.DrawnBack) != line.Qty || ledger.TotalQty(line.RestoredLots) != line.Qty {
			return nil, ErrDrawMismatch
		}
		qty := line.Qty
		item := newItem(r.ID, ItemLine{ProductID: line.ProductID, Qty: qty})
		item.QtyApproved = &qty
		item.QtyShipped = qty
		item.QtyReceived = qty
		item.ShipmentBatches = []ShipmentBatch{{
			ID: uuid.New(), BatchNumber: 1, Qty: qty, ShippedAt: now, ShippedByActorID: actorID, LotsConsumed: line.DrawnBack,
		}}
		for i, lot := range line.RestoredLots {
			item.Receipts = append(item.Receipts, ReceiptBatch{
				ID: uuid.New(), BatchNumber: i + 1, Qty: lot.Qty, LotID: lot.LotID, UnitCost: lot.UnitCost,
				ReceivedAt: now, ReceivedByActorID: actorID,
			})
		}
		r.Items = append(r.Items, item)
	}

	original.ReversedByID = &r.ID
	original.ReversalReason = reason
	original.UpdatedAt = now
	original.AddDomainEvent(NewTransferReversedEvent(original, r, actorID))
	r.AddDomainEvent(NewTransferEvent(EventTypeTransferCompleted, r, actorID))
	return r, nil
}

func (t *Transfer) itemByID(id uuid.UUID) (*Item, error) {
	for _, item := range t.Items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, ErrUnknownItem
}
