package transfer

import (
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeTransfer = "StockTransfer"

// Event type constants
const (
	EventTypeTransferRequested = "TransferRequested"
	EventTypeTransferApproved  = "TransferApproved"
	EventTypeTransferRejected  = "TransferRejected"
	EventTypeTransferShipped   = "TransferShipped"
	EventTypeTransferReceived  = "TransferReceived"
	EventTypeTransferCompleted = "TransferCompleted"
	EventTypeTransferCancelled = "TransferCancelled"
	EventTypeTransferReversed  = "TransferReversed"
)

// EventItem is the per-item snapshot carried by transfer events
type EventItem struct {
	ProductID    uuid.UUID `json:"product_id"`
	QtyRequested int64     `json:"qty_requested"`
	QtyApproved  int64     `json:"qty_approved"`
	QtyShipped   int64     `json:"qty_shipped"`
	QtyReceived  int64     `json:"qty_received"`
}

// TransferEvent is raised on every lifecycle transition
type TransferEvent struct {
	shared.BaseDomainEvent
	TransferNumber      string      `json:"transfer_number"`
	SourceBranchID      uuid.UUID   `json:"source_branch_id"`
	DestinationBranchID uuid.UUID   `json:"destination_branch_id"`
	Status              Status      `json:"status"`
	ActorID             uuid.UUID   `json:"actor_id"`
	Items               []EventItem `json:"items"`
}

// NewTransferEvent snapshots t for eventType
func NewTransferEvent(eventType string, t *Transfer, actorID uuid.UUID) *TransferEvent {
	items := make([]EventItem, 0, len(t.Items))
	for _, item := range t.Items {
		items = append(items, EventItem{
			ProductID:    item.ProductID,
			QtyRequested: item.QtyRequested,
			QtyApproved:  item.Approved(),
			QtyShipped:   item.QtyShipped,
			QtyReceived:  item.QtyReceived,
		})
	}
	return &TransferEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(eventType, AggregateTypeTransfer, t.ID, t.TenantID),
		TransferNumber:      t.TransferNumber,
		SourceBranchID:      t.SourceBranchID,
		DestinationBranchID: t.DestinationBranchID,
		Status:              t.Status,
		ActorID:             actorID,
		Items:               items,
	}
}

// TransferReversedEvent links a completed transfer to its reversal
type TransferReversedEvent struct {
	TransferEvent
	ReversalID     uuid.UUID `json:"reversal_id"`
	ReversalNumber string    `json:"reversal_number"`
	Reason         string    `json:"reason,omitempty"`
}

// NewTransferReversedEvent creates the reversal event on the original transfer
func NewTransferReversedEvent(original, reversal *Transfer, actorID uuid.UUID) *TransferReversedEvent {
	return &TransferReversedEvent{
		TransferEvent:  *NewTransferEvent(EventTypeTransferReversed, original, actorID),
		ReversalID:     reversal.ID,
		ReversalNumber: reversal.TransferNumber,
		Reason:         original.ReversalReason,
	}
}
