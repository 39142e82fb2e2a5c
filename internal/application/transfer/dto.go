package transfer

import (
	"time"

	"github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/google/uuid"
)

// ItemQuantity is a per-product quantity in a request
type ItemQuantity struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int64     `json:"quantity" binding:"gte=0"`
}

// CreateTransferItem is one requested line
type CreateTransferItem struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int64     `json:"quantity" binding:"required,gt=0"`
}

// CreateTransferRequest represents a request to move stock between branches
type CreateTransferRequest struct {
	SourceBranchID      uuid.UUID            `json:"source_branch_id" binding:"required"`
	DestinationBranchID uuid.UUID            `json:"destination_branch_id" binding:"required,branch_pair=SourceBranchID"`
	InitiationType      string               `json:"initiation_type" binding:"required,oneof=PUSH PULL"`
	Priority            string               `json:"priority,omitempty" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	Notes               string               `json:"notes,omitempty" binding:"max=1000"`
	Items               []CreateTransferItem `json:"items" binding:"required,min=1,dive"`

	IdempotencyKey string `json:"-"`
}

// Review actions
const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
)

// ReviewTransferRequest approves (optionally with reduced quantities) or rejects a request
type ReviewTransferRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
	// Items overrides approved quantities; products not listed are approved in full
	Items []ItemQuantity `json:"items,omitempty" binding:"omitempty,dive"`
	Notes string         `json:"notes,omitempty" binding:"max=1000"`

	IdempotencyKey string `json:"-"`
}

// ShipTransferRequest ships part or all of the approved quantities.
// Without items everything remaining is shipped.
type ShipTransferRequest struct {
	Items []ItemQuantity `json:"items,omitempty" binding:"omitempty,dive"`

	IdempotencyKey string `json:"-"`
}

// ReceiveTransferRequest receives part or all of the quantities in transit.
// Without items everything in transit is received.
type ReceiveTransferRequest struct {
	Items []ItemQuantity `json:"items,omitempty" binding:"omitempty,dive"`

	IdempotencyKey string `json:"-"`
}

// CancelTransferRequest represents a cancellation
type CancelTransferRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`

	IdempotencyKey string `json:"-"`
}

// ReverseTransferRequest represents a reversal of a completed transfer
type ReverseTransferRequest struct {
	Reason string `json:"reason,omitempty" binding:"max=500"`

	IdempotencyKey string `json:"-"`
}

// SubmitApprovalRequest decides one approval level
type SubmitApprovalRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes,omitempty" binding:"max=1000"`

	IdempotencyKey string `json:"-"`
}

// ListTransfersRequest represents list filters and keyset pagination
type ListTransfersRequest struct {
	Statuses            []string   `form:"status" json:"status,omitempty"`
	SourceBranchID      *uuid.UUID `form:"source_branch_id" json:"source_branch_id,omitempty"`
	DestinationBranchID *uuid.UUID `form:"destination_branch_id" json:"destination_branch_id,omitempty"`
	BranchID            *uuid.UUID `form:"branch_id" json:"branch_id,omitempty"`
	Priority            string     `form:"priority" json:"priority,omitempty" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	CreatedFrom         *time.Time `form:"created_from" json:"created_from,omitempty" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedTo           *time.Time `form:"created_to" json:"created_to,omitempty" time_format:"2006-01-02T15:04:05Z07:00"`
	SortBy              string     `form:"sort_by" json:"sort_by,omitempty" binding:"omitempty,oneof=created_at updated_at"`
	SortDir             string     `form:"sort_dir" json:"sort_dir,omitempty" binding:"omitempty,oneof=asc desc"`
	Cursor              string     `form:"cursor" json:"cursor,omitempty"`
	Limit               int        `form:"limit" json:"limit,omitempty" binding:"omitempty,min=1,max=100"`
}

// ShipmentBatchResponse represents one shipment of an item
type ShipmentBatchResponse struct {
	BatchNumber      int                         `json:"batch_number"`
	Qty              int64                       `json:"qty"`
	ShippedAt        time.Time                   `json:"shipped_at"`
	ShippedByActorID uuid.UUID                   `json:"shipped_by_actor_id"`
	LotsConsumed     []inventory.LotDrawResponse `json:"lots_consumed"`
}

// ReceiptBatchResponse represents one receipt of an item
type ReceiptBatchResponse struct {
	BatchNumber       int       `json:"batch_number"`
	Qty               int64     `json:"qty"`
	LotID             uuid.UUID `json:"lot_id"`
	UnitCost          *int64    `json:"unit_cost,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
	ReceivedByActorID uuid.UUID `json:"received_by_actor_id"`
}

// TransferItemResponse represents a transfer line
type TransferItemResponse struct {
	ID              uuid.UUID               `json:"id"`
	ProductID       uuid.UUID               `json:"product_id"`
	QtyRequested    int64                   `json:"qty_requested"`
	QtyApproved     *int64                  `json:"qty_approved,omitempty"`
	QtyShipped      int64                   `json:"qty_shipped"`
	QtyReceived     int64                   `json:"qty_received"`
	ShipmentBatches []ShipmentBatchResponse `json:"shipment_batches"`
	Receipts        []ReceiptBatchResponse  `json:"receipts"`
}

// ApprovalRecordResponse represents one approval level of a transfer
type ApprovalRecordResponse struct {
	ID             uuid.UUID  `json:"id"`
	Level          int        `json:"level"`
	LevelName      string     `json:"level_name"`
	ApproverType   string     `json:"approver_type"`
	ApproverID     uuid.UUID  `json:"approver_id"`
	Status         string     `json:"status"`
	ActedByActorID *uuid.UUID `json:"acted_by_actor_id,omitempty"`
	ActedAt        *time.Time `json:"acted_at,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// ApprovalProgressResponse summarizes the approval gate of a transfer
type ApprovalProgressResponse struct {
	TransferID     uuid.UUID                `json:"transfer_id"`
	RuleID         *uuid.UUID               `json:"rule_id,omitempty"`
	Mode           string                   `json:"mode,omitempty"`
	Total          int                      `json:"total"`
	Approved       int                      `json:"approved"`
	Pending        int                      `json:"pending"`
	Rejected       int                      `json:"rejected"`
	Skipped        int                      `json:"skipped"`
	Satisfied      bool                     `json:"satisfied"`
	EligibleLevels []int                    `json:"eligible_levels"`
	Records        []ApprovalRecordResponse `json:"records"`
}

// TransferResponse represents a transfer in API responses
type TransferResponse struct {
	ID                         uuid.UUID                 `json:"id"`
	TransferNumber             string                    `json:"transfer_number"`
	SourceBranchID             uuid.UUID                 `json:"source_branch_id"`
	DestinationBranchID        uuid.UUID                 `json:"destination_branch_id"`
	InitiationType             string                    `json:"initiation_type"`
	InitiatedByBranchID        uuid.UUID                 `json:"initiated_by_branch_id"`
	Status                     string                    `json:"status"`
	Priority                   string                    `json:"priority"`
	Notes                      string                    `json:"notes,omitempty"`
	RequestedByActorID         uuid.UUID                 `json:"requested_by_actor_id"`
	RequestedAt                time.Time                 `json:"requested_at"`
	ReviewedByActorID          *uuid.UUID                `json:"reviewed_by_actor_id,omitempty"`
	ReviewedAt                 *time.Time                `json:"reviewed_at,omitempty"`
	ReviewNotes                string                    `json:"review_notes,omitempty"`
	ShippedByActorID           *uuid.UUID                `json:"shipped_by_actor_id,omitempty"`
	ShippedAt                  *time.Time                `json:"shipped_at,omitempty"`
	ReceivedByActorID          *uuid.UUID                `json:"received_by_actor_id,omitempty"`
	ReceivedAt                 *time.Time                `json:"received_at,omitempty"`
	CompletedAt                *time.Time                `json:"completed_at,omitempty"`
	CancelledByActorID         *uuid.UUID                `json:"cancelled_by_actor_id,omitempty"`
	CancelledAt                *time.Time                `json:"cancelled_at,omitempty"`
	CancelReason               string                    `json:"cancel_reason,omitempty"`
	RequiresMultiLevelApproval bool                      `json:"requires_multi_level_approval"`
	ApprovalRuleID             *uuid.UUID                `json:"approval_rule_id,omitempty"`
	ReversalOfID               *uuid.UUID                `json:"reversal_of_id,omitempty"`
	ReversedByID               *uuid.UUID                `json:"reversed_by_id,omitempty"`
	ReversalReason             string                    `json:"reversal_reason,omitempty"`
	Items                      []TransferItemResponse    `json:"items"`
	Approval                   *ApprovalProgressResponse `json:"approval,omitempty"`
	Version                    int                       `json:"version"`
	CreatedAt                  time.Time                 `json:"created_at"`
	UpdatedAt                  time.Time                 `json:"updated_at"`
}

// ReverseTransferResponse carries the original and the reversal created for it
type ReverseTransferResponse struct {
	Original TransferResponse `json:"original"`
	Reversal TransferResponse `json:"reversal"`
}

// TransferPage is one page of transfers
type TransferPage = shared.Page[TransferResponse]

// ToTransferResponse converts a domain transfer; records may be nil
func ToTransferResponse(t *transfer.Transfer, records []*approval.Record) TransferResponse {
	resp := TransferResponse{
		ID:                         t.ID,
		TransferNumber:             t.TransferNumber,
		SourceBranchID:             t.SourceBranchID,
		DestinationBranchID:        t.DestinationBranchID,
		InitiationType:             string(t.InitiationType),
		InitiatedByBranchID:        t.InitiatedByBranchID,
		Status:                     t.Status.String(),
		Priority:                   string(t.Priority),
		Notes:                      t.Notes,
		RequestedByActorID:         t.RequestedByActorID,
		RequestedAt:                t.RequestedAt,
		ReviewedByActorID:          t.ReviewedByActorID,
		ReviewedAt:                 t.ReviewedAt,
		ReviewNotes:                t.ReviewNotes,
		ShippedByActorID:           t.ShippedByActorID,
		ShippedAt:                  t.ShippedAt,
		ReceivedByActorID:          t.ReceivedByActorID,
		ReceivedAt:                 t.ReceivedAt,
		CompletedAt:                t.CompletedAt,
		CancelledByActorID:         t.CancelledByActorID,
		CancelledAt:                t.CancelledAt,
		CancelReason:               t.CancelReason,
		RequiresMultiLevelApproval: t.RequiresMultiLevelApproval,
		ApprovalRuleID:             t.ApprovalRuleID,
		ReversalOfID:               t.ReversalOfID,
		ReversedByID:               t.ReversedByID,
		ReversalReason:             t.ReversalReason,
		Items:                      make([]TransferItemResponse, 0, len(t.Items)),
		Version:                    t.Version,
		CreatedAt:                  t.CreatedAt,
		UpdatedAt:                  t.UpdatedAt,
	}
	for _, item := range t.Items {
		resp.Items = append(resp.Items, toItemResponse(item))
	}
	if t.RequiresMultiLevelApproval && records != nil {
		progress := ToApprovalProgressResponse(t, records)
		resp.Approval = &progress
	}
	return resp
}

func toItemResponse(item *transfer.Item) TransferItemResponse {
	out := TransferItemResponse{
		ID:              item.ID,
		ProductID:       item.ProductID,
		QtyRequested:    item.QtyRequested,
		QtyApproved:     item.QtyApproved,
		QtyShipped:      item.QtyShipped,
		QtyReceived:     item.QtyReceived,
		ShipmentBatches: make([]ShipmentBatchResponse, 0, len(item.ShipmentBatches)),
		Receipts:        make([]ReceiptBatchResponse, 0, len(item.Receipts)),
	}
	for _, b := range item.ShipmentBatches {
		out.ShipmentBatches = append(out.ShipmentBatches, ShipmentBatchResponse{
			BatchNumber:      b.BatchNumber,
			Qty:              b.Qty,
			ShippedAt:        b.ShippedAt,
			ShippedByActorID: b.ShippedByActorID,
			LotsConsumed:     inventory.ToLotDrawResponses(b.LotsConsumed),
		})
	}
	for _, r := range item.Receipts {
		out.Receipts = append(out.Receipts, ReceiptBatchResponse{
			BatchNumber:       r.BatchNumber,
			Qty:               r.Qty,
			LotID:             r.LotID,
			UnitCost:          r.UnitCost,
			ReceivedAt:        r.ReceivedAt,
			ReceivedByActorID: r.ReceivedByActorID,
		})
	}
	return out
}

// ToApprovalProgressResponse summarizes records of t
func ToApprovalProgressResponse(t *transfer.Transfer, records []*approval.Record) ApprovalProgressResponse {
	p := approval.Summarize(records)
	out := ApprovalProgressResponse{
		TransferID:     t.ID,
		RuleID:         t.ApprovalRuleID,
		Mode:           string(p.Mode),
		Total:          p.Total,
		Approved:       p.Approved,
		Pending:        p.Pending,
		Rejected:       p.Rejected,
		Skipped:        p.Skipped,
		Satisfied:      p.Satisfied,
		EligibleLevels: p.EligibleLevels,
		Records:        make([]ApprovalRecordResponse, 0, len(p.Records)),
	}
	for _, r := range p.Records {
		rec := ApprovalRecordResponse{
			ID:             r.ID,
			Level:          r.Level,
			LevelName:      r.LevelName,
			Status:         string(r.Status),
			ActedByActorID: r.ActedByActorID,
			ActedAt:        r.ActedAt,
			Notes:          r.Notes,
		}
		if r.Approver != nil {
			rec.ApproverType = string(r.Approver.Type())
			rec.ApproverID = r.Approver.SubjectID()
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

// quantities turns request items into a per-product map; nil items stay nil
func quantities(items []ItemQuantity) (map[uuid.UUID]int64, error) {
	if items == nil {
		return nil, nil
	}
	out := make(map[uuid.UUID]int64, len(items))
	for _, it := range items {
		if _, dup := out[it.ProductID]; dup {
			return nil, transfer.ErrDuplicateProduct
		}
		if it.Quantity < 0 {
			return nil, transfer.ErrInvalidQuantity
		}
		out[it.ProductID] = it.Quantity
	}
	return out, nil
}
