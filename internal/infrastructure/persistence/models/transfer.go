package models

import (
	"time"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/google/uuid"
)

// StockTransferModel is the persistence model for the Transfer aggregate root
type StockTransferModel struct {
	TenantAggregateModel
	TransferNumber      string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_stock_transfers_number"`
	SourceBranchID      uuid.UUID `gorm:"type:uuid;not null;index"`
	DestinationBranchID uuid.UUID `gorm:"type:uuid;not null;index"`
	InitiationType      string    `gorm:"type:varchar(10);not null"`
	InitiatedByBranchID uuid.UUID `gorm:"type:uuid;not null"`
	Status              string    `gorm:"type:varchar(24);not null;index"`
	Priority            string    `gorm:"type:varchar(10);not null"`
	Notes               string    `gorm:"type:text;not null;default:''"`

	RequestedByActorID uuid.UUID  `gorm:"type:uuid;not null"`
	RequestedAt        time.Time  `gorm:"not null"`
	ReviewedByActorID  *uuid.UUID `gorm:"type:uuid"`
	ReviewedAt         *time.Time
	ReviewNotes        string     `gorm:"type:text;not null;default:''"`
	ShippedByActorID   *uuid.UUID `gorm:"type:uuid"`
	ShippedAt          *time.Time
	ReceivedByActorID  *uuid.UUID `gorm:"type:uuid"`
	ReceivedAt         *time.Time
	CompletedAt        *time.Time
	CancelledByActorID *uuid.UUID `gorm:"type:uuid"`
	CancelledAt        *time.Time
	CancelReason       string `gorm:"type:text;not null;default:''"`

	RequiresMultiLevelApproval bool       `gorm:"not null;default:false"`
	ApprovalRuleID             *uuid.UUID `gorm:"type:uuid"`

	ReversalOfID   *uuid.UUID `gorm:"type:uuid;index"`
	ReversedByID   *uuid.UUID `gorm:"type:uuid"`
	ReversalReason string     `gorm:"type:text;not null;default:''"`

	Items []StockTransferItemModel `gorm:"foreignKey:TransferID;references:ID"`
}

// TableName returns the table name for GORM
func (StockTransferModel) TableName() string {
	return TableStockTransfers
}

// ToDomain converts the persistence model to a domain Transfer
func (m *StockTransferModel) ToDomain() *transfer.Transfer {
	t := &transfer.Transfer{
		TenantAggregateRoot:        m.TenantAggregateRoot(),
		TransferNumber:             m.TransferNumber,
		SourceBranchID:             m.SourceBranchID,
		DestinationBranchID:        m.DestinationBranchID,
		InitiationType:             transfer.InitiationType(m.InitiationType),
		InitiatedByBranchID:        m.InitiatedByBranchID,
		Status:                     transfer.Status(m.Status),
		Priority:                   transfer.Priority(m.Priority),
		Notes:                      m.Notes,
		RequestedByActorID:         m.RequestedByActorID,
		RequestedAt:                m.RequestedAt.UTC(),
		ReviewedByActorID:          m.ReviewedByActorID,
		ReviewedAt:                 utcPtr(m.ReviewedAt),
		ReviewNotes:                m.ReviewNotes,
		ShippedByActorID:           m.ShippedByActorID,
		ShippedAt:                  utcPtr(m.ShippedAt),
		ReceivedByActorID:          m.ReceivedByActorID,
		ReceivedAt:                 utcPtr(m.ReceivedAt),
		CompletedAt:                utcPtr(m.CompletedAt),
		CancelledByActorID:         m.CancelledByActorID,
		CancelledAt:                utcPtr(m.CancelledAt),
		CancelReason:               m.CancelReason,
		RequiresMultiLevelApproval: m.RequiresMultiLevelApproval,
		ApprovalRuleID:             m.ApprovalRuleID,
		ReversalOfID:               m.ReversalOfID,
		ReversedByID:               m.ReversedByID,
		ReversalReason:             m.ReversalReason,
		Items:                      make([]*transfer.Item, 0, len(m.Items)),
	}
	for i := range m.Items {
		t.Items = append(t.Items, m.Items[i].ToDomain())
	}
	return t
}

// StockTransferModelFromDomain creates a persistence model from a domain
// Transfer, including items, batches, draws and receipts
func StockTransferModelFromDomain(t *transfer.Transfer) *StockTransferModel {
	m := &StockTransferModel{
		TransferNumber:             t.TransferNumber,
		SourceBranchID:             t.SourceBranchID,
		DestinationBranchID:        t.DestinationBranchID,
		InitiationType:             string(t.InitiationType),
		InitiatedByBranchID:        t.InitiatedByBranchID,
		Status:                     string(t.Status),
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
		Items:                      make([]StockTransferItemModel, 0, len(t.Items)),
	}
	m.FromDomainTenantAggregateRoot(t.TenantAggregateRoot)
	for _, item := range t.Items {
		m.Items = append(m.Items, *StockTransferItemModelFromDomain(t.TenantID, item))
	}
	return m
}

// StockTransferItemModel is one product line of a transfer
type StockTransferItemModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null"`
	TransferID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_transfer_items_product,priority:1"`
	ProductID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_transfer_items_product,priority:2"`
	QtyRequested int64     `gorm:"not null"`
	QtyApproved  *int64
	QtyShipped   int64 `gorm:"not null;default:0"`
	QtyReceived  int64 `gorm:"not null;default:0"`

	ShipmentBatches []ShipmentBatchModel `gorm:"foreignKey:ItemID;references:ID"`
	Receipts        []ReceiptBatchModel  `gorm:"foreignKey:ItemID;references:ID"`
}

// TableName returns the table name for GORM
func (StockTransferItemModel) TableName() string {
	return TableStockTransferItems
}

// ToDomain converts the persistence model to a domain Item
func (m *StockTransferItemModel) ToDomain() *transfer.Item {
	item := &transfer.Item{
		ID:           m.ID,
		TransferID:   m.TransferID,
		ProductID:    m.ProductID,
		QtyRequested: m.QtyRequested,
		QtyApproved:  m.QtyApproved,
		QtyShipped:   m.QtyShipped,
		QtyReceived:  m.QtyReceived,
	}
	for i := range m.ShipmentBatches {
		item.ShipmentBatches = append(item.ShipmentBatches, m.ShipmentBatches[i].ToDomain())
	}
	for i := range m.Receipts {
		item.Receipts = append(item.Receipts, m.Receipts[i].ToDomain())
	}
	return item
}

// StockTransferItemModelFromDomain creates a persistence model from a domain Item
func StockTransferItemModelFromDomain(tenantID uuid.UUID, i *transfer.Item) *StockTransferItemModel {
	m := &StockTransferItemModel{
		ID:           i.ID,
		TenantID:     tenantID,
		TransferID:   i.TransferID,
		ProductID:    i.ProductID,
		QtyRequested: i.QtyRequested,
		QtyApproved:  i.QtyApproved,
		QtyShipped:   i.QtyShipped,
		QtyReceived:  i.QtyReceived,
	}
	for _, b := range i.ShipmentBatches {
		m.ShipmentBatches = append(m.ShipmentBatches, ShipmentBatchModelFromDomain(tenantID, i.ID, b))
	}
	for _, r := range i.Receipts {
		m.Receipts = append(m.Receipts, ReceiptBatchModelFromDomain(tenantID, i.ID, r))
	}
	return m
}

// ShipmentBatchModel is one act of shipping part of an item
type ShipmentBatchModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID `gorm:"type:uuid;not null"`
	ItemID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_shipment_batches_number,priority:1"`
	BatchNumber      int       `gorm:"not null;uniqueIndex:uq_shipment_batches_number,priority:2"`
	Qty              int64     `gorm:"not null"`
	ShippedAt        time.Time `gorm:"not null"`
	ShippedByActorID uuid.UUID `gorm:"type:uuid;not null"`

	Draws []ShipmentLotDrawModel `gorm:"foreignKey:BatchID;references:ID"`
}

// TableName returns the table name for GORM
func (ShipmentBatchModel) TableName() string {
	return TableShipmentBatches
}

// ToDomain converts the persistence model to a domain ShipmentBatch
func (m *ShipmentBatchModel) ToDomain() transfer.ShipmentBatch {
	b := transfer.ShipmentBatch{
		ID:               m.ID,
		BatchNumber:      m.BatchNumber,
		Qty:              m.Qty,
		ShippedAt:        m.ShippedAt.UTC(),
		ShippedByActorID: m.ShippedByActorID,
		LotsConsumed:     make([]ledger.LotDraw, 0, len(m.Draws)),
	}
	for _, d := range m.Draws {
		b.LotsConsumed = append(b.LotsConsumed, ledger.LotDraw{LotID: d.LotID, Qty: d.Qty, UnitCost: d.UnitCost})
	}
	return b
}

// ShipmentBatchModelFromDomain creates a persistence model from a domain ShipmentBatch
func ShipmentBatchModelFromDomain(tenantID, itemID uuid.UUID, b transfer.ShipmentBatch) ShipmentBatchModel {
	m := ShipmentBatchModel{
		ID:               b.ID,
		TenantID:         tenantID,
		ItemID:           itemID,
		BatchNumber:      b.BatchNumber,
		Qty:              b.Qty,
		ShippedAt:        b.ShippedAt,
		ShippedByActorID: b.ShippedByActorID,
	}
	for seq, d := range b.LotsConsumed {
		m.Draws = append(m.Draws, ShipmentLotDrawModel{
			BatchID:  b.ID,
			Seq:      seq + 1,
			LotID:    d.LotID,
			Qty:      d.Qty,
			UnitCost: d.UnitCost,
		})
	}
	return m
}

// ShipmentLotDrawModel records how much of one lot a shipment batch drew.
// Seq keeps the FIFO order of the draws.
type ShipmentLotDrawModel struct {
	BatchID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq      int       `gorm:"primaryKey"`
	LotID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Qty      int64     `gorm:"not null"`
	UnitCost *int64
}

// TableName returns the table name for GORM
func (ShipmentLotDrawModel) TableName() string {
	return TableShipmentLotDraws
}

// ReceiptBatchModel is one act of receiving part of an item into a destination lot
type ReceiptBatchModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID `gorm:"type:uuid;not null"`
	ItemID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_receipt_batches_number,priority:1"`
	BatchNumber       int       `gorm:"not null;uniqueIndex:uq_receipt_batches_number,priority:2"`
	Qty               int64     `gorm:"not null"`
	LotID             uuid.UUID `gorm:"type:uuid;not null"`
	UnitCost          *int64
	ReceivedAt        time.Time `gorm:"not null"`
	ReceivedByActorID uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (ReceiptBatchModel) TableName() string {
	return TableReceiptBatches
}

// ToDomain converts the persistence model to a domain ReceiptBatch
func (m *ReceiptBatchModel) ToDomain() transfer.ReceiptBatch {
	return transfer.ReceiptBatch{
		ID:                m.ID,
		BatchNumber:       m.BatchNumber,
		Qty:               m.Qty,
		LotID:             m.LotID,
		UnitCost:          m.UnitCost,
		ReceivedAt:        m.ReceivedAt.UTC(),
		ReceivedByActorID: m.ReceivedByActorID,
	}
}

// ReceiptBatchModelFromDomain creates a persistence model from a domain ReceiptBatch
func ReceiptBatchModelFromDomain(tenantID, itemID uuid.UUID, r transfer.ReceiptBatch) ReceiptBatchModel {
	return ReceiptBatchModel{
		ID:                r.ID,
		TenantID:          tenantID,
		ItemID:            itemID,
		BatchNumber:       r.BatchNumber,
		Qty:               r.Qty,
		LotID:             r.LotID,
		UnitCost:          r.UnitCost,
		ReceivedAt:        r.ReceivedAt,
		ReceivedByActorID: r.ReceivedByActorID,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
