package models

import (
	"time"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/google/uuid"
)

// StockLotModel is the persistence model for a FIFO stock lot
type StockLotModel struct {
	BaseModel
	TenantID     uuid.UUID `gorm:"type:uuid;not null;index:idx_stock_lots_fifo,priority:1"`
	BranchID     uuid.UUID `gorm:"type:uuid;not null;index:idx_stock_lots_fifo,priority:2"`
	ProductID    uuid.UUID `gorm:"type:uuid;not null;index:idx_stock_lots_fifo,priority:3"`
	QtyReceived  int64     `gorm:"not null"`
	QtyRemaining int64     `gorm:"not null"`
	UnitCost     *int64
	SourceRef    string    `gorm:"type:varchar(100);not null;default:''"`
	ReceivedAt   time.Time `gorm:"not null;index:idx_stock_lots_fifo,priority:4"`
}

// TableName returns the table name for GORM
func (StockLotModel) TableName() string {
	return TableStockLots
}

// ToDomain converts the persistence model to a domain StockLot
func (m *StockLotModel) ToDomain() *ledger.StockLot {
	return &ledger.StockLot{
		BaseEntity:   m.BaseModel.ToDomain(),
		TenantID:     m.TenantID,
		BranchID:     m.BranchID,
		ProductID:    m.ProductID,
		QtyReceived:  m.QtyReceived,
		QtyRemaining: m.QtyRemaining,
		UnitCost:     m.UnitCost,
		SourceRef:    m.SourceRef,
		ReceivedAt:   m.ReceivedAt.UTC(),
	}
}

// StockLotModelFromDomain creates a persistence model from a domain StockLot
func StockLotModelFromDomain(l *ledger.StockLot) *StockLotModel {
	m := &StockLotModel{
		TenantID:     l.TenantID,
		BranchID:     l.BranchID,
		ProductID:    l.ProductID,
		QtyReceived:  l.QtyReceived,
		QtyRemaining: l.QtyRemaining,
		UnitCost:     l.UnitCost,
		SourceRef:    l.SourceRef,
		ReceivedAt:   l.ReceivedAt,
	}
	m.FromDomainBaseEntity(l.BaseEntity)
	return m
}

// LedgerEntryModel is one append-only ledger row
type LedgerEntryModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_ledger_entries_scope,priority:1"`
	BranchID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_ledger_entries_scope,priority:2"`
	ProductID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_ledger_entries_scope,priority:3"`
	LotID      *uuid.UUID `gorm:"type:uuid;index"`
	Kind       string     `gorm:"type:varchar(20);not null"`
	QtyDelta   int64      `gorm:"not null"`
	Reason     string     `gorm:"type:varchar(500);not null;default:''"`
	SourceRef  string     `gorm:"type:varchar(100);not null;default:''"`
	ActorID    uuid.UUID  `gorm:"type:uuid;not null"`
	OccurredAt time.Time  `gorm:"not null;index:idx_ledger_entries_scope,priority:4"`
	CreatedAt  time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return TableLedgerEntries
}

// ToDomain converts the persistence model to a domain LedgerEntry
func (m *LedgerEntryModel) ToDomain() *ledger.LedgerEntry {
	return &ledger.LedgerEntry{
		ID:         m.ID,
		TenantID:   m.TenantID,
		BranchID:   m.BranchID,
		ProductID:  m.ProductID,
		LotID:      m.LotID,
		Kind:       ledger.EntryKind(m.Kind),
		QtyDelta:   m.QtyDelta,
		Reason:     m.Reason,
		SourceRef:  m.SourceRef,
		ActorID:    m.ActorID,
		OccurredAt: m.OccurredAt.UTC(),
		CreatedAt:  m.CreatedAt.UTC(),
	}
}

// LedgerEntryModelFromDomain creates a persistence model from a domain LedgerEntry
func LedgerEntryModelFromDomain(e *ledger.LedgerEntry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ID:         e.ID,
		TenantID:   e.TenantID,
		BranchID:   e.BranchID,
		ProductID:  e.ProductID,
		LotID:      e.LotID,
		Kind:       string(e.Kind),
		QtyDelta:   e.QtyDelta,
		Reason:     e.Reason,
		SourceRef:  e.SourceRef,
		ActorID:    e.ActorID,
		OccurredAt: e.OccurredAt,
		CreatedAt:  e.CreatedAt,
	}
}

// StockLevelModel is the per branch/product aggregate row. It is the hot
// row every ledger mutation locks first.
type StockLevelModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_stock_levels_scope,priority:1"`
	BranchID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_stock_levels_scope,priority:2"`
	ProductID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_stock_levels_scope,priority:3"`
	QtyOnHand    int64     `gorm:"not null;default:0"`
	QtyAllocated int64     `gorm:"not null;default:0"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockLevelModel) TableName() string {
	return TableStockLevels
}

// ToDomain converts the persistence model to a domain StockLevel
func (m *StockLevelModel) ToDomain() *ledger.StockLevel {
	return &ledger.StockLevel{
		ID:           m.ID,
		TenantID:     m.TenantID,
		BranchID:     m.BranchID,
		ProductID:    m.ProductID,
		QtyOnHand:    m.QtyOnHand,
		QtyAllocated: m.QtyAllocated,
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

// StockLevelModelFromDomain creates a persistence model from a domain StockLevel
func StockLevelModelFromDomain(s *ledger.StockLevel) *StockLevelModel {
	return &StockLevelModel{
		ID:           s.ID,
		TenantID:     s.TenantID,
		BranchID:     s.BranchID,
		ProductID:    s.ProductID,
		QtyOnHand:    s.QtyOnHand,
		QtyAllocated: s.QtyAllocated,
		UpdatedAt:    s.UpdatedAt,
	}
}
