package models

import (
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// TenantAggregateModel holds the persisted fields of a tenant-scoped
// aggregate root. Version backs optimistic locking.
type TenantAggregateModel struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Version  int       `gorm:"not null;default:1"`
}

// FromDomainTenantAggregateRoot populates TenantAggregateModel from domain TenantAggregateRoot
func (m *TenantAggregateModel) FromDomainTenantAggregateRoot(t shared.TenantAggregateRoot) {
	m.FromDomainBaseEntity(t.BaseEntity)
	m.TenantID = t.TenantID
	m.Version = t.Version
}

// TenantAggregateRoot rebuilds the domain root. Pending events start empty.
func (m *TenantAggregateModel) TenantAggregateRoot() shared.TenantAggregateRoot {
	return shared.TenantAggregateRoot{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: m.BaseModel.ToDomain(),
			Version:    m.Version,
		},
		TenantID: m.TenantID,
	}
}

// Table names of the stockflow schema
const (
	TableStockLots          = "stock_lots"
	TableLedgerEntries      = "ledger_entries"
	TableStockLevels        = "stock_levels"
	TableStockTransfers     = "stock_transfers"
	TableStockTransferItems = "stock_transfer_items"
	TableShipmentBatches    = "shipment_batches"
	TableShipmentLotDraws   = "shipment_lot_draws"
	TableReceiptBatches     = "receipt_batches"
	TableApprovalRules      = "approval_rules"
	TableRuleConditions     = "approval_rule_conditions"
	TableRuleLevels         = "approval_rule_levels"
	TableTransferApprovals  = "transfer_approvals"
	TableIdempotencyRecords = "idempotency_records"
	TableAuditEvents        = "audit_events"
	TableBranchMemberships  = "branch_memberships"
	TableActorPermissions   = "actor_permissions"
	TableActorProfiles      = "actor_profiles"
	TableCatalogProducts    = "catalog_products"
)

// All returns every model in dependency order, for AutoMigrate in tests
func All() []any {
	return []any{
		&StockLotModel{},
		&LedgerEntryModel{},
		&StockLevelModel{},
		&StockTransferModel{},
		&StockTransferItemModel{},
		&ShipmentBatchModel{},
		&ShipmentLotDrawModel{},
		&ReceiptBatchModel{},
		&ApprovalRuleModel{},
		&ApprovalRuleConditionModel{},
		&ApprovalRuleLevelModel{},
		&TransferApprovalModel{},
		&IdempotencyRecordModel{},
		&AuditEventModel{},
		&BranchMembershipModel{},
		&ActorPermissionModel{},
		&ActorProfileModel{},
		&CatalogProductModel{},
	}
}
