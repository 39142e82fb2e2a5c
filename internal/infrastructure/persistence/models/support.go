package models

import (
	"time"

	"github.com/erp/stockflow/internal/application/inventory"
	"github.com/google/uuid"
)

// IdempotencyRecordModel stores the committed result of a keyed mutation
type IdempotencyRecordModel struct {
	TenantID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Scope       string    `gorm:"type:varchar(64);primaryKey"`
	Key         string    `gorm:"column:idem_key;type:varchar(128);primaryKey"`
	RequestHash string    `gorm:"type:char(64);not null"`
	Response    []byte    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (IdempotencyRecordModel) TableName() string {
	return TableIdempotencyRecords
}

// ToDomain converts the persistence model to an IdempotencyRecord
func (m *IdempotencyRecordModel) ToDomain() *inventory.IdempotencyRecord {
	return &inventory.IdempotencyRecord{
		TenantID:    m.TenantID,
		Scope:       m.Scope,
		Key:         m.Key,
		RequestHash: m.RequestHash,
		Response:    m.Response,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

// IdempotencyRecordModelFromDomain creates a persistence model from an IdempotencyRecord
func IdempotencyRecordModelFromDomain(r *inventory.IdempotencyRecord) *IdempotencyRecordModel {
	return &IdempotencyRecordModel{
		TenantID:    r.TenantID,
		Scope:       r.Scope,
		Key:         r.Key,
		RequestHash: r.RequestHash,
		Response:    r.Response,
		CreatedAt:   r.CreatedAt,
	}
}

// AuditEventModel is one immutable audit row
type AuditEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_events_entity,priority:1"`
	ActorID       uuid.UUID `gorm:"type:uuid;not null"`
	ActorDisplay  string    `gorm:"type:varchar(200);not null;default:''"`
	EntityType    string    `gorm:"type:varchar(32);not null;index:idx_audit_events_entity,priority:2"`
	EntityID      uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_events_entity,priority:3"`
	Action        string    `gorm:"type:varchar(32);not null"`
	Before        []byte    `gorm:"type:jsonb"`
	After         []byte    `gorm:"type:jsonb"`
	CorrelationID string    `gorm:"type:varchar(64);not null;default:''"`
	OccurredAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditEventModel) TableName() string {
	return TableAuditEvents
}

// ToDomain converts the persistence model to an AuditEvent
func (m *AuditEventModel) ToDomain() inventory.AuditEvent {
	return inventory.AuditEvent{
		ID:            m.ID,
		TenantID:      m.TenantID,
		ActorID:       m.ActorID,
		ActorDisplay:  m.ActorDisplay,
		EntityType:    m.EntityType,
		EntityID:      m.EntityID,
		Action:        m.Action,
		Before:        m.Before,
		After:         m.After,
		CorrelationID: m.CorrelationID,
		OccurredAt:    m.OccurredAt.UTC(),
	}
}

// AuditEventModelFromDomain creates a persistence model from an AuditEvent
func AuditEventModelFromDomain(e inventory.AuditEvent) *AuditEventModel {
	return &AuditEventModel{
		ID:            e.ID,
		TenantID:      e.TenantID,
		ActorID:       e.ActorID,
		ActorDisplay:  e.ActorDisplay,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Action:        e.Action,
		Before:        e.Before,
		After:         e.After,
		CorrelationID: e.CorrelationID,
		OccurredAt:    e.OccurredAt,
	}
}

// BranchMembershipModel grants an actor membership of a branch
type BranchMembershipModel struct {
	TenantID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ActorID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	BranchID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BranchMembershipModel) TableName() string {
	return TableBranchMemberships
}

// ActorPermissionModel grants an actor a named permission
type ActorPermissionModel struct {
	TenantID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	ActorID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Permission string    `gorm:"type:varchar(64);primaryKey"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ActorPermissionModel) TableName() string {
	return TableActorPermissions
}

// ActorProfileModel holds the display name shown in audit trails
type ActorProfileModel struct {
	ActorID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index"`
	DisplayName string    `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (ActorProfileModel) TableName() string {
	return TableActorProfiles
}

// CatalogProductModel is the local read model of catalog products
type CatalogProductModel struct {
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	SKU      string    `gorm:"column:sku;type:varchar(64);not null"`
	Name     string    `gorm:"type:varchar(200);not null"`
	Price    int64     `gorm:"not null;default:0"`
	IsActive bool      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CatalogProductModel) TableName() string {
	return TableCatalogProducts
}
