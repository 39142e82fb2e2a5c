package persistence

import (
	"context"

	appinv "github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditSink persists audit events to the audit_events table.
// Display names are resolved at write time so the trail survives renames.
type GormAuditSink struct {
	db     *gorm.DB
	access appinv.AccessChecker
}

// NewGormAuditSink creates a new GormAuditSink. access may be nil.
func NewGormAuditSink(db *gorm.DB, access appinv.AccessChecker) *GormAuditSink {
	return &GormAuditSink{db: db, access: access}
}

// RecordEvent inserts one event
func (s *GormAuditSink) RecordEvent(ctx context.Context, event appinv.AuditEvent) error {
	if event.ActorDisplay == "" && s.access != nil {
		if name, err := s.access.ResolveActorDisplay(ctx, event.ActorID); err == nil {
			event.ActorDisplay = name
		}
	}
	return translate(s.db.WithContext(ctx).Create(models.AuditEventModelFromDomain(event)).Error, nil)
}

// ListEvents returns an entity's events oldest first
func (s *GormAuditSink) ListEvents(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]appinv.AuditEvent, error) {
	var rows []models.AuditEventModel
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, entityType, entityID).
		Order("occurred_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, nil)
	}
	out := make([]appinv.AuditEvent, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

var _ appinv.AuditSink = (*GormAuditSink)(nil)
