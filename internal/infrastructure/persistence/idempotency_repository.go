package persistence

import (
	"context"
	"errors"
	"time"

	appinv "github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormIdempotencyRepository stores keyed results alongside the mutation
// that produced them
type GormIdempotencyRepository struct {
	db *gorm.DB
}

// NewGormIdempotencyRepository creates a new GormIdempotencyRepository
func NewGormIdempotencyRepository(db *gorm.DB) *GormIdempotencyRepository {
	return &GormIdempotencyRepository{db: db}
}

// Find returns nil, nil when no record exists
func (r *GormIdempotencyRepository) Find(ctx context.Context, tenantID uuid.UUID, scope, key string) (*appinv.IdempotencyRecord, error) {
	var m models.IdempotencyRecordModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND scope = ? AND idem_key = ?", tenantID, scope, key).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, nil)
	}
	return m.ToDomain(), nil
}

// Save inserts the record. A concurrent duplicate surfaces as
// ErrIdempotencyInFlight; a later retry by the client replays the stored result.
func (r *GormIdempotencyRepository) Save(ctx context.Context, record *appinv.IdempotencyRecord) error {
	err := r.db.WithContext(ctx).Create(models.IdempotencyRecordModelFromDomain(record)).Error
	if err != nil && IsUniqueViolation(err) {
		return shared.ErrIdempotencyInFlight.WithCause(err)
	}
	return translate(err, nil)
}

// Purge deletes records created before cutoff and returns how many went
func (r *GormIdempotencyRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.IdempotencyRecordModel{})
	return res.RowsAffected, translate(res.Error, nil)
}

var _ appinv.IdempotencyRepository = (*GormIdempotencyRepository)(nil)
