package persistence

import (
	"context"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/erp/stockflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTransferRepository implements transfer.Repository using GORM.
// Items, shipment batches with their lot draws and receipt batches are
// written explicitly; batches are append-only so Save only inserts the
// ones the database does not have yet.
type GormTransferRepository struct {
	db *gorm.DB
}

// NewGormTransferRepository creates a new GormTransferRepository
func NewGormTransferRepository(db *gorm.DB) *GormTransferRepository {
	return &GormTransferRepository{db: db}
}

func preloadTransferTree(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_id") }).
		Preload("Items.ShipmentBatches", func(db *gorm.DB) *gorm.DB { return db.Order("batch_number") }).
		Preload("Items.ShipmentBatches.Draws", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Preload("Items.Receipts", func(db *gorm.DB) *gorm.DB { return db.Order("batch_number") })
}

// Create inserts the transfer and its whole tree
func (r *GormTransferRepository) Create(ctx context.Context, t *transfer.Transfer) error {
	m := models.StockTransferModelFromDomain(t)
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(m).Error; err != nil {
		if IsUniqueViolation(err) {
			return transfer.ErrTransferNumberTaken.WithCause(err)
		}
		return translate(err, nil)
	}
	return r.writeChildren(db, m, true)
}

// Save updates the header when the stored version matches, bumps the
// version and writes item quantities plus any new batches
func (r *GormTransferRepository) Save(ctx context.Context, t *transfer.Transfer) error {
	m := models.StockTransferModelFromDomain(t)
	db := r.db.WithContext(ctx)
	res := db.Model(&models.StockTransferModel{}).
		Where("id = ? AND tenant_id = ? AND version = ?", t.ID, t.TenantID, t.Version).
		Updates(map[string]any{
			"status":                        m.Status,
			"notes":                         m.Notes,
			"reviewed_by_actor_id":          m.ReviewedByActorID,
			"reviewed_at":                   m.ReviewedAt,
			"review_notes":                  m.ReviewNotes,
			"shipped_by_actor_id":           m.ShippedByActorID,
			"shipped_at":                    m.ShippedAt,
			"received_by_actor_id":          m.ReceivedByActorID,
			"received_at":                   m.ReceivedAt,
			"completed_at":                  m.CompletedAt,
			"cancelled_by_actor_id":         m.CancelledByActorID,
			"cancelled_at":                  m.CancelledAt,
			"cancel_reason":                 m.CancelReason,
			"requires_multi_level_approval": m.RequiresMultiLevelApproval,
			"approval_rule_id":              m.ApprovalRuleID,
			"reversed_by_id":                m.ReversedByID,
			"reversal_reason":               m.ReversalReason,
			"updated_at":                    m.UpdatedAt,
			"version":                       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return translate(res.Error, nil)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.StockTransferModel{}).
			Where("id = ? AND tenant_id = ?", t.ID, t.TenantID).Count(&count).Error; err != nil {
			return translate(err, nil)
		}
		if count == 0 {
			return transfer.ErrTransferNotFound
		}
		return shared.ErrConcurrencyConflict.WithMessage("transfer %s was modified concurrently", t.ID)
	}
	t.IncrementVersion()
	return r.writeChildren(db, m, false)
}

func (r *GormTransferRepository) writeChildren(db *gorm.DB, m *models.StockTransferModel, created bool) error {
	ignoreDup := clause.OnConflict{DoNothing: true}
	for i := range m.Items {
		item := &m.Items[i]
		if created {
			if err := db.Omit(clause.Associations).Create(item).Error; err != nil {
				return translate(err, nil)
			}
		} else {
			err := db.Model(&models.StockTransferItemModel{}).
				Where("id = ?", item.ID).
				Updates(map[string]any{
					"qty_approved": item.QtyApproved,
					"qty_shipped":  item.QtyShipped,
					"qty_received": item.QtyReceived,
				}).Error
			if err != nil {
				return translate(err, nil)
			}
		}
		for j := range item.ShipmentBatches {
			batch := &item.ShipmentBatches[j]
			if err := db.Clauses(ignoreDup).Omit(clause.Associations).Create(batch).Error; err != nil {
				return translate(err, nil)
			}
			if len(batch.Draws) == 0 {
				continue
			}
			if err := db.Clauses(ignoreDup).Create(&batch.Draws).Error; err != nil {
				return translate(err, nil)
			}
		}
		if len(item.Receipts) > 0 {
			if err := db.Clauses(ignoreDup).Create(&item.Receipts).Error; err != nil {
				return translate(err, nil)
			}
		}
	}
	return nil
}

// FindByID loads a transfer with its full tree
func (r *GormTransferRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*transfer.Transfer, error) {
	var m models.StockTransferModel
	err := preloadTransferTree(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&m).Error
	if err != nil {
		return nil, translate(err, transfer.ErrTransferNotFound)
	}
	return m.ToDomain(), nil
}

// FindByIDForUpdate locks the header row, then loads the tree. Children
// are only written by holders of the header lock.
func (r *GormTransferRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*transfer.Transfer, error) {
	var locked struct{ ID uuid.UUID }
	err := r.db.WithContext(ctx).Model(&models.StockTransferModel{}).
		Select("id").
		Clauses(lockForUpdate).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&locked).Error
	if err != nil {
		return nil, translate(err, transfer.ErrTransferNotFound)
	}
	return r.FindByID(ctx, tenantID, id)
}

// List returns up to Limit+1 transfers after the cursor in keyset order
func (r *GormTransferRepository) List(ctx context.Context, f transfer.ListFilter) ([]*transfer.Transfer, error) {
	ks := transferKeyset(f.SortBy, f.Ascending)
	q := r.db.WithContext(ctx).Where("tenant_id = ?", f.TenantID)
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.SourceBranchID != nil {
		q = q.Where("source_branch_id = ?", *f.SourceBranchID)
	}
	if f.DestinationBranchID != nil {
		q = q.Where("destination_branch_id = ?", *f.DestinationBranchID)
	}
	if f.BranchID != nil {
		q = q.Where("(source_branch_id = ? OR destination_branch_id = ?)", *f.BranchID, *f.BranchID)
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", string(*f.Priority))
	}
	if f.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		q = q.Where("created_at < ?", *f.CreatedTo)
	}
	q = ks.After(q, f.Cursor)
	if f.Limit > 0 {
		q = q.Limit(f.Limit + 1)
	}

	var rows []models.StockTransferModel
	if err := ks.Order(preloadTransferTree(q)).Find(&rows).Error; err != nil {
		return nil, translate(err, nil)
	}
	out := make([]*transfer.Transfer, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

var _ transfer.Repository = (*GormTransferRepository)(nil)
