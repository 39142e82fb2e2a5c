package persistence

import (
	"context"
	"time"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var lockForUpdate = clause.Locking{Strength: clause.LockingStrengthUpdate}

// GormLotRepository implements ledger.LotRepository using GORM
type GormLotRepository struct {
	db *gorm.DB
}

// NewGormLotRepository creates a new GormLotRepository
func NewGormLotRepository(db *gorm.DB) *GormLotRepository {
	return &GormLotRepository{db: db}
}

func fifoOrder(db *gorm.DB) *gorm.DB {
	return db.Order("received_at ASC").Order("created_at ASC").Order("id ASC")
}

// FindOpenForUpdate returns the open lots of a branch/product in FIFO order
// with their rows locked
func (r *GormLotRepository) FindOpenForUpdate(ctx context.Context, tenantID, branchID, productID uuid.UUID) ([]*ledger.StockLot, error) {
	var rows []models.StockLotModel
	err := fifoOrder(r.db.WithContext(ctx).Clauses(lockForUpdate).
		Where("tenant_id = ? AND branch_id = ? AND product_id = ? AND qty_remaining > 0", tenantID, branchID, productID)).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, nil)
	}
	return lotsToDomain(rows), nil
}

// FindByIDs returns the named lots in the order requested
func (r *GormLotRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*ledger.StockLot, error) {
	return r.findByIDs(r.db.WithContext(ctx), tenantID, ids)
}

// FindByIDsForUpdate locks and returns the named lots
func (r *GormLotRepository) FindByIDsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*ledger.StockLot, error) {
	return r.findByIDs(r.db.WithContext(ctx).Clauses(lockForUpdate), tenantID, ids)
}

func (r *GormLotRepository) findByIDs(db *gorm.DB, tenantID uuid.UUID, ids []uuid.UUID) ([]*ledger.StockLot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.StockLotModel
	if err := db.Where("tenant_id = ? AND id IN ?", tenantID, ids).Order("id").Find(&rows).Error; err != nil {
		return nil, translate(err, nil)
	}
	byID := make(map[uuid.UUID]*ledger.StockLot, len(rows))
	for i := range rows {
		byID[rows[i].ID] = rows[i].ToDomain()
	}
	out := make([]*ledger.StockLot, 0, len(ids))
	for _, id := range ids {
		lot, ok := byID[id]
		if !ok {
			return nil, ledger.ErrLotNotFound.WithMessage("lot %s not found", id)
		}
		out = append(out, lot)
	}
	return out, nil
}

// Create inserts a new lot
func (r *GormLotRepository) Create(ctx context.Context, lot *ledger.StockLot) error {
	return translate(r.db.WithContext(ctx).Create(models.StockLotModelFromDomain(lot)).Error, nil)
}

// SaveRemaining writes qty_remaining of each lot
func (r *GormLotRepository) SaveRemaining(ctx context.Context, lots ...*ledger.StockLot) error {
	for _, lot := range lots {
		res := r.db.WithContext(ctx).Model(&models.StockLotModel{}).
			Where("tenant_id = ? AND id = ?", lot.TenantID, lot.ID).
			Updates(map[string]any{"qty_remaining": lot.QtyRemaining, "updated_at": lot.UpdatedAt})
		if res.Error != nil {
			return translate(res.Error, nil)
		}
		if res.RowsAffected == 0 {
			return ledger.ErrLotNotFound.WithMessage("lot %s not found", lot.ID)
		}
	}
	return nil
}

// List returns lots of a branch in FIFO order
func (r *GormLotRepository) List(ctx context.Context, filter ledger.LotFilter) ([]*ledger.StockLot, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ? AND branch_id = ?", filter.TenantID, filter.BranchID)
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.OpenOnly {
		q = q.Where("qty_remaining > 0")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []models.StockLotModel
	if err := fifoOrder(q).Find(&rows).Error; err != nil {
		return nil, translate(err, nil)
	}
	return lotsToDomain(rows), nil
}

func lotsToDomain(rows []models.StockLotModel) []*ledger.StockLot {
	out := make([]*ledger.StockLot, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

// GormEntryRepository implements the append-only ledger
type GormEntryRepository struct {
	db *gorm.DB
}

// NewGormEntryRepository creates a new GormEntryRepository
func NewGormEntryRepository(db *gorm.DB) *GormEntryRepository {
	return &GormEntryRepository{db: db}
}

// Append inserts entries in one statement
func (r *GormEntryRepository) Append(ctx context.Context, entries ...*ledger.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.LedgerEntryModel, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.LedgerEntryModelFromDomain(e))
	}
	return translate(r.db.WithContext(ctx).Create(&rows).Error, nil)
}

// List returns entries newest first
func (r *GormEntryRepository) List(ctx context.Context, filter ledger.EntryFilter) ([]*ledger.LedgerEntry, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ? AND branch_id = ?", filter.TenantID, filter.BranchID)
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.LotID != nil {
		q = q.Where("lot_id = ?", *filter.LotID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []models.LedgerEntryModel
	if err := q.Order("occurred_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, translate(err, nil)
	}
	out := make([]*ledger.LedgerEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// GormLevelRepository implements ledger.LevelRepository using GORM
type GormLevelRepository struct {
	db *gorm.DB
}

// NewGormLevelRepository creates a new GormLevelRepository
func NewGormLevelRepository(db *gorm.DB) *GormLevelRepository {
	return &GormLevelRepository{db: db}
}

// GetForUpdate inserts the level row if it does not exist, then locks it.
// The insert ignores conflicts so two first writers converge on one row.
func (r *GormLevelRepository) GetForUpdate(ctx context.Context, tenantID, branchID, productID uuid.UUID) (*ledger.StockLevel, error) {
	db := r.db.WithContext(ctx)
	fresh := models.StockLevelModelFromDomain(ledger.NewStockLevel(tenantID, branchID, productID))
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "branch_id"}, {Name: "product_id"}},
		DoNothing: true,
	}).Create(fresh).Error
	if err != nil {
		return nil, translate(err, nil)
	}

	var row models.StockLevelModel
	err = db.Clauses(lockForUpdate).
		Where("tenant_id = ? AND branch_id = ? AND product_id = ?", tenantID, branchID, productID).
		Take(&row).Error
	if err != nil {
		return nil, translate(err, nil)
	}
	return row.ToDomain(), nil
}

// Save persists on-hand and allocated quantities
func (r *GormLevelRepository) Save(ctx context.Context, level *ledger.StockLevel) error {
	if level.UpdatedAt.IsZero() {
		level.UpdatedAt = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&models.StockLevelModel{}).
		Where("id = ?", level.ID).
		Updates(map[string]any{
			"qty_on_hand":   level.QtyOnHand,
			"qty_allocated": level.QtyAllocated,
			"updated_at":    level.UpdatedAt,
		})
	if res.Error != nil {
		return translate(res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, nil)
	}
	return nil
}

// Find returns the levels of a branch ordered by product
func (r *GormLevelRepository) Find(ctx context.Context, tenantID, branchID uuid.UUID, productID *uuid.UUID) ([]*ledger.StockLevel, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ? AND branch_id = ?", tenantID, branchID)
	if productID != nil {
		q = q.Where("product_id = ?", *productID)
	}
	var rows []models.StockLevelModel
	if err := q.Order("product_id").Find(&rows).Error; err != nil {
		return nil, translate(err, nil)
	}
	out := make([]*ledger.StockLevel, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

var (
	_ ledger.LotRepository   = (*GormLotRepository)(nil)
	_ ledger.EntryRepository = (*GormEntryRepository)(nil)
	_ ledger.LevelRepository = (*GormLevelRepository)(nil)
)
