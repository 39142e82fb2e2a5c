package persistence

import (
	"context"
	"time"

	appinv "github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccessDirectory answers permission and membership questions from the
// locally replicated identity tables
type GormAccessDirectory struct {
	db *gorm.DB
}

// NewGormAccessDirectory creates a new GormAccessDirectory
func NewGormAccessDirectory(db *gorm.DB) *GormAccessDirectory {
	return &GormAccessDirectory{db: db}
}

func (d *GormAccessDirectory) exists(ctx context.Context, model any, where string, args ...any) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(model).Where(where, args...).Count(&count).Error; err != nil {
		return false, translate(err, nil)
	}
	return count > 0, nil
}

// HasPermission reports whether the actor was granted permission
func (d *GormAccessDirectory) HasPermission(ctx context.Context, actorID, tenantID uuid.UUID, permission string) (bool, error) {
	return d.exists(ctx, &models.ActorPermissionModel{},
		"tenant_id = ? AND actor_id = ? AND permission = ?", tenantID, actorID, permission)
}

// BranchMembership reports whether the actor belongs to the branch
func (d *GormAccessDirectory) BranchMembership(ctx context.Context, actorID, tenantID, branchID uuid.UUID) (bool, error) {
	return d.exists(ctx, &models.BranchMembershipModel{},
		"tenant_id = ? AND actor_id = ? AND branch_id = ?", tenantID, actorID, branchID)
}

// ResolveActorDisplay returns the profile display name, empty when unknown
func (d *GormAccessDirectory) ResolveActorDisplay(ctx context.Context, actorID uuid.UUID) (string, error) {
	var names []string
	err := d.db.WithContext(ctx).Model(&models.ActorProfileModel{}).
		Where("actor_id = ?", actorID).
		Limit(1).
		Pluck("display_name", &names).Error
	if err != nil || len(names) == 0 {
		return "", translate(err, nil)
	}
	return names[0], nil
}

// Grant records permissions for an actor; existing grants are kept
func (d *GormAccessDirectory) Grant(ctx context.Context, tenantID, actorID uuid.UUID, permissions ...string) error {
	if len(permissions) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.ActorPermissionModel, 0, len(permissions))
	for _, p := range permissions {
		rows = append(rows, models.ActorPermissionModel{TenantID: tenantID, ActorID: actorID, Permission: p, CreatedAt: now})
	}
	return translate(d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error, nil)
}

// Join records branch memberships for an actor
func (d *GormAccessDirectory) Join(ctx context.Context, tenantID, actorID uuid.UUID, branchIDs ...uuid.UUID) error {
	if len(branchIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.BranchMembershipModel, 0, len(branchIDs))
	for _, b := range branchIDs {
		rows = append(rows, models.BranchMembershipModel{TenantID: tenantID, ActorID: actorID, BranchID: b, CreatedAt: now})
	}
	return translate(d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error, nil)
}

// SetDisplayName upserts an actor profile
func (d *GormAccessDirectory) SetDisplayName(ctx context.Context, tenantID, actorID uuid.UUID, name string) error {
	row := models.ActorProfileModel{ActorID: actorID, TenantID: tenantID, DisplayName: name}
	return translate(d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name"}),
	}).Create(&row).Error, nil)
}

// GormCatalog reads product existence and prices from catalog_products
type GormCatalog struct {
	db *gorm.DB
}

// NewGormCatalog creates a new GormCatalog
func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

// ProductPrice returns the list price in minor units
func (c *GormCatalog) ProductPrice(ctx context.Context, tenantID, productID uuid.UUID) (int64, error) {
	var p models.CatalogProductModel
	err := c.db.WithContext(ctx).
		Select("price").
		Where("tenant_id = ? AND id = ?", tenantID, productID).
		Take(&p).Error
	if err != nil {
		return 0, translate(err, shared.ErrNotFound.WithMessage("product %s not found", productID))
	}
	return p.Price, nil
}

// ProductExists reports whether an active product exists
func (c *GormCatalog) ProductExists(ctx context.Context, tenantID, productID uuid.UUID) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&models.CatalogProductModel{}).
		Where("tenant_id = ? AND id = ? AND is_active", tenantID, productID).
		Count(&count).Error
	if err != nil {
		return false, translate(err, nil)
	}
	return count > 0, nil
}

// Upsert writes a product into the read model
func (c *GormCatalog) Upsert(ctx context.Context, tenantID, productID uuid.UUID, sku, name string, price int64) error {
	row := models.CatalogProductModel{TenantID: tenantID, ID: productID, SKU: sku, Name: name, Price: price, IsActive: true}
	return translate(c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sku", "name", "price", "is_active"}),
	}).Create(&row).Error, nil)
}

var (
	_ appinv.AccessChecker = (*GormAccessDirectory)(nil)
	_ appinv.Catalog       = (*GormCatalog)(nil)
)
