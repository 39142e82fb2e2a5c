package persistence

import (
	"context"

	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRuleRepository implements approval.RuleRepository using GORM
type GormRuleRepository struct {
	db *gorm.DB
}

// NewGormRuleRepository creates a new GormRuleRepository
func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

func preloadRuleTree(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Conditions", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Preload("Levels", func(db *gorm.DB) *gorm.DB { return db.Order("level") })
}

// Create inserts a rule with its conditions and levels
func (r *GormRuleRepository) Create(ctx context.Context, rule *approval.Rule) error {
	m := models.ApprovalRuleModelFromDomain(rule)
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(m).Error; err != nil {
		return translate(err, nil)
	}
	return r.writeChildren(db, m)
}

// Save replaces the rule header, conditions and levels when the stored
// version matches
func (r *GormRuleRepository) Save(ctx context.Context, rule *approval.Rule) error {
	m := models.ApprovalRuleModelFromDomain(rule)
	db := r.db.WithContext(ctx)
	res := db.Model(&models.ApprovalRuleModel{}).
		Where("id = ? AND tenant_id = ? AND version = ?", rule.ID, rule.TenantID, rule.Version).
		Updates(map[string]any{
			"name":        m.Name,
			"description": m.Description,
			"mode":        m.Mode,
			"priority":    m.Priority,
			"is_active":   m.IsActive,
			"is_archived": m.IsArchived,
			"updated_at":  m.UpdatedAt,
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return translate(res.Error, nil)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.ApprovalRuleModel{}).
			Where("id = ? AND tenant_id = ?", rule.ID, rule.TenantID).Count(&count).Error; err != nil {
			return translate(err, nil)
		}
		if count == 0 {
			return approval.ErrRuleNotFound
		}
		return shared.ErrConcurrencyConflict.WithMessage("approval rule %s was modified concurrently", rule.ID)
	}
	rule.IncrementVersion()

	if err := db.Where("rule_id = ?", rule.ID).Delete(&models.ApprovalRuleConditionModel{}).Error; err != nil {
		return translate(err, nil)
	}
	if err := db.Where("rule_id = ?", rule.ID).Delete(&models.ApprovalRuleLevelModel{}).Error; err != nil {
		return translate(err, nil)
	}
	return r.writeChildren(db, m)
}

func (r *GormRuleRepository) writeChildren(db *gorm.DB, m *models.ApprovalRuleModel) error {
	if len(m.Conditions) > 0 {
		if err := db.Create(&m.Conditions).Error; err != nil {
			return translate(err, nil)
		}
	}
	if len(m.Levels) > 0 {
		if err := db.Create(&m.Levels).Error; err != nil {
			return translate(err, nil)
		}
	}
	return nil
}

// FindByID loads a rule with conditions and levels
func (r *GormRuleRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*approval.Rule, error) {
	var m models.ApprovalRuleModel
	err := preloadRuleTree(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&m).Error
	if err != nil {
		return nil, translate(err, approval.ErrRuleNotFound)
	}
	return m.ToDomain()
}

// FindActive returns the rules eligible for evaluation
func (r *GormRuleRepository) FindActive(ctx context.Context, tenantID uuid.UUID) ([]*approval.Rule, error) {
	return r.find(r.db.WithContext(ctx).Where("tenant_id = ? AND is_active AND NOT is_archived", tenantID))
}

// List returns rules ordered by priority desc
func (r *GormRuleRepository) List(ctx context.Context, tenantID uuid.UUID, includeArchived bool) ([]*approval.Rule, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !includeArchived {
		q = q.Where("NOT is_archived")
	}
	return r.find(q)
}

func (r *GormRuleRepository) find(q *gorm.DB) ([]*approval.Rule, error) {
	var rows []models.ApprovalRuleModel
	if err := preloadRuleTree(q).Order("priority DESC").Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err, nil)
	}
	out := make([]*approval.Rule, 0, len(rows))
	for i := range rows {
		rule, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// GormApprovalRecordRepository implements approval.RecordRepository using GORM
type GormApprovalRecordRepository struct {
	db *gorm.DB
}

// NewGormApprovalRecordRepository creates a new GormApprovalRecordRepository
func NewGormApprovalRecordRepository(db *gorm.DB) *GormApprovalRecordRepository {
	return &GormApprovalRecordRepository{db: db}
}

// CreateBatch inserts the records of one transfer
func (r *GormApprovalRecordRepository) CreateBatch(ctx context.Context, records []*approval.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]*models.TransferApprovalModel, 0, len(records))
	for _, rec := range records {
		rows = append(rows, models.TransferApprovalModelFromDomain(rec))
	}
	return translate(r.db.WithContext(ctx).Create(&rows).Error, nil)
}

// FindByTransfer returns a transfer's records ordered by level
func (r *GormApprovalRecordRepository) FindByTransfer(ctx context.Context, tenantID, transferID uuid.UUID) ([]*approval.Record, error) {
	var rows []models.TransferApprovalModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND transfer_id = ?", tenantID, transferID).
		Order("level").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, nil)
	}
	out := make([]*approval.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Transition is a compare-and-set on status = PENDING
func (r *GormApprovalRecordRepository) Transition(ctx context.Context, rec *approval.Record) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.TransferApprovalModel{}).
		Where("id = ? AND tenant_id = ? AND status = ?", rec.ID, rec.TenantID, string(approval.StatusPending)).
		Updates(map[string]any{
			"status":            string(rec.Status),
			"acted_by_actor_id": rec.ActedByActorID,
			"acted_at":          rec.ActedAt,
			"notes":             rec.Notes,
		})
	if res.Error != nil {
		return translate(res.Error, nil)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := db.Model(&models.TransferApprovalModel{}).
		Where("id = ? AND tenant_id = ?", rec.ID, rec.TenantID).Count(&count).Error; err != nil {
		return translate(err, nil)
	}
	if count == 0 {
		return approval.ErrRecordNotFound
	}
	return approval.ErrNotPending
}

var (
	_ approval.RuleRepository   = (*GormRuleRepository)(nil)
	_ approval.RecordRepository = (*GormApprovalRecordRepository)(nil)
)
