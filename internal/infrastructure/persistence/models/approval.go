package models

import (
	"fmt"
	"time"

	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/google/uuid"
)

// ApprovalRuleModel is the persistence model for the approval Rule aggregate
type ApprovalRuleModel struct {
	TenantAggregateModel
	Name        string `gorm:"type:varchar(200);not null"`
	Description string `gorm:"type:text;not null;default:''"`
	Mode        string `gorm:"type:varchar(12);not null"`
	Priority    int    `gorm:"not null;default:0;index"`
	IsActive    bool   `gorm:"not null"`
	IsArchived  bool   `gorm:"not null;default:false"`

	Conditions []ApprovalRuleConditionModel `gorm:"foreignKey:RuleID;references:ID"`
	Levels     []ApprovalRuleLevelModel     `gorm:"foreignKey:RuleID;references:ID"`
}

// TableName returns the table name for GORM
func (ApprovalRuleModel) TableName() string {
	return TableApprovalRules
}

// ToDomain converts the persistence model to a domain Rule
func (m *ApprovalRuleModel) ToDomain() (*approval.Rule, error) {
	r := &approval.Rule{
		TenantAggregateRoot: m.TenantAggregateRoot(),
		Name:                m.Name,
		Description:         m.Description,
		Mode:                approval.Mode(m.Mode),
		Priority:            m.Priority,
		IsActive:            m.IsActive,
		IsArchived:          m.IsArchived,
		Conditions:          make([]approval.Condition, 0, len(m.Conditions)),
		Levels:              make([]approval.Level, 0, len(m.Levels)),
	}
	for _, c := range m.Conditions {
		r.Conditions = append(r.Conditions, approval.Condition{
			ID:        c.ID,
			Type:      approval.ConditionType(c.Type),
			Threshold: c.Threshold,
			BranchID:  c.BranchID,
		})
	}
	for _, l := range m.Levels {
		approver, err := approval.NewApprover(approval.ApproverType(l.ApproverType), l.ApproverID)
		if err != nil {
			return nil, fmt.Errorf("rule %s level %d: %w", m.ID, l.Level, err)
		}
		r.Levels = append(r.Levels, approval.Level{
			ID:       l.ID,
			Level:    l.Level,
			Name:     l.Name,
			Approver: approver,
		})
	}
	return r, nil
}

// ApprovalRuleModelFromDomain creates a persistence model from a domain Rule
func ApprovalRuleModelFromDomain(r *approval.Rule) *ApprovalRuleModel {
	m := &ApprovalRuleModel{
		Name:        r.Name,
		Description: r.Description,
		Mode:        string(r.Mode),
		Priority:    r.Priority,
		IsActive:    r.IsActive,
		IsArchived:  r.IsArchived,
		Conditions:  make([]ApprovalRuleConditionModel, 0, len(r.Conditions)),
		Levels:      make([]ApprovalRuleLevelModel, 0, len(r.Levels)),
	}
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	for i, c := range r.Conditions {
		m.Conditions = append(m.Conditions, ApprovalRuleConditionModel{
			ID:        c.ID,
			RuleID:    r.ID,
			Seq:       i + 1,
			Type:      string(c.Type),
			Threshold: c.Threshold,
			BranchID:  c.BranchID,
		})
	}
	for _, l := range r.Levels {
		m.Levels = append(m.Levels, ApprovalRuleLevelModel{
			ID:           l.ID,
			RuleID:       r.ID,
			Level:        l.Level,
			Name:         l.Name,
			ApproverType: string(l.Approver.Type()),
			ApproverID:   l.Approver.SubjectID(),
		})
	}
	return m
}

// ApprovalRuleConditionModel is one condition of a rule; all must match
type ApprovalRuleConditionModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RuleID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Seq       int       `gorm:"not null"`
	Type      string    `gorm:"type:varchar(32);not null"`
	Threshold *int64
	BranchID  *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (ApprovalRuleConditionModel) TableName() string {
	return TableRuleConditions
}

// ApprovalRuleLevelModel is one approval step of a rule
type ApprovalRuleLevelModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	RuleID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_rule_levels_level,priority:1"`
	Level        int       `gorm:"not null;uniqueIndex:uq_rule_levels_level,priority:2"`
	Name         string    `gorm:"type:varchar(100);not null"`
	ApproverType string    `gorm:"type:varchar(8);not null"`
	ApproverID   uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (ApprovalRuleLevelModel) TableName() string {
	return TableRuleLevels
}

// TransferApprovalModel is the per-transfer record of one approval level
type TransferApprovalModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID  `gorm:"type:uuid;not null"`
	TransferID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_transfer_approvals_level,priority:1"`
	RuleID         uuid.UUID  `gorm:"type:uuid;not null"`
	Mode           string     `gorm:"type:varchar(12);not null"`
	Level          int        `gorm:"not null;uniqueIndex:uq_transfer_approvals_level,priority:2"`
	LevelName      string     `gorm:"type:varchar(100);not null"`
	ApproverType   string     `gorm:"type:varchar(8);not null"`
	ApproverID     uuid.UUID  `gorm:"type:uuid;not null"`
	Status         string     `gorm:"type:varchar(10);not null;index"`
	ActedByActorID *uuid.UUID `gorm:"type:uuid"`
	ActedAt        *time.Time
	Notes          string    `gorm:"type:text;not null;default:''"`
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TransferApprovalModel) TableName() string {
	return TableTransferApprovals
}

// ToDomain converts the persistence model to a domain Record
func (m *TransferApprovalModel) ToDomain() (*approval.Record, error) {
	approver, err := approval.NewApprover(approval.ApproverType(m.ApproverType), m.ApproverID)
	if err != nil {
		return nil, fmt.Errorf("approval record %s: %w", m.ID, err)
	}
	return &approval.Record{
		ID:             m.ID,
		TenantID:       m.TenantID,
		TransferID:     m.TransferID,
		RuleID:         m.RuleID,
		Mode:           approval.Mode(m.Mode),
		Level:          m.Level,
		LevelName:      m.LevelName,
		Approver:       approver,
		Status:         approval.Status(m.Status),
		ActedByActorID: m.ActedByActorID,
		ActedAt:        utcPtr(m.ActedAt),
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt.UTC(),
	}, nil
}

// TransferApprovalModelFromDomain creates a persistence model from a domain Record
func TransferApprovalModelFromDomain(r *approval.Record) *TransferApprovalModel {
	return &TransferApprovalModel{
		ID:             r.ID,
		TenantID:       r.TenantID,
		TransferID:     r.TransferID,
		RuleID:         r.RuleID,
		Mode:           string(r.Mode),
		Level:          r.Level,
		LevelName:      r.LevelName,
		ApproverType:   string(r.Approver.Type()),
		ApproverID:     r.Approver.SubjectID(),
		Status:         string(r.Status),
		ActedByActorID: r.ActedByActorID,
		ActedAt:        r.ActedAt,
		Notes:          r.Notes,
		CreatedAt:      r.CreatedAt,
	}
}
