package approval

import (
	"time"

	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/google/uuid"
)

// ConditionRequest is one AND-ed test of a rule
type ConditionRequest struct {
	Type      string     `json:"type" binding:"required,oneof=TOTAL_QTY_THRESHOLD TOTAL_VALUE_THRESHOLD SOURCE_BRANCH DESTINATION_BRANCH"`
	Threshold *int64     `json:"threshold,omitempty" binding:"omitempty,gte=0"`
	BranchID  *uuid.UUID `json:"branch_id,omitempty"`
}

// LevelRequest is one approval level, satisfied by a role or by a user
type LevelRequest struct {
	Name         string    `json:"name" binding:"required,max=100"`
	ApproverType string    `json:"approver_type" binding:"required,oneof=ROLE USER"`
	ApproverID   uuid.UUID `json:"approver_id" binding:"required"`
}

// CreateRuleRequest represents a request to create an approval rule
type CreateRuleRequest struct {
	Name        string             `json:"name" binding:"required,max=100"`
	Description string             `json:"description,omitempty" binding:"max=500"`
	Mode        string             `json:"mode" binding:"required,oneof=SEQUENTIAL PARALLEL HYBRID"`
	Priority    int                `json:"priority"`
	IsActive    *bool              `json:"is_active,omitempty"`
	Conditions  []ConditionRequest `json:"conditions,omitempty" binding:"omitempty,dive"`
	Levels      []LevelRequest     `json:"levels" binding:"required,min=1,dive"`

	IdempotencyKey string `json:"-"`
}

// UpdateRuleRequest replaces the editable fields of a rule. Version must
// match the stored rule.
type UpdateRuleRequest struct {
	CreateRuleRequest
	Version int `json:"version" binding:"required,min=1"`
}

// ReorderLevelsRequest lists every level id of a rule in its new order
type ReorderLevelsRequest struct {
	LevelIDs []uuid.UUID `json:"level_ids" binding:"required,min=1"`
	Version  int         `json:"version" binding:"required,min=1"`
}

// ListRulesFilter selects rules
type ListRulesFilter struct {
	IncludeArchived bool `form:"include_archived"`
}

// ConditionResponse represents a rule condition in API responses
type ConditionResponse struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	Threshold *int64     `json:"threshold,omitempty"`
	BranchID  *uuid.UUID `json:"branch_id,omitempty"`
}

// LevelResponse represents a rule level in API responses
type LevelResponse struct {
	ID           uuid.UUID `json:"id"`
	Level        int       `json:"level"`
	Name         string    `json:"name"`
	ApproverType string    `json:"approver_type"`
	ApproverID   uuid.UUID `json:"approver_id"`
}

// RuleResponse represents an approval rule in API responses
type RuleResponse struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Mode        string              `json:"mode"`
	Priority    int                 `json:"priority"`
	IsActive    bool                `json:"is_active"`
	IsArchived  bool                `json:"is_archived"`
	Conditions  []ConditionResponse `json:"conditions"`
	Levels      []LevelResponse     `json:"levels"`
	Version     int                 `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ToRuleResponse converts a domain rule
func ToRuleResponse(r *approval.Rule) RuleResponse {
	resp := RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Mode:        string(r.Mode),
		Priority:    r.Priority,
		IsActive:    r.IsActive,
		IsArchived:  r.IsArchived,
		Conditions:  make([]ConditionResponse, 0, len(r.Conditions)),
		Levels:      make([]LevelResponse, 0, len(r.Levels)),
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, c := range r.Conditions {
		resp.Conditions = append(resp.Conditions, ConditionResponse{
			ID:        c.ID,
			Type:      string(c.Type),
			Threshold: c.Threshold,
			BranchID:  c.BranchID,
		})
	}
	for _, l := range r.Levels {
		level := LevelResponse{ID: l.ID, Level: l.Level, Name: l.Name}
		if l.Approver != nil {
			level.ApproverType = string(l.Approver.Type())
			level.ApproverID = l.Approver.SubjectID()
		}
		resp.Levels = append(resp.Levels, level)
	}
	return resp
}

// toParams converts a request into domain rule params
func (req CreateRuleRequest) toParams() (approval.RuleParams, error) {
	p := approval.RuleParams{
		Name:        req.Name,
		Description: req.Description,
		Mode:        approval.Mode(req.Mode),
		Priority:    req.Priority,
		IsActive:    req.IsActive == nil || *req.IsActive,
		Conditions:  make([]approval.Condition, 0, len(req.Conditions)),
		Levels:      make([]approval.LevelSpec, 0, len(req.Levels)),
	}
	for _, c := range req.Conditions {
		p.Conditions = append(p.Conditions, approval.Condition{
			Type:      approval.ConditionType(c.Type),
			Threshold: c.Threshold,
			BranchID:  c.BranchID,
		})
	}
	for _, l := range req.Levels {
		approver, err := approval.NewApprover(approval.ApproverType(l.ApproverType), l.ApproverID)
		if err != nil {
			return p, err
		}
		p.Levels = append(p.Levels, approval.LevelSpec{Name: l.Name, Approver: approver})
	}
	return p, nil
}
