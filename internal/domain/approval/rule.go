package approval

import (
	"slices"
	"strings"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// Mode decides which pending levels are eligible to act
type Mode string

const (
	// ModeSequential requires every lower level to be approved first
	ModeSequential Mode = "SEQUENTIAL"
	// ModeParallel lets every level act at any time
	ModeParallel Mode = "PARALLEL"
	// ModeHybrid gates on level 1, then levels 2..N act in parallel
	ModeHybrid Mode = "HYBRID"
)

func (m Mode) IsValid() bool {
	return m == ModeSequential || m == ModeParallel || m == ModeHybrid
}

// ConditionType is the kind of test a rule condition performs
type ConditionType string

const (
	ConditionTotalQtyThreshold   ConditionType = "TOTAL_QTY_THRESHOLD"
	ConditionTotalValueThreshold ConditionType = "TOTAL_VALUE_THRESHOLD"
	ConditionSourceBranch        ConditionType = "SOURCE_BRANCH"
	ConditionDestinationBranch   ConditionType = "DESTINATION_BRANCH"
)

func (c ConditionType) IsValid() bool {
	switch c {
	case ConditionTotalQtyThreshold, ConditionTotalValueThreshold, ConditionSourceBranch, ConditionDestinationBranch:
		return true
	}
	return false
}

// Condition is one AND-ed test of a rule
type Condition struct {
	ID        uuid.UUID
	Type      ConditionType
	Threshold *int64
	BranchID  *uuid.UUID
}

// Shape is what a rule sees of a transfer
type Shape struct {
	SourceBranchID      uuid.UUID
	DestinationBranchID uuid.UUID
	TotalQty            int64
	// TotalValue is sum(qtyRequested * productPrice) in minor units
	TotalValue int64
}

// Matches tests the condition against a transfer shape
func (c Condition) Matches(s Shape) bool {
	switch c.Type {
	case ConditionTotalQtyThreshold:
		return c.Threshold != nil && s.TotalQty > *c.Threshold
	case ConditionTotalValueThreshold:
		return c.Threshold != nil && s.TotalValue > *c.Threshold
	case ConditionSourceBranch:
		return c.BranchID != nil && *c.BranchID == s.SourceBranchID
	case ConditionDestinationBranch:
		return c.BranchID != nil && *c.BranchID == s.DestinationBranchID
	}
	return false
}

func (c Condition) validate() error {
	if !c.Type.IsValid() {
		return ErrInvalidCondition.WithMessage("unknown condition type %q", c.Type)
	}
	switch c.Type {
	case ConditionTotalQtyThreshold, ConditionTotalValueThreshold:
		if c.Threshold == nil || *c.Threshold < 0 {
			return ErrInvalidCondition.WithMessage("%s needs a non-negative threshold", c.Type)
		}
	case ConditionSourceBranch, ConditionDestinationBranch:
		if c.BranchID == nil || *c.BranchID == uuid.Nil {
			return ErrInvalidCondition.WithMessage("%s needs a branch", c.Type)
		}
	}
	return nil
}

// Level is one named gate of a rule, satisfied by exactly one approver
type Level struct {
	ID       uuid.UUID
	Level    int
	Name     string
	Approver Approver
}

// Rule is a configured multi-level approval policy
type Rule struct {
	shared.TenantAggregateRoot
	Name        string
	Description string
	Mode        Mode
	// Priority orders evaluation; higher first
	Priority   int
	IsActive   bool
	IsArchived bool
	Conditions []Condition
	Levels     []Level
}

// LevelSpec describes a level when creating or updating a rule
type LevelSpec struct {
	Name     string
	Approver Approver
}

// RuleParams holds the editable fields of a rule
type RuleParams struct {
	Name        string
	Description string
	Mode        Mode
	Priority    int
	IsActive    bool
	Conditions  []Condition
	Levels      []LevelSpec
}

func (p RuleParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return shared.NewValidationError("RULE_NAME_REQUIRED", "Rule name is required")
	}
	if !p.Mode.IsValid() {
		return ErrInvalidMode
	}
	if len(p.Levels) == 0 {
		return ErrNoLevels
	}
	for _, c := range p.Conditions {
		if err := c.validate(); err != nil {
			return err
		}
	}
	for _, l := range p.Levels {
		if strings.TrimSpace(l.Name) == "" {
			return shared.NewValidationError("LEVEL_NAME_REQUIRED", "Level name is required")
		}
		if err := validateApprover(l.Approver); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rule) apply(p RuleParams) {
	r.Name = strings.TrimSpace(p.Name)
	r.Description = p.Description
	r.Mode = p.Mode
	r.Priority = p.Priority
	r.IsActive = p.IsActive
	r.Conditions = make([]Condition, 0, len(p.Conditions))
	for _, c := range p.Conditions {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		r.Conditions = append(r.Conditions, c)
	}
	r.Levels = make([]Level, 0, len(p.Levels))
	for i, l := range p.Levels {
		r.Levels = append(r.Levels, Level{ID: uuid.New(), Level: i + 1, Name: strings.TrimSpace(l.Name), Approver: l.Approver})
	}
	r.UpdatedAt = time.Now().UTC()
}

// NewRule creates a rule; levels are numbered 1..N in the given order
func NewRule(tenantID uuid.UUID, p RuleParams) (*Rule, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	r := &Rule{TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID)}
	r.apply(p)
	return r, nil
}

// Update replaces the editable fields; archived rules are read-only
func (r *Rule) Update(p RuleParams) error {
	if r.IsArchived {
		return ErrRuleArchived
	}
	if err := p.validate(); err != nil {
		return err
	}
	r.apply(p)
	return nil
}

// Archive soft-deletes the rule so it no longer takes part in evaluation
func (r *Rule) Archive() error {
	if r.IsArchived {
		return ErrRuleArchived
	}
	r.IsArchived = true
	r.IsActive = false
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// ReorderLevels renumbers levels 1..N following levelIDs, which must name
// every level exactly once
func (r *Rule) ReorderLevels(levelIDs []uuid.UUID) error {
	if r.IsArchived {
		return ErrRuleArchived
	}
	if len(levelIDs) != len(r.Levels) {
		return ErrInvalidReorder
	}
	reordered := make([]Level, 0, len(r.Levels))
	for i, id := range levelIDs {
		idx := slices.IndexFunc(r.Levels, func(l Level) bool { return l.ID == id })
		if idx < 0 || slices.Contains(levelIDs[:i], id) {
			return ErrInvalidReorder
		}
		l := r.Levels[idx]
		l.Level = i + 1
		reordered = append(reordered, l)
	}
	r.Levels = reordered
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// IsEligible reports whether the rule takes part in evaluation
func (r *Rule) IsEligible() bool {
	return r.IsActive && !r.IsArchived
}

// Matches is true when every condition holds. A rule without conditions
// matches every transfer.
func (r *Rule) Matches(s Shape) bool {
	for _, c := range r.Conditions {
		if !c.Matches(s) {
			return false
		}
	}
	return true
}

// NeedsValue reports whether evaluating the rule requires product prices
func (r *Rule) NeedsValue() bool {
	return slices.ContainsFunc(r.Conditions, func(c Condition) bool {
		return c.Type == ConditionTotalValueThreshold
	})
}
