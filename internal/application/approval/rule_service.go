package approval

import (
	"context"

	"github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// Idempotency scope of rule creation
const ScopeCreateRule = "approval_rule.create"

// Audit actions on the APPROVAL_RULE entity
const (
	AuditActionCreate  = "CREATE"
	AuditActionUpdate  = "UPDATE"
	AuditActionArchive = "ARCHIVE"
	AuditActionReorder = "REORDER_LEVELS"
)

// RuleService administers approval rules. Changes apply to transfers
// created afterwards; records already materialized keep their approvers.
type RuleService struct {
	exec  *inventory.Executor
	guard *inventory.Guard
	rules approval.RuleRepository
}

// NewRuleService creates a new RuleService
func NewRuleService(exec *inventory.Executor, guard *inventory.Guard, rules approval.RuleRepository) *RuleService {
	return &RuleService{exec: exec, guard: guard, rules: rules}
}

func (s *RuleService) authorize(ctx context.Context, actor shared.Actor) error {
	return s.guard.RequirePermission(ctx, actor, inventory.PermApprovalRuleManage)
}

// CreateRule creates a rule with levels numbered in the given order
func (s *RuleService) CreateRule(ctx context.Context, actor shared.Actor, req CreateRuleRequest) (*RuleResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "approval_rule", "create_rule",
		telemetry.AttrTenantID, actor.TenantID.String(),
	)
	defer span.End()

	params, err := req.toParams()
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m := inventory.Mutation{TenantID: actor.TenantID, Scope: ScopeCreateRule, Key: req.IdempotencyKey, Request: req}
	resp, err := inventory.Execute(ctx, s.exec, m, func(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects) (RuleResponse, error) {
		rule, err := approval.NewRule(actor.TenantID, params)
		if err != nil {
			return RuleResponse{}, err
		}
		if err := repos.Rules().Create(ctx, rule); err != nil {
			return RuleResponse{}, err
		}
		out := ToRuleResponse(rule)
		fx.Audit(inventory.NewAuditEvent(actor, inventory.AuditEntityRule, rule.ID, AuditActionCreate, nil, out))
		return out, nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.AttrRuleID, resp.ID.String())
	return &resp, nil
}

// UpdateRule replaces name, mode, priority, activity, conditions and levels
func (s *RuleService) UpdateRule(ctx context.Context, actor shared.Actor, id uuid.UUID, req UpdateRuleRequest) (*RuleResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "approval_rule", "update_rule",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrRuleID, id.String(),
	)
	defer span.End()

	params, err := req.toParams()
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, req.Version, AuditActionUpdate, func(rule *approval.Rule) error {
		return rule.Update(params)
	})
}

// ArchiveRule soft-deletes a rule; it no longer takes part in evaluation
func (s *RuleService) ArchiveRule(ctx context.Context, actor shared.Actor, id uuid.UUID) (*RuleResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "approval_rule", "archive_rule",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrRuleID, id.String(),
	)
	defer span.End()

	return s.mutate(ctx, actor, id, 0, AuditActionArchive, func(rule *approval.Rule) error {
		return rule.Archive()
	})
}

// ReorderLevels renumbers a rule's levels 1..N following levelIDs
func (s *RuleService) ReorderLevels(ctx context.Context, actor shared.Actor, id uuid.UUID, req ReorderLevelsRequest) (*RuleResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "approval_rule", "reorder_levels",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrRuleID, id.String(),
	)
	defer span.End()

	return s.mutate(ctx, actor, id, req.Version, AuditActionReorder, func(rule *approval.Rule) error {
		return rule.ReorderLevels(req.LevelIDs)
	})
}

// mutate loads, changes and saves a rule in one transaction. A non-zero
// version must equal the stored one.
func (s *RuleService) mutate(ctx context.Context, actor shared.Actor, id uuid.UUID, version int, action string, change func(*approval.Rule) error) (*RuleResponse, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	m := inventory.Mutation{TenantID: actor.TenantID}
	resp, err := inventory.Execute(ctx, s.exec, m, func(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects) (RuleResponse, error) {
		rule, err := repos.Rules().FindByID(ctx, actor.TenantID, id)
		if err != nil {
			return RuleResponse{}, err
		}
		if version != 0 && rule.Version != version {
			return RuleResponse{}, shared.ErrConcurrencyConflict.WithMessage("rule is at version %d, not %d", rule.Version, version)
		}
		before := ToRuleResponse(rule)
		if err := change(rule); err != nil {
			return RuleResponse{}, err
		}
		if err := repos.Rules().Save(ctx, rule); err != nil {
			return RuleResponse{}, err
		}
		out := ToRuleResponse(rule)
		fx.Audit(inventory.NewAuditEvent(actor, inventory.AuditEntityRule, rule.ID, action, before, out))
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRule returns one rule
func (s *RuleService) GetRule(ctx context.Context, actor shared.Actor, id uuid.UUID) (*RuleResponse, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	rule, err := s.rules.FindByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	resp := ToRuleResponse(rule)
	return &resp, nil
}

// ListRules returns rules by descending priority
func (s *RuleService) ListRules(ctx context.Context, actor shared.Actor, filter ListRulesFilter) ([]RuleResponse, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	rules, err := s.rules.List(ctx, actor.TenantID, filter.IncludeArchived)
	if err != nil {
		return nil, err
	}
	out := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, ToRuleResponse(r))
	}
	return out, nil
}
