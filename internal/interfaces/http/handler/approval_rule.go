package handler

import (
	"context"

	approvalapp "github.com/erp/stockflow/internal/application/approval"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RuleService administers approval rules
type RuleService interface {
	CreateRule(ctx context.Context, actor shared.Actor, req approvalapp.CreateRuleRequest) (*approvalapp.RuleResponse, error)
	UpdateRule(ctx context.Context, actor shared.Actor, id uuid.UUID, req approvalapp.UpdateRuleRequest) (*approvalapp.RuleResponse, error)
	ArchiveRule(ctx context.Context, actor shared.Actor, id uuid.UUID) (*approvalapp.RuleResponse, error)
	ReorderLevels(ctx context.Context, actor shared.Actor, id uuid.UUID, req approvalapp.ReorderLevelsRequest) (*approvalapp.RuleResponse, error)
	GetRule(ctx context.Context, actor shared.Actor, id uuid.UUID) (*approvalapp.RuleResponse, error)
	ListRules(ctx context.Context, actor shared.Actor, filter approvalapp.ListRulesFilter) ([]approvalapp.RuleResponse, error)
}

var _ RuleService = (*approvalapp.RuleService)(nil)

// ApprovalRuleHandler handles approval rule administration
type ApprovalRuleHandler struct {
	BaseHandler
	rules RuleService
}

// NewApprovalRuleHandler creates a new ApprovalRuleHandler
func NewApprovalRuleHandler(rules RuleService) *ApprovalRuleHandler {
	return &ApprovalRuleHandler{rules: rules}
}

// Create godoc
// @ID           createApprovalRule
// @Summary      Create an approval rule
// @Tags         approval-rules
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                         false  "Idempotency key"
// @Param        request          body    approvalapp.CreateRuleRequest  true   "Rule"
// @Success      201  {object}  APIResponse[approvalapp.RuleResponse]
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /approval-rules [post]
func (h *ApprovalRuleHandler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req approvalapp.CreateRuleRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	resp, err := h.rules.CreateRule(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List godoc
// @ID           listApprovalRules
// @Summary      List approval rules by priority
// @Tags         approval-rules
// @Produce      json
// @Param        include_archived  query  bool  false  "Include archived rules"
// @Success      200  {object}  APIResponse[[]approvalapp.RuleResponse]
// @Security     BearerAuth
// @Router       /approval-rules [get]
func (h *ApprovalRuleHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var filter approvalapp.ListRulesFilter
	if !bindQuery(c, &filter) {
		return
	}

	rules, err := h.rules.ListRules(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rules)
}

// Get godoc
// @ID           getApprovalRule
// @Summary      Get an approval rule
// @Tags         approval-rules
// @Produce      json
// @Param        id  path  string  true  "Rule ID"
// @Success      200  {object}  APIResponse[approvalapp.RuleResponse]
// @Failure      404  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /approval-rules/{id} [get]
func (h *ApprovalRuleHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	resp, err := h.rules.GetRule(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Update godoc
// @ID           updateApprovalRule
// @Summary      Replace an approval rule
// @Description  Version must match the stored rule. Approvals already created keep their approvers.
// @Tags         approval-rules
// @Accept       json
// @Produce      json
// @Param        id       path  string                         true  "Rule ID"
// @Param        request  body  approvalapp.UpdateRuleRequest  true  "Rule"
// @Success      200  {object}  APIResponse[approvalapp.RuleResponse]
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /approval-rules/{id} [put]
func (h *ApprovalRuleHandler) Update(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req approvalapp.UpdateRuleRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	resp, err := h.rules.UpdateRule(c.Request.Context(), actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Archive godoc
// @ID           archiveApprovalRule
// @Summary      Archive an approval rule
// @Tags         approval-rules
// @Produce      json
// @Param        id  path  string  true  "Rule ID"
// @Success      200  {object}  APIResponse[approvalapp.RuleResponse]
// @Security     BearerAuth
// @Router       /approval-rules/{id}/archive [post]
func (h *ApprovalRuleHandler) Archive(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	resp, err := h.rules.ArchiveRule(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ReorderLevels godoc
// @ID           reorderApprovalRuleLevels
// @Summary      Renumber the levels of a rule
// @Tags         approval-rules
// @Accept       json
// @Produce      json
// @Param        id       path  string                            true  "Rule ID"
// @Param        request  body  approvalapp.ReorderLevelsRequest  true  "Every level id in its new order"
// @Success      200  {object}  APIResponse[approvalapp.RuleResponse]
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /approval-rules/{id}/levels/order [put]
func (h *ApprovalRuleHandler) ReorderLevels(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req approvalapp.ReorderLevelsRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.rules.ReorderLevels(c.Request.Context(), actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
