package inventory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// Permission keys checked before entering a transaction
const (
	PermInventoryReceive   = "inventory.receive"
	PermInventoryConsume   = "inventory.consume"
	PermInventoryAdjust    = "inventory.adjust"
	PermInventoryView      = "inventory.view"
	PermTransferView       = "transfer.view"
	PermApprovalRuleManage = "approval_rule.manage"
)

// AccessChecker answers identity and access questions owned by another service
type AccessChecker interface {
	HasPermission(ctx context.Context, actorID, tenantID uuid.UUID, permission string) (bool, error)
	BranchMembership(ctx context.Context, actorID, tenantID, branchID uuid.UUID) (bool, error)
	ResolveActorDisplay(ctx context.Context, actorID uuid.UUID) (string, error)
}

// Catalog resolves products
type Catalog interface {
	// ProductPrice returns the list price in minor units
	ProductPrice(ctx context.Context, tenantID, productID uuid.UUID) (int64, error)
	ProductExists(ctx context.Context, tenantID, productID uuid.UUID) (bool, error)
}

// AuditEvent is one immutable audit fact with structured snapshots
type AuditEvent struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	ActorID       uuid.UUID       `json:"actor_id"`
	ActorDisplay  string          `json:"actor_display,omitempty"`
	EntityType    string          `json:"entity_type"`
	EntityID      uuid.UUID       `json:"entity_id"`
	Action        string          `json:"action"`
	Before        json.RawMessage `json:"before,omitempty"`
	After         json.RawMessage `json:"after,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// AuditSink persists audit events. Writes happen after commit and their
// failures never reach the caller.
type AuditSink interface {
	RecordEvent(ctx context.Context, event AuditEvent) error
	ListEvents(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]AuditEvent, error)
}

// Audit entity types and actions
const (
	AuditEntityStock    = "STOCK"
	AuditEntityTransfer = "TRANSFER"
	AuditEntityRule     = "APPROVAL_RULE"

	AuditActionReceive = "RECEIVE"
	AuditActionConsume = "CONSUME"
	AuditActionAdjust  = "ADJUST"
)

// NewAuditEvent builds an event with JSON snapshots of before and after.
// A nil snapshot is left empty.
func NewAuditEvent(actor shared.Actor, entityType string, entityID uuid.UUID, action string, before, after any) AuditEvent {
	return AuditEvent{
		ID:         uuid.New(),
		TenantID:   actor.TenantID,
		ActorID:    actor.ID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Before:     snapshot(before),
		After:      snapshot(after),
		OccurredAt: time.Now().UTC(),
	}
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Guard performs the access checks shared by every core service
type Guard struct {
	access  AccessChecker
	catalog Catalog
}

// NewGuard creates a Guard
func NewGuard(access AccessChecker, catalog Catalog) *Guard {
	return &Guard{access: access, catalog: catalog}
}

// RequirePermission fails with PermissionDenied unless actor holds permission
func (g *Guard) RequirePermission(ctx context.Context, actor shared.Actor, permission string) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	ok, err := g.access.HasPermission(ctx, actor.ID, actor.TenantID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrForbidden.WithMessage("permission %s is required", permission)
	}
	return nil
}

// RequireMembership fails with PermissionDenied unless actor belongs to branchID
func (g *Guard) RequireMembership(ctx context.Context, actor shared.Actor, branchID uuid.UUID) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	ok, err := g.access.BranchMembership(ctx, actor.ID, actor.TenantID, branchID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotBranchMember.WithMessage("actor is not a member of branch %s", branchID)
	}
	return nil
}

// RequireAnyMembership passes when actor belongs to at least one of branchIDs
func (g *Guard) RequireAnyMembership(ctx context.Context, actor shared.Actor, branchIDs ...uuid.UUID) error {
	var err error
	for _, id := range branchIDs {
		if err = g.RequireMembership(ctx, actor, id); err == nil {
			return nil
		}
		if !shared.IsKind(err, shared.KindPermissionDenied) {
			return err
		}
	}
	if err == nil {
		return shared.ErrNotBranchMember
	}
	return err
}

// RequireProducts fails with NotFound for the first product the catalog does not know
func (g *Guard) RequireProducts(ctx context.Context, tenantID uuid.UUID, productIDs ...uuid.UUID) error {
	for _, id := range productIDs {
		ok, err := g.catalog.ProductExists(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !ok {
			return shared.ErrNotFound.WithMessage("product %s not found", id)
		}
	}
	return nil
}

// ProductPrice returns a product's price from the catalog
func (g *Guard) ProductPrice(ctx context.Context, tenantID, productID uuid.UUID) (int64, error) {
	return g.catalog.ProductPrice(ctx, tenantID, productID)
}

// ActorDisplay resolves a display name, falling back to the id
func (g *Guard) ActorDisplay(ctx context.Context, actorID uuid.UUID) string {
	name, err := g.access.ResolveActorDisplay(ctx, actorID)
	if err != nil || name == "" {
		return actorID.String()
	}
	return name
}
