package approval

import (
	"context"

	"github.com/google/uuid"
)

// RuleRepository defines persistence for approval rules
type RuleRepository interface {
	// Create inserts a rule with its conditions and levels
	Create(ctx context.Context, rule *Rule) error

	// Save replaces conditions and levels, guarded by the rule version
	Save(ctx context.Context, rule *Rule) error

	// FindByID loads a rule with conditions and levels
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Rule, error)

	// FindActive returns active, non-archived rules ordered by priority desc
	FindActive(ctx context.Context, tenantID uuid.UUID) ([]*Rule, error)

	// List returns rules ordered by priority desc
	List(ctx context.Context, tenantID uuid.UUID, includeArchived bool) ([]*Rule, error)
}

// RecordRepository defines persistence for per-transfer approval records
type RecordRepository interface {
	// CreateBatch inserts the records materialized for one transfer
	CreateBatch(ctx context.Context, records []*Record) error

	// FindByTransfer returns a transfer's records ordered by level
	FindByTransfer(ctx context.Context, tenantID, transferID uuid.UUID) ([]*Record, error)

	// Transition writes rec's new status only if the stored status is still
	// PENDING; otherwise it returns ErrNotPending so exactly one concurrent
	// submitter wins
	Transition(ctx context.Context, rec *Record) error
}
