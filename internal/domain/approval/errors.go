package approval

import "github.com/erp/stockflow/internal/domain/shared"

var (
	ErrRuleNotFound     = shared.NewNotFoundError("APPROVAL_RULE_NOT_FOUND", "Approval rule not found")
	ErrRecordNotFound   = shared.NewNotFoundError("APPROVAL_RECORD_NOT_FOUND", "Approval level not found for this transfer")
	ErrInvalidMode      = shared.NewValidationError("INVALID_APPROVAL_MODE", "Approval mode must be SEQUENTIAL, PARALLEL or HYBRID")
	ErrInvalidCondition = shared.NewValidationError("INVALID_RULE_CONDITION", "Rule condition is invalid")
	ErrInvalidApprover  = shared.NewValidationError("INVALID_APPROVER", "A level needs exactly one role or one user approver")
	ErrNoLevels         = shared.NewValidationError("NO_APPROVAL_LEVELS", "A rule needs at least one level")
	ErrInvalidReorder   = shared.NewValidationError("INVALID_LEVEL_ORDER", "Level order must list every level exactly once")
	ErrRuleArchived     = shared.NewConflictError("APPROVAL_RULE_ARCHIVED", "Approval rule is archived")
	ErrNotPending       = shared.NewConflictError("APPROVAL_NOT_PENDING", "Approval level has already been decided")
	ErrLevelNotEligible = shared.NewConflictError("APPROVAL_LEVEL_NOT_ELIGIBLE", "Earlier approval levels must be approved first")
	ErrNotApprover      = shared.NewPermissionDeniedError("NOT_APPROVER", "Actor is not the approver of this level")
	ErrRejectionNotes   = shared.NewValidationError("REJECTION_NOTES_REQUIRED", "Rejection requires notes")
)
