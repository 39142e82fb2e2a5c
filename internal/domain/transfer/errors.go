package transfer

import "github.com/erp/stockflow/internal/domain/shared"

var (
	ErrTransferNotFound    = shared.NewNotFoundError("TRANSFER_NOT_FOUND", "Stock transfer not found")
	ErrSameBranch          = shared.NewValidationError("SAME_BRANCH", "Source and destination branches must differ")
	ErrNoItems             = shared.NewValidationError("NO_ITEMS", "Transfer must contain at least one item")
	ErrDuplicateProduct    = shared.NewValidationError("DUPLICATE_PRODUCT", "A product may appear only once per transfer")
	ErrInvalidQuantity     = shared.NewValidationError("INVALID_QUANTITY", "Quantity must be positive")
	ErrInvalidApprovedQty  = shared.NewValidationError("INVALID_APPROVED_QUANTITY", "Approved quantity must be between 0 and the requested quantity")
	ErrNothingApproved     = shared.NewValidationError("NOTHING_APPROVED", "At least one item must be approved with a positive quantity")
	ErrRejectionNotes      = shared.NewValidationError("REJECTION_NOTES_REQUIRED", "Rejection requires notes")
	ErrUnknownItem         = shared.NewValidationError("UNKNOWN_ITEM", "Product is not part of this transfer")
	ErrNothingToShip       = shared.NewValidationError("NOTHING_TO_SHIP", "Shipment must move a positive quantity")
	ErrNothingToReceive    = shared.NewValidationError("NOTHING_TO_RECEIVE", "Receipt must accept a positive quantity")
	ErrInvalidTransition   = shared.NewConflictError("INVALID_TRANSITION", "Transfer status does not allow this action")
	ErrApprovalPending     = shared.NewConflictError("APPROVAL_PENDING", "Transfer is waiting for multi-level approval")
	ErrAlreadyReversed     = shared.NewConflictError("ALREADY_REVERSED", "Transfer has already been reversed")
	ErrReversalOfReversal  = shared.NewConflictError("REVERSAL_OF_REVERSAL", "A reversal transfer cannot be reversed")
	ErrDrawMismatch        = shared.NewValidationError("DRAW_MISMATCH", "Lot draws do not add up to the shipped quantity")
	ErrInvalidInitiation   = shared.NewValidationError("INVALID_INITIATION_TYPE", "Initiation type must be PUSH or PULL")
	ErrInvalidPriority     = shared.NewValidationError("INVALID_PRIORITY", "Priority must be LOW, NORMAL, HIGH or URGENT")
	ErrTransferNumberTaken = shared.NewConflictError("TRANSFER_NUMBER_TAKEN", "Transfer number already exists")
)

func invalidTransition(from Status, action string) *shared.DomainError {
	return ErrInvalidTransition.WithMessage("cannot %s a transfer in status %s", action, from)
}
