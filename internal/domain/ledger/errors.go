package ledger

import "github.com/erp/stockflow/internal/domain/shared"

var (
	ErrNonPositiveQuantity = shared.NewValidationError("INVALID_QUANTITY", "Quantity must be positive")
	ErrZeroAdjustment      = shared.NewValidationError("INVALID_ADJUSTMENT", "Adjustment delta cannot be zero")
	ErrLotOverRestore      = shared.NewConflictError("LOT_OVER_RESTORE", "Restore would exceed the lot's received quantity")
	ErrLotNotFound         = shared.NewNotFoundError("LOT_NOT_FOUND", "Stock lot not found")
	ErrLotScopeMismatch    = shared.NewConflictError("LOT_SCOPE_MISMATCH", "Lot does not belong to the branch")
)

// InsufficientStock builds the conflict returned when a draw exceeds on-hand stock
func InsufficientStock(requested, onHand int64) *shared.DomainError {
	return shared.ErrInsufficientStock.WithMessage("insufficient stock: requested %d, on hand %d", requested, onHand)
}
