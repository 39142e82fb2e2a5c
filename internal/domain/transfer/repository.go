package transfer

import (
	"context"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// SortField is a column transfers can be listed by
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

func (f SortField) IsValid() bool {
	return f == SortByCreatedAt || f == SortByUpdatedAt
}

// SortValue returns the value of the sort column for t
func (f SortField) SortValue(t *Transfer) time.Time {
	if f == SortByUpdatedAt {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// ListFilter selects transfers for keyset pagination
type ListFilter struct {
	TenantID            uuid.UUID
	Statuses            []Status
	SourceBranchID      *uuid.UUID
	DestinationBranchID *uuid.UUID
	// BranchID matches either side of the transfer
	BranchID    *uuid.UUID
	Priority    *Priority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	SortBy      SortField
	Ascending   bool
	Cursor      *shared.Cursor
	// Limit is the page size; repositories fetch Limit+1 rows
	Limit int
}

// Repository defines persistence for transfers with their items and batches
type Repository interface {
	// Create inserts a transfer with all items, batches and receipts
	Create(ctx context.Context, t *Transfer) error

	// Save persists header changes guarded by the aggregate version, and
	// appends new shipment and receipt batches. A stale version is a conflict.
	Save(ctx context.Context, t *Transfer) error

	// FindByID loads a transfer with its items, batches and receipts
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Transfer, error)

	// FindByIDForUpdate loads and locks the transfer row
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Transfer, error)

	// List returns up to filter.Limit+1 transfers in keyset order, with items
	List(ctx context.Context, filter ListFilter) ([]*Transfer, error)
}
