package ledger

import (
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// EntryKind represents the type of ledger entry
type EntryKind string

const (
	EntryKindReceipt     EntryKind = "RECEIPT"
	EntryKindAdjustment  EntryKind = "ADJUSTMENT"
	EntryKindConsumption EntryKind = "CONSUMPTION"
	EntryKindReversal    EntryKind = "REVERSAL"
)

func (k EntryKind) String() string {
	return string(k)
}

// IsValid returns true if the entry kind is valid
func (k EntryKind) IsValid() bool {
	switch k {
	case EntryKindReceipt, EntryKindAdjustment, EntryKindConsumption, EntryKindReversal:
		return true
	}
	return false
}

// allowsDelta checks the sign contract of each kind.
// Adjustments may go either way.
func (k EntryKind) allowsDelta(delta int64) bool {
	switch k {
	case EntryKindReceipt, EntryKindReversal:
		return delta >= 0
	case EntryKindConsumption:
		return delta <= 0
	case EntryKindAdjustment:
		return true
	}
	return false
}

// LedgerEntry is an immutable fact recording one quantity change.
// Entries are appended and never updated or deleted.
type LedgerEntry struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	BranchID   uuid.UUID
	ProductID  uuid.UUID
	LotID      *uuid.UUID
	Kind       EntryKind
	QtyDelta   int64
	Reason     string
	SourceRef  string
	ActorID    uuid.UUID
	OccurredAt time.Time
	CreatedAt  time.Time
}

// EntryContext carries the who/why/when shared by every entry of one operation
type EntryContext struct {
	TenantID   uuid.UUID
	ActorID    uuid.UUID
	Reason     string
	SourceRef  string
	OccurredAt time.Time
}

// NewLedgerEntry creates an entry against lot (nil for pure aggregate corrections)
func NewLedgerEntry(ec EntryContext, branchID, productID uuid.UUID, lotID *uuid.UUID, kind EntryKind, delta int64) (*LedgerEntry, error) {
	if !kind.IsValid() {
		return nil, shared.NewValidationError("INVALID_ENTRY_KIND", "Invalid ledger entry kind")
	}
	if !kind.allowsDelta(delta) {
		return nil, shared.NewValidationError("INVALID_ENTRY_SIGN", "Quantity sign does not match entry kind "+kind.String())
	}
	now := time.Now().UTC()
	occurredAt := ec.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	return &LedgerEntry{
		ID:         uuid.New(),
		TenantID:   ec.TenantID,
		BranchID:   branchID,
		ProductID:  productID,
		LotID:      lotID,
		Kind:       kind,
		QtyDelta:   delta,
		Reason:     ec.Reason,
		SourceRef:  ec.SourceRef,
		ActorID:    ec.ActorID,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  now,
	}, nil
}
