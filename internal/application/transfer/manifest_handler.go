package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ManifestStore is where dispatch manifests are written
type ManifestStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ManifestVersion is bumped whenever the manifest layout changes
const ManifestVersion = 1

// DispatchManifest is the document handed to warehouse integrations when
// goods leave, arrive, or are called back
type DispatchManifest struct {
	Version             int               `json:"version"`
	EventID             uuid.UUID         `json:"event_id"`
	EventType           string            `json:"event_type"`
	OccurredAt          time.Time         `json:"occurred_at"`
	GeneratedAt         time.Time         `json:"generated_at"`
	TenantID            uuid.UUID         `json:"tenant_id"`
	TransferID          uuid.UUID         `json:"transfer_id"`
	TransferNumber      string            `json:"transfer_number"`
	SourceBranchID      uuid.UUID         `json:"source_branch_id"`
	DestinationBranchID uuid.UUID         `json:"destination_branch_id"`
	Status              transfer.Status   `json:"status"`
	ActorID             uuid.UUID         `json:"actor_id"`
	Items               []ManifestItem    `json:"items"`
	Reversal            *ManifestReversal `json:"reversal,omitempty"`
}

// ManifestItem carries quantities plus the lots behind them
type ManifestItem struct {
	ProductID    uuid.UUID        `json:"product_id"`
	QtyApproved  int64            `json:"qty_approved"`
	QtyShipped   int64            `json:"qty_shipped"`
	QtyReceived  int64            `json:"qty_received"`
	ShippedLots  []ledger.LotDraw `json:"shipped_lots,omitempty"`
	ReceivedLots []ledger.LotDraw `json:"received_lots,omitempty"`
}

// ManifestReversal links a reversed transfer to its reversal
type ManifestReversal struct {
	ReversalID     uuid.UUID `json:"reversal_id"`
	ReversalNumber string    `json:"reversal_number"`
	Reason         string    `json:"reason,omitempty"`
}

// DispatchManifestHandler writes one manifest per transfer movement event.
// Lot detail is read from the committed transfer, so the handler must only
// see events published after commit.
type DispatchManifestHandler struct {
	transfers transfer.Repository
	store     ManifestStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatchManifestHandler creates the handler
func NewDispatchManifestHandler(transfers transfer.Repository, store ManifestStore, logger *zap.Logger) *DispatchManifestHandler {
	return &DispatchManifestHandler{
		transfers: transfers,
		store:     store,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Name identifies the handler for processed-event bookkeeping
func (h *DispatchManifestHandler) Name() string {
	return "dispatch-manifest"
}

// EventTypes returns the movement events that produce a manifest
func (h *DispatchManifestHandler) EventTypes() []string {
	return []string{
		transfer.EventTypeTransferShipped,
		transfer.EventTypeTransferReceived,
		transfer.EventTypeTransferCompleted,
		transfer.EventTypeTransferCancelled,
		transfer.EventTypeTransferReversed,
	}
}

// ManifestKey returns the object key for an event on a transfer
func ManifestKey(tenantID, transferID, eventID uuid.UUID, eventType string) string {
	return fmt.Sprintf("%s/%s/%s-%s.json", tenantID, transferID, strings.ToLower(eventType), eventID)
}

// Handle builds and stores the manifest. An existing object for the same
// event is left untouched.
func (h *DispatchManifestHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var (
		base     *transfer.TransferEvent
		reversal *ManifestReversal
	)
	switch e := event.(type) {
	case *transfer.TransferEvent:
		base = e
	case *transfer.TransferReversedEvent:
		base = &e.TransferEvent
		reversal = &ManifestReversal{ReversalID: e.ReversalID, ReversalNumber: e.ReversalNumber, Reason: e.Reason}
	default:
		h.logger.Warn("Unexpected event for dispatch manifest",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()))
		return nil
	}

	key := ManifestKey(base.TenantID(), base.AggregateID(), base.EventID(), base.EventType())
	exists, err := h.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check manifest %s: %w", key, err)
	}
	if exists {
		h.logger.Debug("Manifest already written", zap.String("key", key))
		return nil
	}

	t, err := h.transfers.FindByID(ctx, base.TenantID(), base.AggregateID())
	if err != nil {
		return fmt.Errorf("load transfer %s for manifest: %w", base.AggregateID(), err)
	}

	// The event's status is the one the movement produced; the stored
	// transfer may have moved on since.
	manifest := DispatchManifest{
		Version:             ManifestVersion,
		EventID:             base.EventID(),
		EventType:           base.EventType(),
		OccurredAt:          base.OccurredAt(),
		GeneratedAt:         h.now(),
		TenantID:            base.TenantID(),
		TransferID:          t.ID,
		TransferNumber:      t.TransferNumber,
		SourceBranchID:      t.SourceBranchID,
		DestinationBranchID: t.DestinationBranchID,
		Status:              base.Status,
		ActorID:             base.ActorID,
		Items:               make([]ManifestItem, 0, len(t.Items)),
		Reversal:            reversal,
	}
	for _, item := range t.Items {
		mi := ManifestItem{
			ProductID:   item.ProductID,
			QtyApproved: item.Approved(),
			QtyShipped:  item.QtyShipped,
			QtyReceived: item.QtyReceived,
			ShippedLots: ledger.MergeDraws(item.ShippedDraws()),
		}
		if len(item.Receipts) > 0 {
			mi.ReceivedLots = item.ReceivedLots()
		}
		manifest.Items = append(manifest.Items, mi)
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := h.store.Put(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("store manifest %s: %w", key, err)
	}

	h.logger.Info("Dispatch manifest written",
		zap.String("key", key),
		zap.String("transfer_number", t.TransferNumber),
		zap.String("event_type", base.EventType()))
	return nil
}

var _ shared.EventHandler = (*DispatchManifestHandler)(nil)
