package transfer

import (
	"context"
	"strings"
	"time"

	"github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/erp/stockflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

type recordSnapshot struct {
	Level  int             `json:"level"`
	Status approval.Status `json:"status"`
	Notes  string          `json:"notes,omitempty"`
}

// SubmitApproval records the decision of one approval level. A rejection
// skips every pending level and rejects a REQUESTED transfer, or cancels an
// APPROVED one that has not shipped.
func (s *TransferService) SubmitApproval(ctx context.Context, actor shared.Actor, transferID uuid.UUID, level int, req SubmitApprovalRequest) (*ApprovalProgressResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "submit_approval",
		telemetry.AttrTenantID, actor.TenantID.String(),
		telemetry.AttrTransferID, transferID.String(),
		telemetry.AttrLevel, level,
	)
	defer span.End()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if level < 1 {
		return nil, approval.ErrRecordNotFound
	}
	if !req.Approve && strings.TrimSpace(req.Notes) == "" {
		return nil, approval.ErrRejectionNotes
	}

	m := inventory.Mutation{
		TenantID: actor.TenantID,
		Scope:    ScopeSubmitApproval,
		Key:      req.IdempotencyKey,
		Request:  keyedRequest{TransferID: transferID, Level: level, Body: req},
	}
	resp, err := inventory.Execute(ctx, s.exec, m, func(ctx context.Context, repos inventory.TransactionalRepositories, fx *inventory.Effects) (ApprovalProgressResponse, error) {
		t, err := repos.Transfers().FindByIDForUpdate(ctx, actor.TenantID, transferID)
		if err != nil {
			return ApprovalProgressResponse{}, err
		}
		if !t.RequiresMultiLevelApproval {
			return ApprovalProgressResponse{}, approval.ErrRecordNotFound.WithMessage("transfer %s has no approval levels", t.TransferNumber)
		}
		if t.Status != transfer.StatusRequested && t.Status != transfer.StatusApproved {
			return ApprovalProgressResponse{}, transfer.ErrInvalidTransition.WithMessage("cannot decide approvals of a transfer in status %s", t.Status)
		}
		records, err := repos.Approvals().FindByTransfer(ctx, actor.TenantID, transferID)
		if err != nil {
			return ApprovalProgressResponse{}, err
		}
		rec, ok := approval.FindLevel(records, level)
		if !ok {
			return ApprovalProgressResponse{}, approval.ErrRecordNotFound
		}
		prior := recordSnapshot{Level: rec.Level, Status: rec.Status}
		if err := approval.Decide(rec, records, actor, req.Approve, req.Notes, time.Now()); err != nil {
			return ApprovalProgressResponse{}, err
		}
		if err := repos.Approvals().Transition(ctx, rec); err != nil {
			return ApprovalProgressResponse{}, err
		}
		fx.Audit(inventory.NewAuditEvent(actor, inventory.AuditEntityTransfer, t.ID, AuditActionApprovalDecision,
			prior, recordSnapshot{Level: rec.Level, Status: rec.Status, Notes: rec.Notes}))

		outcome := "approved"
		if !req.Approve {
			outcome = "rejected"
			before := snapshotOf(t)
			for _, skipped := range approval.SkipPending(records) {
				if err := repos.Approvals().Transition(ctx, skipped); err != nil {
					return ApprovalProgressResponse{}, err
				}
			}
			if err := t.RejectByApproval(actor.ID, level, req.Notes); err != nil {
				return ApprovalProgressResponse{}, err
			}
			if _, err := s.commit(ctx, repos, fx, actor, t, AuditActionReject, before); err != nil {
				return ApprovalProgressResponse{}, err
			}
		}
		fx.Measure(func(ctx context.Context, metrics *telemetry.StockMetrics) {
			metrics.ApprovalDecision(ctx, outcome)
		})
		return ToApprovalProgressResponse(t, records), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// GetApprovalProgress returns the approval gate of a transfer
func (s *TransferService) GetApprovalProgress(ctx context.Context, actor shared.Actor, transferID uuid.UUID) (*ApprovalProgressResponse, error) {
	t, err := s.load(ctx, actor, transferID)
	if err != nil {
		return nil, err
	}
	records, err := s.readRecords(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, actor, t, records); err != nil {
		return nil, err
	}
	resp := ToApprovalProgressResponse(t, records)
	return &resp, nil
}
