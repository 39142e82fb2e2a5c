package transfer_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockflow/internal/application/inventory"
	transferapp "github.com/erp/stockflow/internal/application/transfer"
	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/erp/stockflow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type transferFixture struct {
	store     *testutil.Store
	access    *testutil.Access
	catalog   *testutil.Catalog
	audit     *testutil.AuditLog
	publisher *testutil.RecordingPublisher
	ledger    *inventory.LedgerService
	service   *transferapp.TransferService
	sender    shared.Actor
	receiver  shared.Actor
	source    uuid.UUID
	dest      uuid.UUID
	product   uuid.UUID
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	tenant := testutil.TestTenantID()
	f := &transferFixture{
		store:     testutil.NewStore(),
		access:    testutil.NewAccess(),
		catalog:   testutil.NewCatalog(),
		audit:     &testutil.AuditLog{},
		publisher: &testutil.RecordingPublisher{},
		sender:    shared.Actor{ID: uuid.New(), TenantID: tenant},
		receiver:  shared.Actor{ID: uuid.New(), TenantID: tenant},
		source:    uuid.New(),
		dest:      uuid.New(),
		product:   uuid.New(),
	}
	f.access.Grant(f.sender.ID, inventory.PermInventoryReceive, inventory.PermInventoryConsume, inventory.PermInventoryView).
		Join(f.sender.ID, f.source).
		Name(f.sender.ID, "Sam Sender")
	f.access.Grant(f.receiver.ID, inventory.PermTransferView).
		Join(f.receiver.ID, f.dest).
		Name(f.receiver.ID, "Riley Receiver")
	f.catalog.Add(f.product, 250)

	exec := inventory.NewExecutor(f.store, zaptest.NewLogger(t))
	exec.SetEventPublisher(f.publisher)
	exec.SetAuditSink(f.audit)
	guard := inventory.NewGuard(f.access, f.catalog)
	repos := f.store.Repos()
	f.ledger = inventory.NewLedgerService(exec, guard, repos.Lots(), repos.Entries(), repos.Levels())
	f.service = transferapp.NewTransferService(exec, guard, repos.Transfers(), repos.Approvals(), f.audit)
	return f
}

// stock receives qty at the source branch and returns the new lot id
func (f *transferFixture) stock(t *testing.T, qty int64, cost *int64) uuid.UUID {
	t.Helper()
	resp, err := f.ledger.ReceiveStock(context.Background(), f.sender, inventory.ReceiveStockRequest{
		BranchID: f.source, ProductID: f.product, Quantity: qty, UnitCost: cost,
	})
	require.NoError(t, err)
	return resp.Lot.ID
}

func (f *transferFixture) create(t *testing.T, qty int64) *transferapp.TransferResponse {
	t.Helper()
	resp, err := f.service.CreateTransfer(context.Background(), f.sender, transferapp.CreateTransferRequest{
		SourceBranchID:      f.source,
		DestinationBranchID: f.dest,
		InitiationType:      "PUSH",
		Items:               []transferapp.CreateTransferItem{{ProductID: f.product, Quantity: qty}},
	})
	require.NoError(t, err)
	return resp
}

func (f *transferFixture) approve(t *testing.T, id uuid.UUID) *transferapp.TransferResponse {
	t.Helper()
	resp, err := f.service.ReviewTransfer(context.Background(), f.receiver, id, transferapp.ReviewTransferRequest{Action: transferapp.ReviewApprove})
	require.NoError(t, err)
	return resp
}

func (f *transferFixture) ship(t *testing.T, id uuid.UUID, items []transferapp.ItemQuantity) *transferapp.TransferResponse {
	t.Helper()
	resp, err := f.service.ShipTransfer(context.Background(), f.sender, id, transferapp.ShipTransferRequest{Items: items})
	require.NoError(t, err)
	return resp
}

func (f *transferFixture) receive(t *testing.T, id uuid.UUID, items []transferapp.ItemQuantity) *transferapp.TransferResponse {
	t.Helper()
	resp, err := f.service.ReceiveTransfer(context.Background(), f.receiver, id, transferapp.ReceiveTransferRequest{Items: items})
	require.NoError(t, err)
	return resp
}

func (f *transferFixture) onHand(branchID uuid.UUID) int64 {
	onHand, _ := f.store.OnHandAndLotSum(f.sender.TenantID, branchID, f.product)
	return onHand
}

func (f *transferFixture) assertConsistent(t *testing.T) {
	t.Helper()
	for _, branch := range []uuid.UUID{f.source, f.dest} {
		onHand, lotSum := f.store.OnHandAndLotSum(f.sender.TenantID, branch, f.product)
		assert.Equal(t, onHand, lotSum, "on hand must equal the sum of open lots at %s", branch)
	}
}

func (f *transferFixture) addRule(t *testing.T, mode approval.Mode, conditions []approval.Condition, approvers ...uuid.UUID) *approval.Rule {
	t.Helper()
	levels := make([]approval.LevelSpec, 0, len(approvers))
	for i, id := range approvers {
		levels = append(levels, approval.LevelSpec{Name: "level " + string(rune('A'+i)), Approver: approval.UserApprover{UserID: id}})
	}
	rule, err := approval.NewRule(f.sender.TenantID, approval.RuleParams{
		Name: "large transfers", Mode: mode, Priority: 10, IsActive: true, Conditions: conditions, Levels: levels,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Repos().Rules().Create(context.Background(), rule))
	return rule
}

func qtyAbove(n int64) []approval.Condition {
	return []approval.Condition{{Type: approval.ConditionTotalQtyThreshold, Threshold: testutil.Int64(n)}}
}

func TestTransferService_LifecycleAndReversal(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	lotA := f.stock(t, 100, testutil.Int64(200))
	_, err := f.ledger.ConsumeStock(ctx, f.sender, inventory.ConsumeStockRequest{BranchID: f.source, ProductID: f.product, Quantity: 60})
	require.NoError(t, err)
	assert.Equal(t, int64(40), f.store.Lot(lotA).QtyRemaining)

	created := f.create(t, 30)
	assert.Equal(t, "REQUESTED", created.Status)
	assert.False(t, created.RequiresMultiLevelApproval)
	assert.Regexp(t, `^TRF-\d{8}-[0-9A-F]{8}$`, created.TransferNumber)

	f.approve(t, created.ID)
	shipped := f.ship(t, created.ID, nil)
	assert.Equal(t, "IN_TRANSIT", shipped.Status)
	require.Len(t, shipped.Items[0].ShipmentBatches, 1)
	assert.Equal(t, []inventory.LotDrawResponse{{LotID: lotA, Qty: 30, UnitCost: testutil.Int64(200)}}, shipped.Items[0].ShipmentBatches[0].LotsConsumed)
	assert.Equal(t, int64(10), f.store.Lot(lotA).QtyRemaining)

	received := f.receive(t, created.ID, nil)
	assert.Equal(t, "COMPLETED", received.Status)
	require.NotNil(t, received.CompletedAt)
	lotB := received.Items[0].Receipts[0].LotID
	require.NotNil(t, f.store.Lot(lotB).UnitCost)
	assert.Equal(t, int64(200), *f.store.Lot(lotB).UnitCost)
	assert.Equal(t, int64(30), f.onHand(f.dest))
	f.assertConsistent(t)

	reversed, err := f.service.ReverseTransfer(ctx, f.receiver, created.ID, transferapp.ReverseTransferRequest{Reason: "wrong branch"})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", reversed.Reversal.Status)
	assert.Equal(t, f.dest, reversed.Reversal.SourceBranchID)
	assert.Equal(t, f.source, reversed.Reversal.DestinationBranchID)
	require.NotNil(t, reversed.Original.ReversedByID)
	assert.Equal(t, reversed.Reversal.ID, *reversed.Original.ReversedByID)
	require.NotNil(t, reversed.Reversal.ReversalOfID)
	assert.Equal(t, created.ID, *reversed.Reversal.ReversalOfID)

	assert.Equal(t, int64(40), f.store.Lot(lotA).QtyRemaining)
	assert.Equal(t, int64(0), f.store.Lot(lotB).QtyRemaining)
	assert.Equal(t, int64(40), f.onHand(f.source))
	assert.Equal(t, int64(0), f.onHand(f.dest))
	f.assertConsistent(t)

	t.Run("second reversal is a conflict", func(t *testing.T) {
		_, err := f.service.ReverseTransfer(ctx, f.receiver, created.ID, transferapp.ReverseTransferRequest{})
		assert.ErrorIs(t, err, transfer.ErrAlreadyReversed)
	})

	t.Run("reversal cannot be reversed", func(t *testing.T) {
		_, err := f.service.ReverseTransfer(ctx, f.sender, reversed.Reversal.ID, transferapp.ReverseTransferRequest{})
		assert.ErrorIs(t, err, transfer.ErrReversalOfReversal)
	})

	events, err := f.service.GetTransferAudit(ctx, f.receiver, created.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(events))
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{
		transferapp.AuditActionRequest,
		transferapp.AuditActionApprove,
		transferapp.AuditActionShip,
		transferapp.AuditActionReceive,
		transferapp.AuditActionReverse,
	}, actions)
	assert.Equal(t, "Sam Sender", events[0].ActorDisplay)
	assert.Equal(t, "Riley Receiver", events[1].ActorDisplay)
}

func TestTransferService_PartialShipmentsCarryWeightedCost(t *testing.T) {
	f := newTransferFixture(t)

	lot1 := f.stock(t, 10, testutil.Int64(100))
	lot2 := f.stock(t, 20, testutil.Int64(130))
	created := f.create(t, 25)
	f.approve(t, created.ID)

	first := f.ship(t, created.ID, []transferapp.ItemQuantity{{ProductID: f.product, Quantity: 12}})
	assert.Equal(t, []inventory.LotDrawResponse{
		{LotID: lot1, Qty: 10, UnitCost: testutil.Int64(100)},
		{LotID: lot2, Qty: 2, UnitCost: testutil.Int64(130)},
	}, first.Items[0].ShipmentBatches[0].LotsConsumed)

	second := f.ship(t, created.ID, nil)
	require.Len(t, second.Items[0].ShipmentBatches, 2)
	assert.Equal(t, int64(13), second.Items[0].ShipmentBatches[1].Qty)
	assert.Equal(t, int64(25), second.Items[0].QtyShipped)
	assert.Equal(t, int64(5), f.onHand(f.source))

	partial := f.receive(t, created.ID, []transferapp.ItemQuantity{{ProductID: f.product, Quantity: 5}})
	assert.Equal(t, "PARTIALLY_RECEIVED", partial.Status)

	done := f.receive(t, created.ID, nil)
	assert.Equal(t, "COMPLETED", done.Status)
	require.Len(t, done.Items[0].Receipts, 2)
	// (10*100 + 15*130) / 25
	for _, r := range done.Items[0].Receipts {
		require.NotNil(t, r.UnitCost)
		assert.Equal(t, int64(118), *r.UnitCost)
		assert.Equal(t, int64(118), *f.store.Lot(r.LotID).UnitCost)
	}
	assert.Equal(t, int64(25), f.onHand(f.dest))
	f.assertConsistent(t)
}

func TestTransferService_ShipRemainderAfterPartialReceipt(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	lot := f.stock(t, 5, testutil.Int64(100))
	created := f.create(t, 5)
	f.approve(t, created.ID)

	f.ship(t, created.ID, []transferapp.ItemQuantity{{ProductID: f.product, Quantity: 3}})
	partial := f.receive(t, created.ID, nil)
	assert.Equal(t, "PARTIALLY_RECEIVED", partial.Status)
	assert.Equal(t, int64(3), f.onHand(f.dest))

	_, err := f.service.ReceiveTransfer(ctx, f.receiver, created.ID, transferapp.ReceiveTransferRequest{})
	assert.ErrorIs(t, err, transfer.ErrNothingToReceive)

	rest := f.ship(t, created.ID, nil)
	assert.Equal(t, "PARTIALLY_RECEIVED", rest.Status)
	require.Len(t, rest.Items[0].ShipmentBatches, 2)
	assert.Equal(t, int64(2), rest.Items[0].ShipmentBatches[1].Qty)
	assert.Equal(t, int64(0), f.onHand(f.source))

	done := f.receive(t, created.ID, nil)
	assert.Equal(t, "COMPLETED", done.Status)
	assert.Equal(t, int64(5), done.Items[0].QtyReceived)
	assert.Equal(t, int64(5), f.onHand(f.dest))
	f.assertConsistent(t)

	_, err = f.service.ReverseTransfer(ctx, f.receiver, created.ID, transferapp.ReverseTransferRequest{Reason: "returned"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.store.Lot(lot).QtyRemaining)
	assert.Equal(t, int64(0), f.onHand(f.dest))
	f.assertConsistent(t)
}

func TestTransferService_ReviewWithReducedQuantity(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	f.stock(t, 50, nil)
	created := f.create(t, 10)

	t.Run("nothing approved", func(t *testing.T) {
		_, err := f.service.ReviewTransfer(ctx, f.receiver, created.ID, transferapp.ReviewTransferRequest{
			Action: transferapp.ReviewApprove,
			Items:  []transferapp.ItemQuantity{{ProductID: f.product, Quantity: 0}},
		})
		assert.ErrorIs(t, err, transfer.ErrNothingApproved)
	})

	t.Run("above requested", func(t *testing.T) {
		_, err := f.service.ReviewTransfer(ctx, f.receiver, created.ID, transferapp.ReviewTransferRequest{
			Action: transferapp.ReviewApprove,
			Items:  []transferapp.ItemQuantity{{ProductID: f.product, Quantity: 11}},
		})
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})

	approved, err := f.service.ReviewTransfer(ctx, f.receiver, created.ID, transferapp.ReviewTransferRequest{
		Action: transferapp.ReviewApprove,
		Items:  []transferapp.ItemQuantity{{ProductID: f.product, Quantity: 4}},
	})
	require.NoError(t, err)
	require.NotNil(t, approved.Items[0].QtyApproved)
	assert.Equal(t, int64(4), *approved.Items[0].QtyApproved)

	shipped := f.ship(t, created.ID, nil)
	assert.Equal(t, int64(4), shipped.Items[0].QtyShipped)

	done := f.receive(t, created.ID, nil)
	assert.Equal(t, "COMPLETED", done.Status)
	assert.Nil(t, done.Items[0].Receipts[0].UnitCost, "uncosted lots stay uncosted")
	f.assertConsistent(t)
}

func TestTransferService_Reject(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	created := f.create(t, 10)

	_, err := f.service.ReviewTransfer(ctx, f.receiver, created.ID, transferapp.ReviewTransferRequest{Action: transferapp.ReviewReject})
	assert.ErrorIs(t, err, transfer.ErrRejectionNotes)

	rejected, err := f.service.ReviewTransfer(ctx, f.receiver, created.ID, transferapp.ReviewTransferRequest{Action: transferapp.ReviewReject, Notes: "not needed"})
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", rejected.Status)
	assert.Equal(t, "not needed", rejected.ReviewNotes)

	_, err = f.service.ShipTransfer(ctx, f.sender, created.ID, transferapp.ShipTransferRequest{})
	assert.ErrorIs(t, err, transfer.ErrInvalidTransition)

	_, err = f.service.CancelTransfer(ctx, f.sender, created.ID, transferapp.CancelTransferRequest{Reason: "late"})
	assert.True(t, shared.IsKind(err, shared.KindConflict))
}

func TestTransferService_CancelInTransitRestoresLots(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	lot := f.stock(t, 50, testutil.Int64(90))
	created := f.create(t, 20)
	f.approve(t, created.ID)
	f.ship(t, created.ID, nil)
	assert.Equal(t, int64(30), f.store.Lot(lot).QtyRemaining)

	_, err := f.service.CancelTransfer(ctx, f.sender, created.ID, transferapp.CancelTransferRequest{})
	assert.True(t, shared.IsKind(err, shared.KindValidation))

	cancelled, err := f.service.CancelTransfer(ctx, f.sender, created.ID, transferapp.CancelTransferRequest{Reason: "truck broke down"})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	assert.Equal(t, "truck broke down", cancelled.CancelReason)
	assert.Equal(t, int64(50), f.store.Lot(lot).QtyRemaining)
	assert.Equal(t, int64(50), f.onHand(f.source))
	f.assertConsistent(t)

	_, err = f.service.ReceiveTransfer(ctx, f.receiver, created.ID, transferapp.ReceiveTransferRequest{})
	assert.ErrorIs(t, err, transfer.ErrInvalidTransition)
}

func TestTransferService_ShipInsufficientStock(t *testing.T) {
	f := newTransferFixture(t)
	lot := f.stock(t, 5, nil)
	created := f.create(t, 10)
	f.approve(t, created.ID)

	_, err := f.service.ShipTransfer(context.Background(), f.sender, created.ID, transferapp.ShipTransferRequest{})
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)

	assert.Equal(t, int64(5), f.store.Lot(lot).QtyRemaining)
	got, err := f.service.GetTransfer(context.Background(), f.sender, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", got.Status)
	assert.Equal(t, int64(0), got.Items[0].QtyShipped)
}

func TestTransferService_Permissions(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	t.Run("push initiated outside the source branch", func(t *testing.T) {
		_, err := f.service.CreateTransfer(ctx, f.receiver, transferapp.CreateTransferRequest{
			SourceBranchID: f.source, DestinationBranchID: f.dest, InitiationType: "PUSH",
			Items: []transferapp.CreateTransferItem{{ProductID: f.product, Quantity: 1}},
		})
		assert.ErrorIs(t, err, shared.ErrNotBranchMember)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := f.service.CreateTransfer(ctx, f.sender, transferapp.CreateTransferRequest{
			SourceBranchID: f.source, DestinationBranchID: f.dest, InitiationType: "PUSH",
			Items: []transferapp.CreateTransferItem{{ProductID: uuid.New(), Quantity: 1}},
		})
		assert.True(t, shared.IsKind(err, shared.KindNotFound))
	})

	t.Run("same branch", func(t *testing.T) {
		_, err := f.service.CreateTransfer(ctx, f.sender, transferapp.CreateTransferRequest{
			SourceBranchID: f.source, DestinationBranchID: f.source, InitiationType: "PUSH",
			Items: []transferapp.CreateTransferItem{{ProductID: f.product, Quantity: 1}},
		})
		assert.ErrorIs(t, err, transfer.ErrSameBranch)
	})

	t.Run("pull is reviewed by the source", func(t *testing.T) {
		pulled, err := f.service.CreateTransfer(ctx, f.receiver, transferapp.CreateTransferRequest{
			SourceBranchID: f.source, DestinationBranchID: f.dest, InitiationType: "PULL",
			Items: []transferapp.CreateTransferItem{{ProductID: f.product, Quantity: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, f.dest, pulled.InitiatedByBranchID)

		_, err = f.service.ReviewTransfer(ctx, f.receiver, pulled.ID, transferapp.ReviewTransferRequest{Action: transferapp.ReviewApprove})
		assert.ErrorIs(t, err, shared.ErrNotBranchMember)

		_, err = f.service.ReviewTransfer(ctx, f.sender, pulled.ID, transferapp.ReviewTransferRequest{Action: transferapp.ReviewApprove})
		assert.NoError(t, err)
	})

	t.Run("only the destination reverses", func(t *testing.T) {
		f.stock(t, 2, nil)
		created := f.create(t, 2)
		f.approve(t, created.ID)
		f.ship(t, created.ID, nil)
		f.receive(t, created.ID, nil)

		_, err := f.service.ReverseTransfer(ctx, f.sender, created.ID, transferapp.ReverseTransferRequest{})
		assert.ErrorIs(t, err, shared.ErrNotBranchMember)

		_, err = f.service.ReverseTransfer(ctx, f.receiver, created.ID, transferapp.ReverseTransferRequest{})
		assert.NoError(t, err)
	})

	t.Run("outsiders cannot read", func(t *testing.T) {
		created := f.create(t, 1)
		outsider := shared.Actor{ID: uuid.New(), TenantID: f.sender.TenantID}
		_, err := f.service.GetTransfer(ctx, outsider, created.ID)
		assert.True(t, shared.IsKind(err, shared.KindPermissionDenied))

		_, err = f.service.GetTransfer(ctx, shared.Actor{ID: f.sender.ID, TenantID: uuid.New()}, created.ID)
		assert.True(t, shared.IsKind(err, shared.KindNotFound), "other tenants must not see the transfer")
	})
}

func TestTransferService_ApprovalGate(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	first, second := shared.Actor{ID: uuid.New(), TenantID: f.sender.TenantID}, shared.Actor{ID: uuid.New(), TenantID: f.sender.TenantID}
	rule := f.addRule(t, approval.ModeSequential, qtyAbove(5), first.ID, second.ID)
	f.stock(t, 100, nil)

	small := f.create(t, 5)
	assert.False(t, small.RequiresMultiLevelApproval)

	created := f.create(t, 10)
	require.True(t, created.RequiresMultiLevelApproval)
	require.NotNil(t, created.ApprovalRuleID)
	assert.Equal(t, rule.ID, *created.ApprovalRuleID)
	require.NotNil(t, created.Approval)
	assert.Equal(t, 2, created.Approval.Pending)
	assert.Equal(t, []int{1}, created.Approval.EligibleLevels)

	f.approve(t, created.ID)
	_, err := f.service.ShipTransfer(ctx, f.sender, created.ID, transferapp.ShipTransferRequest{})
	assert.ErrorIs(t, err, transfer.ErrApprovalPending)

	_, err = f.service.SubmitApproval(ctx, second, created.ID, 2, transferapp.SubmitApprovalRequest{Approve: true})
	assert.ErrorIs(t, err, approval.ErrLevelNotEligible)

	_, err = f.service.SubmitApproval(ctx, second, created.ID, 1, transferapp.SubmitApprovalRequest{Approve: true})
	assert.ErrorIs(t, err, approval.ErrNotApprover)

	progress, err := f.service.SubmitApproval(ctx, first, created.ID, 1, transferapp.SubmitApprovalRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, progress.EligibleLevels)

	_, err = f.service.SubmitApproval(ctx, first, created.ID, 1, transferapp.SubmitApprovalRequest{Approve: true})
	assert.ErrorIs(t, err, approval.ErrNotPending)

	progress, err = f.service.SubmitApproval(ctx, second, created.ID, 2, transferapp.SubmitApprovalRequest{Approve: true, Notes: "ok"})
	require.NoError(t, err)
	assert.True(t, progress.Satisfied)
	assert.Equal(t, 2, progress.Approved)

	viewed, err := f.service.GetApprovalProgress(ctx, second, created.ID)
	require.NoError(t, err, "approvers may read progress without branch membership")
	assert.True(t, viewed.Satisfied)

	shipped := f.ship(t, created.ID, nil)
	assert.Equal(t, "IN_TRANSIT", shipped.Status)
}

func TestTransferService_ApprovalRejectionCancelsApprovedTransfer(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	first, second := shared.Actor{ID: uuid.New(), TenantID: f.sender.TenantID}, shared.Actor{ID: uuid.New(), TenantID: f.sender.TenantID}
	f.addRule(t, approval.ModeParallel, nil, first.ID, second.ID)

	created := f.create(t, 3)
	require.True(t, created.RequiresMultiLevelApproval, "a rule without conditions matches every transfer")
	f.approve(t, created.ID)

	_, err := f.service.SubmitApproval(ctx, second, created.ID, 2, transferapp.SubmitApprovalRequest{Approve: false})
	assert.ErrorIs(t, err, approval.ErrRejectionNotes)

	progress, err := f.service.SubmitApproval(ctx, second, created.ID, 2, transferapp.SubmitApprovalRequest{Approve: false, Notes: "over budget"})
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Rejected)
	assert.Equal(t, 1, progress.Skipped)
	assert.False(t, progress.Satisfied)

	got, err := f.service.GetTransfer(ctx, f.sender, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", got.Status)
	assert.Equal(t, "approval level 2 rejected: over budget", got.CancelReason)

	_, err = f.service.SubmitApproval(ctx, first, created.ID, 1, transferapp.SubmitApprovalRequest{Approve: true})
	assert.ErrorIs(t, err, transfer.ErrInvalidTransition)
}

func TestTransferService_HybridApproval(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	lead := shared.Actor{ID: uuid.New(), TenantID: f.sender.TenantID}
	a, b := shared.Actor{ID: uuid.New(), TenantID: f.sender.TenantID}, shared.Actor{ID: uuid.New(), TenantID: f.sender.TenantID}
	f.addRule(t, approval.ModeHybrid, nil, lead.ID, a.ID, b.ID)
	created := f.create(t, 3)

	_, err := f.service.SubmitApproval(ctx, b, created.ID, 3, transferapp.SubmitApprovalRequest{Approve: true})
	assert.ErrorIs(t, err, approval.ErrLevelNotEligible)

	progress, err := f.service.SubmitApproval(ctx, lead, created.ID, 1, transferapp.SubmitApprovalRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, progress.EligibleLevels)

	_, err = f.service.SubmitApproval(ctx, b, created.ID, 3, transferapp.SubmitApprovalRequest{Approve: true})
	require.NoError(t, err)
	progress, err = f.service.SubmitApproval(ctx, a, created.ID, 2, transferapp.SubmitApprovalRequest{Approve: true})
	require.NoError(t, err)
	assert.True(t, progress.Satisfied)
}

func TestTransferService_ValueThresholdRule(t *testing.T) {
	f := newTransferFixture(t)
	approver := uuid.New()
	f.addRule(t, approval.ModeSequential, []approval.Condition{
		{Type: approval.ConditionTotalValueThreshold, Threshold: testutil.Int64(1000)},
	}, approver)

	// 4 * 250 is not above 1000
	assert.False(t, f.create(t, 4).RequiresMultiLevelApproval)
	assert.True(t, f.create(t, 5).RequiresMultiLevelApproval)
}

func TestTransferService_Idempotency(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	lot := f.stock(t, 20, nil)
	created := f.create(t, 10)
	f.approve(t, created.ID)

	req := transferapp.ShipTransferRequest{Items: []transferapp.ItemQuantity{{ProductID: f.product, Quantity: 4}}, IdempotencyKey: "ship-1"}
	first, err := f.service.ShipTransfer(ctx, f.sender, created.ID, req)
	require.NoError(t, err)
	again, err := f.service.ShipTransfer(ctx, f.sender, created.ID, req)
	require.NoError(t, err)

	assert.Equal(t, first.Version, again.Version)
	assert.Equal(t, first.Items[0].QtyShipped, again.Items[0].QtyShipped)
	assert.Equal(t, int64(16), f.store.Lot(lot).QtyRemaining, "replay must not draw again")

	req.Items[0].Quantity = 5
	_, err = f.service.ShipTransfer(ctx, f.sender, created.ID, req)
	assert.ErrorIs(t, err, shared.ErrIdempotencyMismatch)

	t.Run("same key on another transfer", func(t *testing.T) {
		other := f.create(t, 2)
		f.approve(t, other.ID)
		_, err := f.service.ShipTransfer(ctx, f.sender, other.ID, transferapp.ShipTransferRequest{IdempotencyKey: "ship-1"})
		assert.ErrorIs(t, err, shared.ErrIdempotencyMismatch)
	})
}

func TestTransferService_ListTransfers(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	for range 3 {
		f.create(t, 1)
		time.Sleep(time.Millisecond)
	}

	_, err := f.service.ListTransfers(ctx, f.sender, transferapp.ListTransfersRequest{})
	assert.True(t, shared.IsKind(err, shared.KindPermissionDenied))

	page, err := f.service.ListTransfers(ctx, f.receiver, transferapp.ListTransfersRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt), "newest first by default")

	rest, err := f.service.ListTransfers(ctx, f.receiver, transferapp.ListTransfersRequest{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.False(t, rest.HasMore)

	seen := map[uuid.UUID]bool{}
	for _, item := range append(page.Items, rest.Items...) {
		seen[item.ID] = true
	}
	assert.Len(t, seen, 3)

	filtered, err := f.service.ListTransfers(ctx, f.receiver, transferapp.ListTransfersRequest{Statuses: []string{"APPROVED,CANCELLED"}})
	require.NoError(t, err)
	assert.Empty(t, filtered.Items)

	_, err = f.service.ListTransfers(ctx, f.receiver, transferapp.ListTransfersRequest{Statuses: []string{"LOST"}})
	assert.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = f.service.ListTransfers(ctx, f.receiver, transferapp.ListTransfersRequest{Cursor: "%%%"})
	assert.ErrorIs(t, err, shared.ErrInvalidCursor)
}
