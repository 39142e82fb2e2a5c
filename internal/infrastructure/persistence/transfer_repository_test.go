package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/erp/stockflow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransfer(t *testing.T, tenantID uuid.UUID, products ...uuid.UUID) *transfer.Transfer {
	t.Helper()
	items := make([]transfer.ItemLine, 0, len(products))
	for i, p := range products {
		items = append(items, transfer.ItemLine{ProductID: p, Qty: int64(10 * (i + 1))})
	}
	tr, err := transfer.NewTransfer(transfer.NewTransferParams{
		TenantID:            tenantID,
		ActorID:             uuid.New(),
		SourceBranchID:      uuid.New(),
		DestinationBranchID: uuid.New(),
		InitiationType:      transfer.InitiationPush,
		Notes:               "restock",
		Items:               items,
	})
	require.NoError(t, err)
	return tr
}

func TestGormTransferRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewGormTransferRepository(testutil.NewSQLiteDB(t))
	tenant := testutil.TestTenantID()
	productA, productB := uuid.New(), uuid.New()
	actor := uuid.New()

	tr := newTestTransfer(t, tenant, productA, productB)
	require.NoError(t, repo.Create(ctx, tr))

	loaded, err := repo.FindByID(ctx, tenant, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.TransferNumber, loaded.TransferNumber)
	assert.Equal(t, transfer.StatusRequested, loaded.Status)
	assert.Equal(t, transfer.PriorityNormal, loaded.Priority)
	assert.Equal(t, 1, loaded.Version)
	require.Len(t, loaded.Items, 2)
	assert.Nil(t, loaded.Items[0].QtyApproved)

	require.NoError(t, loaded.Approve(actor, map[uuid.UUID]int64{productB: 15}, "ok"))
	require.NoError(t, repo.Save(ctx, loaded))
	assert.Equal(t, 2, loaded.Version)

	lines, err := loaded.PlanShipment(nil)
	require.NoError(t, err)
	shipments := make([]transfer.ItemShipment, 0, len(lines))
	lotA, lotB := uuid.New(), uuid.New()
	for _, l := range lines {
		half := l.Qty / 2
		shipments = append(shipments, transfer.ItemShipment{ShipLine: l, Draws: []ledger.LotDraw{
			{LotID: lotA, Qty: half, UnitCost: testutil.Int64(100)},
			{LotID: lotB, Qty: l.Qty - half},
		}})
	}
	shippedAt := time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, loaded.Ship(actor, shippedAt, shipments))
	require.NoError(t, repo.Save(ctx, loaded))

	shipped, err := repo.FindByIDForUpdate(ctx, tenant, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusInTransit, shipped.Status)
	assert.Equal(t, 3, shipped.Version)
	require.NotNil(t, shipped.ShippedAt)
	assert.True(t, shipped.ShippedAt.Equal(shippedAt))

	itemB, ok := shipped.ItemByProduct(productB)
	require.True(t, ok)
	require.NotNil(t, itemB.QtyApproved)
	assert.Equal(t, int64(15), *itemB.QtyApproved)
	assert.Equal(t, int64(15), itemB.QtyShipped)
	require.Len(t, itemB.ShipmentBatches, 1)
	draws := itemB.ShipmentBatches[0].LotsConsumed
	require.Len(t, draws, 2)
	assert.Equal(t, lotA, draws[0].LotID)
	assert.Equal(t, int64(7), draws[0].Qty)
	require.NotNil(t, draws[0].UnitCost)
	assert.Nil(t, draws[1].UnitCost)

	receiveLines, err := shipped.PlanReceipt(map[uuid.UUID]int64{productA: 4})
	require.NoError(t, err)
	require.Len(t, receiveLines, 1)
	destLot := uuid.New()
	require.NoError(t, shipped.Receive(actor, shippedAt.Add(time.Hour), []transfer.ItemReceipt{{ReceiveLine: receiveLines[0], LotID: destLot}}))
	require.NoError(t, repo.Save(ctx, shipped))

	partial, err := repo.FindByID(ctx, tenant, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusPartiallyReceived, partial.Status)
	itemA, _ := partial.ItemByProduct(productA)
	require.Len(t, itemA.Receipts, 1)
	assert.Equal(t, destLot, itemA.Receipts[0].LotID)
	assert.Equal(t, int64(4), itemA.QtyReceived)
	require.Len(t, itemA.ShipmentBatches, 1, "saving again does not duplicate batches")
}

func TestGormTransferRepository_Errors(t *testing.T) {
	ctx := context.Background()
	repo := NewGormTransferRepository(testutil.NewSQLiteDB(t))
	tenant := testutil.TestTenantID()

	tr := newTestTransfer(t, tenant, uuid.New())
	require.NoError(t, repo.Create(ctx, tr))

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, tenant, uuid.New())
		assert.ErrorIs(t, err, transfer.ErrTransferNotFound)

		_, err = repo.FindByIDForUpdate(ctx, uuid.New(), tr.ID)
		assert.ErrorIs(t, err, transfer.ErrTransferNotFound)
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		a, err := repo.FindByID(ctx, tenant, tr.ID)
		require.NoError(t, err)
		b, err := repo.FindByID(ctx, tenant, tr.ID)
		require.NoError(t, err)

		require.NoError(t, a.Approve(uuid.New(), nil, ""))
		require.NoError(t, repo.Save(ctx, a))

		require.NoError(t, b.Reject(uuid.New(), "no stock"))
		err = repo.Save(ctx, b)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("saving a missing transfer", func(t *testing.T) {
		ghost := newTestTransfer(t, tenant, uuid.New())
		assert.ErrorIs(t, repo.Save(ctx, ghost), transfer.ErrTransferNotFound)
	})

	t.Run("transfer number collision", func(t *testing.T) {
		dup := newTestTransfer(t, tenant, uuid.New())
		dup.TransferNumber = tr.TransferNumber
		assert.ErrorIs(t, repo.Create(ctx, dup), transfer.ErrTransferNumberTaken)
	})
}

func TestGormTransferRepository_ListKeyset(t *testing.T) {
	ctx := context.Background()
	repo := NewGormTransferRepository(testutil.NewSQLiteDB(t))
	tenant := testutil.TestTenantID()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var created []*transfer.Transfer
	for i := range 5 {
		tr := newTestTransfer(t, tenant, uuid.New())
		tr.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		tr.UpdatedAt = tr.CreatedAt
		if i == 4 {
			tr.Priority = transfer.PriorityUrgent
		}
		require.NoError(t, repo.Create(ctx, tr))
		created = append(created, tr)
	}
	require.NoError(t, repo.Create(ctx, newTestTransfer(t, uuid.New(), uuid.New())))

	first, err := repo.List(ctx, transfer.ListFilter{TenantID: tenant, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 3, "one extra row signals another page")
	assert.Equal(t, created[4].ID, first[0].ID)
	assert.Equal(t, created[3].ID, first[1].ID)

	cursor := &shared.Cursor{SortValue: first[1].CreatedAt, ID: first[1].ID}
	second, err := repo.List(ctx, transfer.ListFilter{TenantID: tenant, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, created[2].ID, second[0].ID)
	assert.Equal(t, created[1].ID, second[1].ID)
	assert.Len(t, second[0].Items, 1)

	asc, err := repo.List(ctx, transfer.ListFilter{
		TenantID:  tenant,
		Ascending: true,
		Cursor:    &shared.Cursor{SortValue: created[2].CreatedAt, ID: created[2].ID},
	})
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Equal(t, created[3].ID, asc[0].ID)

	urgent := transfer.PriorityUrgent
	byPriority, err := repo.List(ctx, transfer.ListFilter{TenantID: tenant, Priority: &urgent})
	require.NoError(t, err)
	require.Len(t, byPriority, 1)
	assert.Equal(t, created[4].ID, byPriority[0].ID)

	branch := created[0].DestinationBranchID
	byBranch, err := repo.List(ctx, transfer.ListFilter{TenantID: tenant, BranchID: &branch})
	require.NoError(t, err)
	require.Len(t, byBranch, 1)

	requested, err := repo.List(ctx, transfer.ListFilter{TenantID: tenant, Statuses: []transfer.Status{transfer.StatusApproved}})
	require.NoError(t, err)
	assert.Empty(t, requested)
}
