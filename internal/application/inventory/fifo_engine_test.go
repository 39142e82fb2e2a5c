package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runEngine(t *testing.T, store *testutil.Store, fn func(e *inventory.FIFOEngine) error) (*inventory.Effects, error) {
	t.Helper()
	fx := &inventory.Effects{}
	err := store.Execute(context.Background(), func(repos inventory.TransactionalRepositories) error {
		return fn(inventory.NewFIFOEngine(repos, fx))
	})
	return fx, err
}

func TestFIFOEngine_RestoreLots(t *testing.T) {
	store := testutil.NewStore()
	ctx := context.Background()
	tenant, branch := testutil.TestTenantID(), uuid.New()
	productA, productB := uuid.New(), uuid.New()
	ec := ledger.EntryContext{TenantID: tenant, ActorID: uuid.New(), Reason: "test"}

	var lotA, lotB *ledger.StockLot
	_, err := runEngine(t, store, func(e *inventory.FIFOEngine) error {
		a, err := e.Receive(ctx, ec, branch, productA, 10, testutil.Int64(100), ledger.EntryKindReceipt)
		if err != nil {
			return err
		}
		b, err := e.Receive(ctx, ec, branch, productB, 10, testutil.Int64(300), ledger.EntryKindReceipt)
		if err != nil {
			return err
		}
		lotA, lotB = a.Lot, b.Lot
		if _, err := e.Consume(ctx, ec, branch, productA, 6, ledger.EntryKindConsumption); err != nil {
			return err
		}
		_, err = e.Consume(ctx, ec, branch, productB, 4, ledger.EntryKindConsumption)
		return err
	})
	require.NoError(t, err)

	t.Run("restores exact lots across products", func(t *testing.T) {
		var movements []*inventory.Movement
		fx, err := runEngine(t, store, func(e *inventory.FIFOEngine) error {
			var err error
			movements, err = e.RestoreLots(ctx, ec, branch, []ledger.LotDraw{
				{LotID: lotB.ID, Qty: 4},
				{LotID: lotA.ID, Qty: 2},
				{LotID: lotA.ID, Qty: 4},
			})
			return err
		})
		require.NoError(t, err)
		require.Len(t, movements, 2)
		assert.Equal(t, int64(10), store.Lot(lotA.ID).QtyRemaining)
		assert.Equal(t, int64(10), store.Lot(lotB.ID).QtyRemaining)
		for _, ev := range fx.Events() {
			assert.Equal(t, ledger.EventTypeLotsRestored, ev.EventType())
		}
		for _, p := range []uuid.UUID{productA, productB} {
			onHand, lotSum := store.OnHandAndLotSum(tenant, branch, p)
			assert.Equal(t, int64(10), onHand)
			assert.Equal(t, onHand, lotSum)
		}
	})

	t.Run("never restores beyond the received quantity", func(t *testing.T) {
		_, err := runEngine(t, store, func(e *inventory.FIFOEngine) error {
			_, err := e.RestoreLots(ctx, ec, branch, []ledger.LotDraw{{LotID: lotA.ID, Qty: 1}})
			return err
		})
		assert.ErrorIs(t, err, ledger.ErrLotOverRestore)
		assert.True(t, shared.IsKind(err, shared.KindConflict))
	})

	t.Run("rejects lots of another branch", func(t *testing.T) {
		_, err := runEngine(t, store, func(e *inventory.FIFOEngine) error {
			_, err := e.RestoreLots(ctx, ec, uuid.New(), []ledger.LotDraw{{LotID: lotA.ID, Qty: 1}})
			return err
		})
		assert.ErrorIs(t, err, ledger.ErrLotScopeMismatch)
	})
}

func TestFIFOEngine_DrawBack(t *testing.T) {
	store := testutil.NewStore()
	ctx := context.Background()
	tenant, branch, product := testutil.TestTenantID(), uuid.New(), uuid.New()
	ec := ledger.EntryContext{TenantID: tenant, ActorID: uuid.New(), OccurredAt: time.Now()}

	var older, newer *ledger.StockLot
	_, err := runEngine(t, store, func(e *inventory.FIFOEngine) error {
		a, err := e.Receive(ctx, ec, branch, product, 5, nil, ledger.EntryKindReceipt)
		if err != nil {
			return err
		}
		b, err := e.Receive(ctx, ec, branch, product, 5, testutil.Int64(10), ledger.EntryKindReceipt)
		older, newer = a.Lot, b.Lot
		return err
	})
	require.NoError(t, err)

	t.Run("takes from the named lot, not the oldest", func(t *testing.T) {
		_, err := runEngine(t, store, func(e *inventory.FIFOEngine) error {
			m, err := e.DrawBack(ctx, ec, branch, product, []ledger.LotDraw{{LotID: newer.ID, Qty: 3}})
			if err == nil {
				assert.Equal(t, int64(7), m.Level.QtyOnHand)
			}
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), store.Lot(older.ID).QtyRemaining)
		assert.Equal(t, int64(2), store.Lot(newer.ID).QtyRemaining)
	})

	t.Run("fails when the lot no longer holds the quantity", func(t *testing.T) {
		_, err := runEngine(t, store, func(e *inventory.FIFOEngine) error {
			_, err := e.DrawBack(ctx, ec, branch, product, []ledger.LotDraw{{LotID: newer.ID, Qty: 3}})
			return err
		})
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
		assert.Equal(t, int64(2), store.Lot(newer.ID).QtyRemaining)
	})
}

func TestFIFOEngine_WeightedAverageCost(t *testing.T) {
	e := inventory.NewFIFOEngine(nil, nil)
	cost := e.WeightedAverageCost([]ledger.LotDraw{
		{Qty: 10, UnitCost: testutil.Int64(100)},
		{Qty: 20, UnitCost: testutil.Int64(151)},
		{Qty: 99},
	})
	// (1000 + 3020) / 30 = 134
	assert.Equal(t, int64(134), cost)
}
