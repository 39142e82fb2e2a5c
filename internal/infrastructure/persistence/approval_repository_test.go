package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRule(t *testing.T, tenantID uuid.UUID, name string, priority int, mode approval.Mode, approvers ...approval.Approver) *approval.Rule {
	t.Helper()
	levels := make([]approval.LevelSpec, 0, len(approvers))
	for i, a := range approvers {
		levels = append(levels, approval.LevelSpec{Name: fmt.Sprintf("Level %d", i+1), Approver: a})
	}
	rule, err := approval.NewRule(tenantID, approval.RuleParams{
		Name:     name,
		Mode:     mode,
		Priority: priority,
		IsActive: true,
		Conditions: []approval.Condition{
			{Type: approval.ConditionTotalQtyThreshold, Threshold: testutil.Int64(100)},
		},
		Levels: levels,
	})
	require.NoError(t, err)
	return rule
}

func TestGormRuleRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRuleRepository(testutil.NewSQLiteDB(t))
	tenant := testutil.TestTenantID()
	manager := approval.RoleApprover{RoleID: uuid.New()}
	director := approval.UserApprover{UserID: uuid.New()}

	low := newTestRule(t, tenant, "low", 1, approval.ModeSequential, manager)
	high := newTestRule(t, tenant, "high", 10, approval.ModeHybrid, manager, director)
	inactive := newTestRule(t, tenant, "inactive", 50, approval.ModeParallel, director)
	inactive.IsActive = false
	for _, r := range []*approval.Rule{low, high, inactive} {
		require.NoError(t, repo.Create(ctx, r))
	}

	t.Run("find by id restores levels and approvers", func(t *testing.T) {
		got, err := repo.FindByID(ctx, tenant, high.ID)
		require.NoError(t, err)
		assert.Equal(t, approval.ModeHybrid, got.Mode)
		require.Len(t, got.Levels, 2)
		assert.Equal(t, 1, got.Levels[0].Level)
		assert.Equal(t, manager, got.Levels[0].Approver)
		assert.Equal(t, director, got.Levels[1].Approver)
		require.Len(t, got.Conditions, 1)
		require.NotNil(t, got.Conditions[0].Threshold)
		assert.Equal(t, int64(100), *got.Conditions[0].Threshold)
	})

	t.Run("active rules by priority", func(t *testing.T) {
		active, err := repo.FindActive(ctx, tenant)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, high.ID, active[0].ID)
		assert.Equal(t, low.ID, active[1].ID)
	})

	t.Run("save replaces levels", func(t *testing.T) {
		got, err := repo.FindByID(ctx, tenant, low.ID)
		require.NoError(t, err)
		require.NoError(t, got.Update(approval.RuleParams{
			Name:     "low renamed",
			Mode:     approval.ModeParallel,
			Priority: 20,
			IsActive: true,
			Levels: []approval.LevelSpec{
				{Name: "Ops", Approver: director},
				{Name: "Finance", Approver: manager},
			},
		}))
		require.NoError(t, repo.Save(ctx, got))

		reloaded, err := repo.FindByID(ctx, tenant, low.ID)
		require.NoError(t, err)
		assert.Equal(t, "low renamed", reloaded.Name)
		assert.Equal(t, 2, reloaded.Version)
		assert.Empty(t, reloaded.Conditions)
		require.Len(t, reloaded.Levels, 2)
		assert.Equal(t, "Ops", reloaded.Levels[0].Name)

		active, err := repo.FindActive(ctx, tenant)
		require.NoError(t, err)
		assert.Equal(t, low.ID, active[0].ID, "raised priority moves the rule first")

		got.Version = 1
		assert.ErrorIs(t, repo.Save(ctx, got), shared.ErrConcurrencyConflict)
	})

	t.Run("archived rules are hidden unless requested", func(t *testing.T) {
		got, err := repo.FindByID(ctx, tenant, inactive.ID)
		require.NoError(t, err)
		require.NoError(t, got.Archive())
		require.NoError(t, repo.Save(ctx, got))

		visible, err := repo.List(ctx, tenant, false)
		require.NoError(t, err)
		assert.Len(t, visible, 2)

		all, err := repo.List(ctx, tenant, true)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("unknown rule", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New(), high.ID)
		assert.ErrorIs(t, err, approval.ErrRuleNotFound)

		ghost := newTestRule(t, tenant, "ghost", 0, approval.ModeSequential, manager)
		assert.ErrorIs(t, repo.Save(ctx, ghost), approval.ErrRuleNotFound)
	})
}

func TestGormApprovalRecordRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormApprovalRecordRepository(testutil.NewSQLiteDB(t))
	tenant := testutil.TestTenantID()
	approver := shared.Actor{ID: uuid.New(), TenantID: tenant}

	rule := newTestRule(t, tenant, "two step", 1, approval.ModeSequential,
		approval.UserApprover{UserID: approver.ID}, approval.UserApprover{UserID: approver.ID})
	transferID := uuid.New()
	require.NoError(t, repo.CreateBatch(ctx, approval.NewRecords(rule, transferID)))
	require.NoError(t, repo.CreateBatch(ctx, nil))

	records, err := repo.FindByTransfer(ctx, tenant, transferID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Level)
	assert.Equal(t, approval.StatusPending, records[1].Status)
	assert.Equal(t, approval.UserApprover{UserID: approver.ID}, records[0].Approver)

	first := records[0]
	require.NoError(t, approval.Decide(first, records, approver, true, "fine", time.Now()))
	require.NoError(t, repo.Transition(ctx, first))

	t.Run("second writer loses", func(t *testing.T) {
		stale, err := repo.FindByTransfer(ctx, tenant, transferID)
		require.NoError(t, err)
		rec := stale[0]
		rec.Status = approval.StatusRejected
		assert.ErrorIs(t, repo.Transition(ctx, rec), approval.ErrNotPending)
	})

	t.Run("unknown record", func(t *testing.T) {
		ghost := *first
		ghost.ID = uuid.New()
		assert.ErrorIs(t, repo.Transition(ctx, &ghost), approval.ErrRecordNotFound)
	})

	reloaded, err := repo.FindByTransfer(ctx, tenant, transferID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, reloaded[0].Status)
	require.NotNil(t, reloaded[0].ActedByActorID)
	assert.Equal(t, approver.ID, *reloaded[0].ActedByActorID)
	assert.Equal(t, "fine", reloaded[0].Notes)
	assert.True(t, approval.CanAct(reloaded[1], reloaded, approver))
}
