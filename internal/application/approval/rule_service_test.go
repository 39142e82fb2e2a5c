package approval_test

import (
	"context"
	"testing"

	approvalapp "github.com/erp/stockflow/internal/application/approval"
	"github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRuleService(t *testing.T) (*approvalapp.RuleService, *testutil.Access, *testutil.AuditLog, shared.Actor) {
	t.Helper()
	store := testutil.NewStore()
	access := testutil.NewAccess()
	audit := &testutil.AuditLog{}
	admin := shared.Actor{ID: uuid.New(), TenantID: testutil.TestTenantID()}
	access.Grant(admin.ID, inventory.PermApprovalRuleManage)

	exec := inventory.NewExecutor(store, zaptest.NewLogger(t))
	exec.SetAuditSink(audit)
	svc := approvalapp.NewRuleService(exec, inventory.NewGuard(access, testutil.NewCatalog()), store.Repos().Rules())
	return svc, access, audit, admin
}

func ruleRequest(name string, priority int, levels ...string) approvalapp.CreateRuleRequest {
	req := approvalapp.CreateRuleRequest{
		Name:     name,
		Mode:     "SEQUENTIAL",
		Priority: priority,
		Conditions: []approvalapp.ConditionRequest{
			{Type: "TOTAL_QTY_THRESHOLD", Threshold: testutil.Int64(100)},
		},
	}
	for _, l := range levels {
		req.Levels = append(req.Levels, approvalapp.LevelRequest{Name: l, ApproverType: "ROLE", ApproverID: uuid.New()})
	}
	return req
}

func TestRuleService_CreateRule(t *testing.T) {
	svc, _, audit, admin := newRuleService(t)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, admin, ruleRequest("bulk", 10, "Manager", "Director"))
	require.NoError(t, err)
	assert.True(t, rule.IsActive, "rules are active unless stated otherwise")
	assert.Equal(t, 1, rule.Version)
	require.Len(t, rule.Levels, 2)
	assert.Equal(t, 1, rule.Levels[0].Level)
	assert.Equal(t, "Manager", rule.Levels[0].Name)
	assert.Equal(t, "ROLE", rule.Levels[0].ApproverType)
	assert.Equal(t, 2, rule.Levels[1].Level)
	assert.Equal(t, []string{approvalapp.AuditActionCreate}, audit.Actions())

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			req  approvalapp.CreateRuleRequest
		}{
			{"no levels", ruleRequest("empty", 1)},
			{"bad mode", func() approvalapp.CreateRuleRequest {
				r := ruleRequest("mode", 1, "L1")
				r.Mode = "ROUND_ROBIN"
				return r
			}()},
			{"branch condition without branch", func() approvalapp.CreateRuleRequest {
				r := ruleRequest("branch", 1, "L1")
				r.Conditions = []approvalapp.ConditionRequest{{Type: "SOURCE_BRANCH"}}
				return r
			}()},
			{"negative threshold", func() approvalapp.CreateRuleRequest {
				r := ruleRequest("threshold", 1, "L1")
				r.Conditions[0].Threshold = testutil.Int64(-1)
				return r
			}()},
			{"approver without id", func() approvalapp.CreateRuleRequest {
				r := ruleRequest("approver", 1, "L1")
				r.Levels[0].ApproverID = uuid.Nil
				return r
			}()},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.CreateRule(ctx, admin, tt.req)
				assert.True(t, shared.IsKind(err, shared.KindValidation), "got %v", err)
			})
		}
	})

	t.Run("requires manage permission", func(t *testing.T) {
		_, err := svc.CreateRule(ctx, shared.Actor{ID: uuid.New(), TenantID: admin.TenantID}, ruleRequest("x", 1, "L1"))
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})
}

func TestRuleService_UpdateRule(t *testing.T) {
	svc, _, _, admin := newRuleService(t)
	ctx := context.Background()
	rule, err := svc.CreateRule(ctx, admin, ruleRequest("bulk", 10, "Manager"))
	require.NoError(t, err)

	inactive := false
	update := approvalapp.UpdateRuleRequest{CreateRuleRequest: ruleRequest("bulk v2", 20, "Lead", "Manager", "Director"), Version: rule.Version}
	update.Mode = "HYBRID"
	update.IsActive = &inactive

	updated, err := svc.UpdateRule(ctx, admin, rule.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "bulk v2", updated.Name)
	assert.Equal(t, "HYBRID", updated.Mode)
	assert.False(t, updated.IsActive)
	assert.Len(t, updated.Levels, 3)
	assert.Equal(t, 2, updated.Version)

	_, err = svc.UpdateRule(ctx, admin, rule.ID, update)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict, "stale version")

	_, err = svc.UpdateRule(ctx, admin, uuid.New(), update)
	assert.ErrorIs(t, err, approval.ErrRuleNotFound)
}

func TestRuleService_ReorderLevels(t *testing.T) {
	svc, _, _, admin := newRuleService(t)
	ctx := context.Background()
	rule, err := svc.CreateRule(ctx, admin, ruleRequest("bulk", 10, "Manager", "Director", "CFO"))
	require.NoError(t, err)
	ids := []uuid.UUID{rule.Levels[2].ID, rule.Levels[0].ID, rule.Levels[1].ID}

	t.Run("must list every level once", func(t *testing.T) {
		_, err := svc.ReorderLevels(ctx, admin, rule.ID, approvalapp.ReorderLevelsRequest{LevelIDs: ids[:2], Version: rule.Version})
		assert.ErrorIs(t, err, approval.ErrInvalidReorder)
		_, err = svc.ReorderLevels(ctx, admin, rule.ID, approvalapp.ReorderLevelsRequest{LevelIDs: []uuid.UUID{ids[0], ids[0], ids[1]}, Version: rule.Version})
		assert.ErrorIs(t, err, approval.ErrInvalidReorder)
	})

	reordered, err := svc.ReorderLevels(ctx, admin, rule.ID, approvalapp.ReorderLevelsRequest{LevelIDs: ids, Version: rule.Version})
	require.NoError(t, err)
	names := []string{}
	for i, l := range reordered.Levels {
		assert.Equal(t, i+1, l.Level)
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"CFO", "Manager", "Director"}, names)
}

func TestRuleService_ArchiveAndList(t *testing.T) {
	svc, _, audit, admin := newRuleService(t)
	ctx := context.Background()
	low, err := svc.CreateRule(ctx, admin, ruleRequest("low", 1, "L1"))
	require.NoError(t, err)
	high, err := svc.CreateRule(ctx, admin, ruleRequest("high", 50, "L1"))
	require.NoError(t, err)

	rules, err := svc.ListRules(ctx, admin, approvalapp.ListRulesFilter{})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, high.ID, rules[0].ID, "higher priority first")

	archived, err := svc.ArchiveRule(ctx, admin, low.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)
	assert.False(t, archived.IsActive)

	_, err = svc.ArchiveRule(ctx, admin, low.ID)
	assert.ErrorIs(t, err, approval.ErrRuleArchived)

	_, err = svc.UpdateRule(ctx, admin, low.ID, approvalapp.UpdateRuleRequest{CreateRuleRequest: ruleRequest("low", 1, "L1"), Version: archived.Version})
	assert.ErrorIs(t, err, approval.ErrRuleArchived)

	rules, err = svc.ListRules(ctx, admin, approvalapp.ListRulesFilter{})
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	rules, err = svc.ListRules(ctx, admin, approvalapp.ListRulesFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	got, err := svc.GetRule(ctx, admin, low.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchived)

	assert.Equal(t, []string{
		approvalapp.AuditActionCreate,
		approvalapp.AuditActionCreate,
		approvalapp.AuditActionArchive,
	}, audit.Actions())
}
