package handler

import (
	"net/http"
	"testing"

	approvalapp "github.com/erp/stockflow/internal/application/approval"
	transferapp "github.com/erp/stockflow/internal/application/transfer"
	"github.com/erp/stockflow/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (api *testAPI) createRule(t *testing.T, approvers ...uuid.UUID) approvalapp.RuleResponse {
	t.Helper()
	req := approvalapp.CreateRuleRequest{
		Name: "Large transfers",
		Mode: "SEQUENTIAL",
		Conditions: []approvalapp.ConditionRequest{
			{Type: "TOTAL_QTY_THRESHOLD", Threshold: ptr(int64(1))},
		},
	}
	for i, id := range approvers {
		req.Levels = append(req.Levels, approvalapp.LevelRequest{
			Name: "Level " + string(rune('A'+i)), ApproverType: "USER", ApproverID: id,
		})
	}
	w := api.do(t, call{method: http.MethodPost, path: "/approval-rules", actor: &api.admin, body: req})
	return decodeData[approvalapp.RuleResponse](t, w, http.StatusCreated)
}

func TestApprovalRuleHandler_CRUD(t *testing.T) {
	api := newTestAPI(t)
	rule := api.createRule(t, api.receiver.ID, api.admin.ID)
	require.Len(t, rule.Levels, 2)
	path := "/approval-rules/" + rule.ID.String()

	got := decodeData[approvalapp.RuleResponse](t, api.do(t, call{method: http.MethodGet, path: path, actor: &api.admin}), http.StatusOK)
	assert.Equal(t, rule.Name, got.Name)

	reordered := decodeData[approvalapp.RuleResponse](t,
		api.do(t, call{method: http.MethodPut, path: path + "/levels/order", actor: &api.admin, body: approvalapp.ReorderLevelsRequest{
			LevelIDs: []uuid.UUID{rule.Levels[1].ID, rule.Levels[0].ID}, Version: rule.Version,
		}}),
		http.StatusOK)
	assert.Equal(t, rule.Levels[1].ID, reordered.Levels[0].ID)
	assert.Equal(t, 1, reordered.Levels[0].Level)

	stale := api.do(t, call{method: http.MethodPut, path: path + "/levels/order", actor: &api.admin, body: approvalapp.ReorderLevelsRequest{
		LevelIDs: []uuid.UUID{rule.Levels[0].ID, rule.Levels[1].ID}, Version: rule.Version,
	}})
	errorCode(t, stale, http.StatusConflict)

	update := approvalapp.UpdateRuleRequest{
		CreateRuleRequest: approvalapp.CreateRuleRequest{
			Name:   "Renamed",
			Mode:   "PARALLEL",
			Levels: []approvalapp.LevelRequest{{Name: "Only", ApproverType: "USER", ApproverID: api.receiver.ID}},
		},
		Version: reordered.Version,
	}
	updated := decodeData[approvalapp.RuleResponse](t, api.do(t, call{method: http.MethodPut, path: path, actor: &api.admin, body: update}), http.StatusOK)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "PARALLEL", updated.Mode)
	assert.Len(t, updated.Levels, 1)

	archived := decodeData[approvalapp.RuleResponse](t, api.do(t, call{method: http.MethodPost, path: path + "/archive", actor: &api.admin}), http.StatusOK)
	assert.True(t, archived.IsArchived)

	active := decodeData[[]approvalapp.RuleResponse](t, api.do(t, call{method: http.MethodGet, path: "/approval-rules", actor: &api.admin}), http.StatusOK)
	assert.Empty(t, active)
	all := decodeData[[]approvalapp.RuleResponse](t, api.do(t, call{method: http.MethodGet, path: "/approval-rules?include_archived=true", actor: &api.admin}), http.StatusOK)
	assert.Len(t, all, 1)
}

func TestApprovalRuleHandler_RequiresManagePermission(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, call{method: http.MethodGet, path: "/approval-rules", actor: &api.sender})
	errorCode(t, w, http.StatusForbidden)
}

func TestApprovalRuleHandler_Validation(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, call{method: http.MethodPost, path: "/approval-rules", actor: &api.admin, body: map[string]any{
		"name": "No levels", "mode": "SEQUENTIAL", "levels": []any{},
	}})
	assert.Equal(t, dto.ErrCodeValidation, errorCode(t, w, http.StatusBadRequest))

	w = api.do(t, call{method: http.MethodPost, path: "/approval-rules", actor: &api.admin, body: map[string]any{
		"name": "Bad mode", "mode": "RANDOM",
		"levels": []map[string]any{{"name": "L1", "approver_type": "USER", "approver_id": uuid.NewString()}},
	}})
	assert.Equal(t, dto.ErrCodeValidation, errorCode(t, w, http.StatusBadRequest))
}

func TestTransferHandler_MultiLevelApproval(t *testing.T) {
	api := newTestAPI(t)
	api.receive(t, 10, 100)
	api.createRule(t, api.receiver.ID)

	created := api.createTransfer(t, 3)
	require.True(t, created.RequiresMultiLevelApproval)
	path := "/transfers/" + created.ID.String() + "/approvals"

	progress := decodeData[transferapp.ApprovalProgressResponse](t, api.do(t, call{method: http.MethodGet, path: path, actor: &api.sender}), http.StatusOK)
	assert.Equal(t, 1, progress.Pending)
	assert.False(t, progress.Satisfied)

	// Only the configured approver may decide the level.
	w := api.do(t, call{method: http.MethodPost, path: path + "/1", actor: &api.sender, body: transferapp.SubmitApprovalRequest{Approve: true}})
	errorCode(t, w, http.StatusForbidden)

	progress = decodeData[transferapp.ApprovalProgressResponse](t,
		api.do(t, call{method: http.MethodPost, path: path + "/1", actor: &api.receiver, key: "approve-1",
			body: transferapp.SubmitApprovalRequest{Approve: true, Notes: "ok"}}),
		http.StatusOK)
	assert.Equal(t, 1, progress.Approved)
	assert.True(t, progress.Satisfied)

	replay := decodeData[transferapp.ApprovalProgressResponse](t,
		api.do(t, call{method: http.MethodPost, path: path + "/1", actor: &api.receiver, key: "approve-1",
			body: transferapp.SubmitApprovalRequest{Approve: true, Notes: "ok"}}),
		http.StatusOK)
	assert.Equal(t, progress, replay)

	w = api.do(t, call{method: http.MethodPost, path: path + "/1", actor: &api.receiver, body: transferapp.SubmitApprovalRequest{Approve: true}})
	errorCode(t, w, http.StatusConflict)
}
