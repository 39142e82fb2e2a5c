package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	approvalapp "github.com/erp/stockflow/internal/application/approval"
	"github.com/erp/stockflow/internal/application/inventory"
	transferapp "github.com/erp/stockflow/internal/application/transfer"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/interfaces/http/middleware"
	"github.com/erp/stockflow/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testActorHeader = "X-Test-Actor"

// testAPI serves the handlers over an in-memory store. Requests choose
// their actor through testActorHeader; without it no actor is set.
type testAPI struct {
	engine  *gin.Engine
	access  *testutil.Access
	catalog *testutil.Catalog
	actors  map[string]shared.Actor

	sender   shared.Actor
	receiver shared.Actor
	admin    shared.Actor
	source   uuid.UUID
	dest     uuid.UUID
	product  uuid.UUID
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	require.NoError(t, middleware.SetupValidator())

	tenant := testutil.TestTenantID()
	api := &testAPI{
		access:   testutil.NewAccess(),
		catalog:  testutil.NewCatalog(),
		actors:   map[string]shared.Actor{},
		sender:   shared.Actor{ID: uuid.New(), TenantID: tenant},
		receiver: shared.Actor{ID: uuid.New(), TenantID: tenant},
		admin:    shared.Actor{ID: uuid.New(), TenantID: tenant},
		source:   uuid.New(),
		dest:     uuid.New(),
		product:  uuid.New(),
	}
	for _, a := range []shared.Actor{api.sender, api.receiver, api.admin} {
		api.actors[a.ID.String()] = a
	}
	api.access.Grant(api.sender.ID,
		inventory.PermInventoryReceive, inventory.PermInventoryConsume,
		inventory.PermInventoryAdjust, inventory.PermInventoryView,
	).Join(api.sender.ID, api.source)
	api.access.Grant(api.receiver.ID, inventory.PermInventoryView, inventory.PermTransferView).
		Join(api.receiver.ID, api.dest)
	api.access.Grant(api.admin.ID, inventory.PermApprovalRuleManage)
	api.catalog.Add(api.product, 250)

	store := testutil.NewStore()
	exec := inventory.NewExecutor(store, zaptest.NewLogger(t))
	audit := &testutil.AuditLog{}
	exec.SetAuditSink(audit)
	guard := inventory.NewGuard(api.access, api.catalog)
	repos := store.Repos()

	inventoryHandler := NewInventoryHandler(inventory.NewLedgerService(exec, guard, repos.Lots(), repos.Entries(), repos.Levels()))
	transferHandler := NewTransferHandler(transferapp.NewTransferService(exec, guard, repos.Transfers(), repos.Approvals(), audit))
	ruleHandler := NewApprovalRuleHandler(approvalapp.NewRuleService(exec, guard, repos.Rules()))

	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		if actor, ok := api.actors[c.GetHeader(testActorHeader)]; ok {
			c.Set(middleware.ActorKey, actor)
		}
		c.Next()
	})
	v1 := r.Group("/api/v1")
	v1.POST("/inventory/receipts", inventoryHandler.Receive)
	v1.POST("/inventory/consumptions", inventoryHandler.Consume)
	v1.POST("/inventory/adjustments", inventoryHandler.Adjust)
	v1.GET("/inventory/levels", inventoryHandler.Levels)
	v1.GET("/inventory/lots", inventoryHandler.Lots)
	v1.GET("/inventory/ledger", inventoryHandler.Ledger)

	v1.POST("/transfers", transferHandler.Create)
	v1.GET("/transfers", transferHandler.List)
	v1.GET("/transfers/:id", transferHandler.Get)
	v1.POST("/transfers/:id/review", transferHandler.Review)
	v1.POST("/transfers/:id/ship", transferHandler.Ship)
	v1.POST("/transfers/:id/receive", transferHandler.Receive)
	v1.POST("/transfers/:id/cancel", transferHandler.Cancel)
	v1.POST("/transfers/:id/reverse", transferHandler.Reverse)
	v1.GET("/transfers/:id/approvals", transferHandler.Approvals)
	v1.POST("/transfers/:id/approvals/:level", transferHandler.SubmitApproval)
	v1.GET("/transfers/:id/audit", transferHandler.Audit)

	v1.POST("/approval-rules", ruleHandler.Create)
	v1.GET("/approval-rules", ruleHandler.List)
	v1.GET("/approval-rules/:id", ruleHandler.Get)
	v1.PUT("/approval-rules/:id", ruleHandler.Update)
	v1.POST("/approval-rules/:id/archive", ruleHandler.Archive)
	v1.PUT("/approval-rules/:id/levels/order", ruleHandler.ReorderLevels)

	api.engine = r
	return api
}

type call struct {
	method string
	path   string
	body   any
	actor  *shared.Actor
	key    string
}

func (api *testAPI) do(t *testing.T, cl call) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	switch b := cl.body.(type) {
	case nil:
		body = bytes.NewReader(nil)
	case string:
		body = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(cl.method, "/api/v1"+cl.path, body)
	req.Header.Set("Content-Type", "application/json")
	if cl.actor != nil {
		req.Header.Set(testActorHeader, cl.actor.ID.String())
	}
	if cl.key != "" {
		req.Header.Set(IdempotencyKeyHeader, cl.key)
	}
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) APIResponse[json.RawMessage] {
	t.Helper()
	var env APIResponse[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

// decodeData asserts the status and decodes the data field into T
func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder, status int) T {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	var body APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	require.True(t, body.Success)
	return body.Data
}

// errorCode asserts the status and returns the error code
func errorCode(t *testing.T, w *httptest.ResponseRecorder, status int) string {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	require.False(t, body.Success)
	require.NotEmpty(t, body.Error.RequestID)
	require.NotEmpty(t, body.Error.Code)
	return body.Error.Code
}

func ptr[T any](v T) *T { return &v }
