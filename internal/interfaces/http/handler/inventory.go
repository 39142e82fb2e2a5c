package handler

import (
	"context"

	inventoryapp "github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// LedgerService is the inventory ledger as used by the HTTP layer
type LedgerService interface {
	ReceiveStock(ctx context.Context, actor shared.Actor, req inventoryapp.ReceiveStockRequest) (*inventoryapp.StockMovementResponse, error)
	ConsumeStock(ctx context.Context, actor shared.Actor, req inventoryapp.ConsumeStockRequest) (*inventoryapp.StockMovementResponse, error)
	AdjustStock(ctx context.Context, actor shared.Actor, req inventoryapp.AdjustStockRequest) (*inventoryapp.StockMovementResponse, error)
	GetStockLevels(ctx context.Context, actor shared.Actor, filter inventoryapp.StockLevelFilter) ([]inventoryapp.StockLevelResponse, error)
	ListLots(ctx context.Context, actor shared.Actor, filter inventoryapp.LotFilter) ([]inventoryapp.LotResponse, error)
	ListLedgerEntries(ctx context.Context, actor shared.Actor, filter inventoryapp.LedgerEntryFilter) ([]inventoryapp.LedgerEntryResponse, error)
}

var _ LedgerService = (*inventoryapp.LedgerService)(nil)

// InventoryHandler handles the stock ledger endpoints
type InventoryHandler struct {
	BaseHandler
	ledger LedgerService
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(ledger LedgerService) *InventoryHandler {
	return &InventoryHandler{ledger: ledger}
}

// Receive godoc
// @ID           receiveStock
// @Summary      Receive stock
// @Description  Opens a new lot at the branch and raises its on-hand quantity
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                            false  "Idempotency key"
// @Param        request          body    inventoryapp.ReceiveStockRequest  true   "Receipt"
// @Success      201  {object}  APIResponse[inventoryapp.StockMovementResponse]
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/receipts [post]
func (h *InventoryHandler) Receive(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req inventoryapp.ReceiveStockRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	resp, err := h.ledger.ReceiveStock(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Consume godoc
// @ID           consumeStock
// @Summary      Consume stock
// @Description  Draws the quantity from the branch's lots, oldest first
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                            false  "Idempotency key"
// @Param        request          body    inventoryapp.ConsumeStockRequest  true   "Consumption"
// @Success      200  {object}  APIResponse[inventoryapp.StockMovementResponse]
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/consumptions [post]
func (h *InventoryHandler) Consume(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req inventoryapp.ConsumeStockRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	resp, err := h.ledger.ConsumeStock(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Adjust godoc
// @ID           adjustStock
// @Summary      Adjust stock
// @Description  Applies a signed correction; positive deltas open a lot, negative ones drain lots FIFO
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                           false  "Idempotency key"
// @Param        request          body    inventoryapp.AdjustStockRequest  true   "Adjustment"
// @Success      200  {object}  APIResponse[inventoryapp.StockMovementResponse]
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/adjustments [post]
func (h *InventoryHandler) Adjust(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req inventoryapp.AdjustStockRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	resp, err := h.ledger.AdjustStock(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Levels godoc
// @ID           listStockLevels
// @Summary      List stock levels
// @Tags         inventory
// @Produce      json
// @Param        branch_id   query  string  true   "Branch ID"
// @Param        product_id  query  string  false  "Product ID"
// @Success      200  {object}  APIResponse[[]inventoryapp.StockLevelResponse]
// @Security     BearerAuth
// @Router       /inventory/levels [get]
func (h *InventoryHandler) Levels(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var filter inventoryapp.StockLevelFilter
	if !bindQuery(c, &filter) {
		return
	}

	levels, err := h.ledger.GetStockLevels(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, levels)
}

// Lots godoc
// @ID           listStockLots
// @Summary      List stock lots in FIFO order
// @Tags         inventory
// @Produce      json
// @Param        branch_id   query  string  true   "Branch ID"
// @Param        product_id  query  string  false  "Product ID"
// @Param        open_only   query  bool    false  "Only lots with remaining quantity"
// @Param        limit       query  int     false  "Maximum lots"
// @Success      200  {object}  APIResponse[[]inventoryapp.LotResponse]
// @Security     BearerAuth
// @Router       /inventory/lots [get]
func (h *InventoryHandler) Lots(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var filter inventoryapp.LotFilter
	if !bindQuery(c, &filter) {
		return
	}

	lots, err := h.ledger.ListLots(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, lots)
}

// Ledger godoc
// @ID           listLedgerEntries
// @Summary      List ledger entries, newest first
// @Tags         inventory
// @Produce      json
// @Param        branch_id   query  string  true   "Branch ID"
// @Param        product_id  query  string  false  "Product ID"
// @Param        lot_id      query  string  false  "Lot ID"
// @Param        limit       query  int     false  "Maximum entries"
// @Success      200  {object}  APIResponse[[]inventoryapp.LedgerEntryResponse]
// @Security     BearerAuth
// @Router       /inventory/ledger [get]
func (h *InventoryHandler) Ledger(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var filter inventoryapp.LedgerEntryFilter
	if !bindQuery(c, &filter) {
		return
	}

	entries, err := h.ledger.ListLedgerEntries(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}
