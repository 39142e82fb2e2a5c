package handler

import (
	"context"

	inventoryapp "github.com/erp/stockflow/internal/application/inventory"
	transferapp "github.com/erp/stockflow/internal/application/transfer"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransferService is the transfer workflow as used by the HTTP layer
type TransferService interface {
	CreateTransfer(ctx context.Context, actor shared.Actor, req transferapp.CreateTransferRequest) (*transferapp.TransferResponse, error)
	ReviewTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req transferapp.ReviewTransferRequest) (*transferapp.TransferResponse, error)
	ShipTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req transferapp.ShipTransferRequest) (*transferapp.TransferResponse, error)
	ReceiveTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req transferapp.ReceiveTransferRequest) (*transferapp.TransferResponse, error)
	CancelTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req transferapp.CancelTransferRequest) (*transferapp.TransferResponse, error)
	ReverseTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, req transferapp.ReverseTransferRequest) (*transferapp.ReverseTransferResponse, error)
	GetTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID) (*transferapp.TransferResponse, error)
	ListTransfers(ctx context.Context, actor shared.Actor, req transferapp.ListTransfersRequest) (*transferapp.TransferPage, error)
	GetTransferAudit(ctx context.Context, actor shared.Actor, id uuid.UUID) ([]inventoryapp.AuditEvent, error)
	SubmitApproval(ctx context.Context, actor shared.Actor, id uuid.UUID, level int, req transferapp.SubmitApprovalRequest) (*transferapp.ApprovalProgressResponse, error)
	GetApprovalProgress(ctx context.Context, actor shared.Actor, id uuid.UUID) (*transferapp.ApprovalProgressResponse, error)
}

var _ TransferService = (*transferapp.TransferService)(nil)

// TransferHandler handles the inter-branch transfer endpoints
type TransferHandler struct {
	BaseHandler
	transfers TransferService
}

// NewTransferHandler creates a new TransferHandler
func NewTransferHandler(transfers TransferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

// Create godoc
// @ID           createTransfer
// @Summary      Request a stock transfer
// @Description  PUSH transfers are raised by the source branch, PULL transfers by the destination
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                             false  "Idempotency key"
// @Param        request          body    transferapp.CreateTransferRequest  true   "Transfer request"
// @Success      201  {object}  APIResponse[transferapp.TransferResponse]
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /transfers [post]
func (h *TransferHandler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transferapp.CreateTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	resp, err := h.transfers.CreateTransfer(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List godoc
// @ID           listTransfers
// @Summary      List transfers
// @Description  Keyset paginated; pass meta.next_cursor back as cursor for the next page
// @Tags         transfers
// @Produce      json
// @Param        status                 query  []string  false  "Status filter"  collectionFormat(multi)
// @Param        source_branch_id       query  string    false  "Source branch"
// @Param        destination_branch_id  query  string    false  "Destination branch"
// @Param        branch_id              query  string    false  "Either branch"
// @Param        priority               query  string    false  "Priority"
// @Param        created_from           query  string    false  "RFC3339 lower bound"
// @Param        created_to             query  string    false  "RFC3339 upper bound"
// @Param        sort_by                query  string    false  "created_at or updated_at"
// @Param        sort_dir               query  string    false  "asc or desc"
// @Param        cursor                 query  string    false  "Opaque cursor"
// @Param        limit                  query  int       false  "Page size"
// @Success      200  {object}  APIResponse[[]transferapp.TransferResponse]
// @Security     BearerAuth
// @Router       /transfers [get]
func (h *TransferHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transferapp.ListTransfersRequest
	if !bindQuery(c, &req) {
		return
	}

	page, err := h.transfers.ListTransfers(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Get godoc
// @ID           getTransfer
// @Summary      Get a transfer with items, batches and approvals
// @Tags         transfers
// @Produce      json
// @Param        id  path  string  true  "Transfer ID"
// @Success      200  {object}  APIResponse[transferapp.TransferResponse]
// @Failure      404  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /transfers/{id} [get]
func (h *TransferHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	resp, err := h.transfers.GetTransfer(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// transition runs one state change of the transfer named by the :id param
func transition[Req any, Resp any](
	h *TransferHandler,
	optionalBody bool,
	setKey func(*Req, string),
	call func(context.Context, shared.Actor, uuid.UUID, Req) (Resp, error),
) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := h.actor(c)
		if !ok {
			return
		}
		id, ok := h.pathUUID(c, "id")
		if !ok {
			return
		}
		bind := bindJSON
		if optionalBody {
			bind = bindOptionalJSON
		}
		var req Req
		if !bind(c, &req) {
			return
		}
		setKey(&req, idempotencyKey(c))

		resp, err := call(c.Request.Context(), actor, id, req)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, resp)
	}
}

// Review godoc
// @ID           reviewTransfer
// @Summary      Approve or reject a requested transfer
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Param        id               path    string                             true   "Transfer ID"
// @Param        Idempotency-Key  header  string                             false  "Idempotency key"
// @Param        request          body    transferapp.ReviewTransferRequest  true   "Review"
// @Success      200  {object}  APIResponse[transferapp.TransferResponse]
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /transfers/{id}/review [post]
func (h *TransferHandler) Review(c *gin.Context) {
	transition(h, false,
		func(r *transferapp.ReviewTransferRequest, key string) { r.IdempotencyKey = key },
		h.transfers.ReviewTransfer,
	)(c)
}

// Ship godoc
// @ID           shipTransfer
// @Summary      Ship approved quantities from the source branch
// @Description  Without items every remaining approved quantity ships
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Param        id               path    string                           true   "Transfer ID"
// @Param        Idempotency-Key  header  string                           false  "Idempotency key"
// @Param        request          body    transferapp.ShipTransferRequest  false  "Partial shipment"
// @Success      200  {object}  APIResponse[transferapp.TransferResponse]
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /transfers/{id}/ship [post]
func (h *TransferHandler) Ship(c *gin.Context) {
	transition(h, true,
		func(r *transferapp.ShipTransferRequest, key string) { r.IdempotencyKey = key },
		h.transfers.ShipTransfer,
	)(c)
}

// Receive godoc
// @ID           receiveTransfer
// @Summary      Receive shipped quantities at the destination branch
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Param        id               path    string                              true   "Transfer ID"
// @Param        Idempotency-Key  header  string                              false  "Idempotency key"
// @Param        request          body    transferapp.ReceiveTransferRequest  false  "Partial receipt"
// @Success      200  {object}  APIResponse[transferapp.TransferResponse]
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /transfers/{id}/receive [post]
func (h *TransferHandler) Receive(c *gin.Context) {
	transition(h, true,
		func(r *transferapp.ReceiveTransferRequest, key string) { r.IdempotencyKey = key },
		h.transfers.ReceiveTransfer,
	)(c)
}

// Cancel godoc
// @ID           cancelTransfer
// @Summary      Cancel a transfer; shipped stock returns to the source
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Param        id               path    string                             true   "Transfer ID"
// @Param        Idempotency-Key  header  string                             false  "Idempotency key"
// @Param        request          body    transferapp.CancelTransferRequest  true   "Cancellation"
// @Success      200  {object}  APIResponse[transferapp.TransferResponse]
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /transfers/{id}/cancel [post]
func (h *TransferHandler) Cancel(c *gin.Context) {
	transition(h, false,
		func(r *transferapp.CancelTransferRequest, key string) { r.IdempotencyKey = key },
		h.transfers.CancelTransfer,
	)(c)
}

// Reverse godoc
// @ID           reverseTransfer
// @Summary      Reverse a completed transfer
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Param        id               path    string                              true   "Transfer ID"
// @Param        Idempotency-Key  header  string                              false  "Idempotency key"
// @Param        request          body    transferapp.ReverseTransferRequest  false  "Reversal"
// @Success      200  {object}  APIResponse[transferapp.ReverseTransferResponse]
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /transfers/{id}/reverse [post]
func (h *TransferHandler) Reverse(c *gin.Context) {
	transition(h, true,
		func(r *transferapp.ReverseTransferRequest, key string) { r.IdempotencyKey = key },
		h.transfers.ReverseTransfer,
	)(c)
}

// Approvals godoc
// @ID           getTransferApprovals
// @Summary      Approval progress of a transfer
// @Tags         transfers
// @Produce      json
// @Param        id  path  string  true  "Transfer ID"
// @Success      200  {object}  APIResponse[transferapp.ApprovalProgressResponse]
// @Security     BearerAuth
// @Router       /transfers/{id}/approvals [get]
func (h *TransferHandler) Approvals(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	resp, err := h.transfers.GetApprovalProgress(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// SubmitApproval godoc
// @ID           submitTransferApproval
// @Summary      Approve or reject one approval level
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Param        id               path    string                             true   "Transfer ID"
// @Param        level            path    int                                true   "Approval level"
// @Param        Idempotency-Key  header  string                             false  "Idempotency key"
// @Param        request          body    transferapp.SubmitApprovalRequest  true   "Decision"
// @Success      200  {object}  APIResponse[transferapp.ApprovalProgressResponse]
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /transfers/{id}/approvals/{level} [post]
func (h *TransferHandler) SubmitApproval(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	level, ok := h.pathInt(c, "level")
	if !ok {
		return
	}
	var req transferapp.SubmitApprovalRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c)

	resp, err := h.transfers.SubmitApproval(c.Request.Context(), actor, id, level, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Audit godoc
// @ID           getTransferAudit
// @Summary      Audit trail of a transfer
// @Tags         transfers
// @Produce      json
// @Param        id  path  string  true  "Transfer ID"
// @Success      200  {object}  APIResponse[[]inventoryapp.AuditEvent]
// @Security     BearerAuth
// @Router       /transfers/{id}/audit [get]
func (h *TransferHandler) Audit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	events, err := h.transfers.GetTransferAudit(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, events)
}
