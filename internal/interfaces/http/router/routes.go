package router

import "github.com/erp/stockflow/internal/interfaces/http/handler"

// InventoryRoutes maps the stock ledger endpoints
func InventoryRoutes(h *handler.InventoryHandler) *DomainGroup {
	g := NewDomainGroup("inventory", "/inventory")
	g.POST("/receipts", h.Receive)
	g.POST("/consumptions", h.Consume)
	g.POST("/adjustments", h.Adjust)
	g.GET("/levels", h.Levels)
	g.GET("/lots", h.Lots)
	g.GET("/ledger", h.Ledger)
	return g
}

// TransferRoutes maps the transfer workflow endpoints
func TransferRoutes(h *handler.TransferHandler) *DomainGroup {
	g := NewDomainGroup("transfers", "/transfers")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/review", h.Review)
	g.POST("/:id/ship", h.Ship)
	g.POST("/:id/receive", h.Receive)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/reverse", h.Reverse)
	g.GET("/:id/approvals", h.Approvals)
	g.POST("/:id/approvals/:level", h.SubmitApproval)
	g.GET("/:id/audit", h.Audit)
	return g
}

// ApprovalRuleRoutes maps approval rule administration
func ApprovalRuleRoutes(h *handler.ApprovalRuleHandler) *DomainGroup {
	g := NewDomainGroup("approval-rules", "/approval-rules")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.POST("/:id/archive", h.Archive)
	g.PUT("/:id/levels/order", h.ReorderLevels)
	return g
}
