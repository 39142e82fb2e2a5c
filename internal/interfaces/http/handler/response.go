package handler

import "github.com/erp/stockflow/internal/interfaces/http/dto"

// APIResponse is the body of a successful call. Meta is set on listings only.
// An unhealthy /health answer reuses it with Success false.
type APIResponse[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Meta    *dto.Meta `json:"meta,omitempty"`
}

// ErrorResponse is the body of every rejected call
type ErrorResponse struct {
	Success bool          `json:"success" example:"false"`
	Error   dto.ErrorInfo `json:"error"`
}
