package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error for callers and transports
type ErrorKind string

const (
	KindValidation       ErrorKind = "VALIDATION"
	KindConflict         ErrorKind = "CONFLICT"
	KindPermissionDenied ErrorKind = "PERMISSION_DENIED"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindTransientStorage ErrorKind = "TRANSIENT_STORAGE"
	KindInternal         ErrorKind = "INTERNAL"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches two domain errors by code so sentinel values work with errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error wrapping cause
func (e *DomainError) WithCause(cause error) *DomainError {
	cp := *e
	cp.cause = cause
	return &cp
}

// WithMessage returns a copy of the error carrying a more specific message
func (e *DomainError) WithMessage(format string, args ...any) *DomainError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// NewDomainError creates a new validation-kind domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates an error for malformed input
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Kind: KindValidation, Code: code, Message: message}
}

// NewConflictError creates an error for state conflicts the caller may retry after refetching
func NewConflictError(code, message string) *DomainError {
	return &DomainError{Kind: KindConflict, Code: code, Message: message}
}

// NewPermissionDeniedError creates an error for missing membership or permission
func NewPermissionDeniedError(code, message string) *DomainError {
	return &DomainError{Kind: KindPermissionDenied, Code: code, Message: message}
}

// NewNotFoundError creates an error for unknown entities
func NewNotFoundError(code, message string) *DomainError {
	return &DomainError{Kind: KindNotFound, Code: code, Message: message}
}

// NewTransientStorageError creates an error for serialization failures and timeouts
func NewTransientStorageError(message string, cause error) *DomainError {
	return &DomainError{Kind: KindTransientStorage, Code: "TRANSIENT_STORAGE", Message: message, cause: cause}
}

// KindOf returns the kind of err, or KindInternal when err is not a DomainError
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsTransient reports whether err may be resolved by retrying the whole transaction
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransientStorage
}

// IsKind reports whether err is a DomainError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Common domain errors
var (
	ErrNotFound            = NewNotFoundError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewConflictError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewConflictError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrForbidden           = NewPermissionDeniedError("FORBIDDEN", "Access to this resource is forbidden")
	ErrNotBranchMember     = NewPermissionDeniedError("NOT_BRANCH_MEMBER", "Actor is not a member of the branch")
	ErrInvalidState        = NewConflictError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientStock   = NewConflictError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrIdempotencyMismatch = NewConflictError("IDEMPOTENCY_KEY_REUSED", "Idempotency key was already used for a different request")
	ErrIdempotencyInFlight = NewConflictError("IDEMPOTENCY_KEY_IN_PROGRESS", "A request with this idempotency key is in progress")
	ErrRetriesExhausted    = NewTransientStorageError("Transaction could not be committed after retries", nil)
)
