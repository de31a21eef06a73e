package errors

import (
	"fmt"
	"net/http"
)

// Error codes are machine readable; messages are for logs and API clients.

// Identity and authorization codes.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeTokenInvalid     = "TOKEN_INVALID"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeTransitionDenied = "TRANSITION_DENIED"
	CodeUnknownRole      = "UNKNOWN_ROLE"
)

// Entity codes.
const (
	CodeEntityNotFound         = "ENTITY_NOT_FOUND"
	CodeEntityExists           = "ENTITY_ALREADY_EXISTS"
	CodeUnknownEntityType      = "UNKNOWN_ENTITY_TYPE"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// Validation codes.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeUnknownAction    = "UNKNOWN_VALIDATION_ACTION"
)

// Generic codes.
const (
	CodeInternal = "INTERNAL_ERROR"
)

// ErrEntityNotFound creates a 404 for a missing change entity.
func ErrEntityNotFound(entityType, id string) *AppError {
	return NotFound(CodeEntityNotFound, fmt.Sprintf("%s %s not found", entityType, id)).
		WithParams(map[string]interface{}{"entity_type": entityType, "entity_id": id})
}

// ErrPermissionDenied creates a 403 carrying the reasons the request was refused.
func ErrPermissionDenied(reasons []string) *AppError {
	return Forbidden(CodePermissionDenied, "action not permitted").WithDetails(reasons)
}

// ErrTransitionDenied creates a 403 for an illegal or unauthorized status change.
func ErrTransitionDenied(reasons []string) *AppError {
	return Forbidden(CodeTransitionDenied, "status transition not permitted").WithDetails(reasons)
}

// ErrConcurrentModification creates a 409 telling the caller to reload and retry.
func ErrConcurrentModification(entityType, id string) *AppError {
	return New(CodeConcurrentModification,
		"entity changed while the request was processed, please retry",
		http.StatusConflict,
	).WithParams(map[string]interface{}{"entity_type": entityType, "entity_id": id})
}

// ErrValidationFailed creates a 422 carrying every business rule violation.
func ErrValidationFailed(reasons, warnings []string) *AppError {
	return New(CodeValidationFailed, "business rules not satisfied", http.StatusUnprocessableEntity).
		WithDetails(reasons).
		WithWarnings(warnings)
}
