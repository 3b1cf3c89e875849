// Package errors provides categorized error types for the portfolio
// rebalancer, mapping service failures to HTTP status codes.
package errors

import (
	"fmt"
	"net/http"

	"github.com/portfolio-rebalancer/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents state conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryUpstream represents data provider errors
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem represents unexpected system errors
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Validation errors (400)

// NewValidationError creates a validation error with a reason
func NewValidationError(reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_FAILED",
		Message:    reason,
	}
}

// NewInvalidPublicKeyError creates an invalid public key error
func NewInvalidPublicKeyError(publicKey string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PUBLIC_KEY",
		Message:    "invalid public key format",
		Details: map[string]interface{}{
			"publicKey": publicKey,
		},
	}
}

// NewAllocationSumError creates an error for target sets not summing to 100
func NewAllocationSumError(total float64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "ALLOCATION_SUM_INVALID",
		Message:    "target allocations must sum to 100%",
		Details: map[string]interface{}{
			"totalPercentage": total,
		},
	}
}

// Not found errors (404)

// NewWalletNotFoundError creates a wallet not found error
func NewWalletNotFoundError(publicKey string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "WALLET_NOT_FOUND",
		Message:    fmt.Sprintf("wallet not found: %s", publicKey),
	}
}

// NewPlanNotFoundError creates a plan not found error
func NewPlanNotFoundError(planID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "PLAN_NOT_FOUND",
		Message:    fmt.Sprintf("rebalance plan not found: %s", planID),
	}
}

// Conflict errors (409)

// NewPlanAlreadyFinalizedError creates an error for executing a non-pending plan
func NewPlanAlreadyFinalizedError(planID string, status types.PlanStatus) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "PLAN_ALREADY_FINALIZED",
		Message:    "plan already executed or failed",
		Details: map[string]interface{}{
			"planId": planID,
			"status": string(status),
		},
	}
}

// NewQuoteExpiredError creates an error for plans whose stored quotes expired.
// Surfaced distinctly so the caller knows to request a fresh plan rather than
// retry blindly.
func NewQuoteExpiredError(planID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "QUOTE_EXPIRED",
		Message:    "stored quotes have expired; create a new rebalance plan",
		Details: map[string]interface{}{
			"planId": planID,
		},
	}
}

// NewPlanInProgressError creates an error for concurrent plan creation attempts
func NewPlanInProgressError(publicKey string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "PLAN_IN_PROGRESS",
		Message:    "a plan creation attempt is already in flight for this wallet",
		Details: map[string]interface{}{
			"publicKey": publicKey,
		},
	}
}

// Upstream errors

// NewBalanceFetchError creates an error for a failed balance fetch.
// Balance failures abort the whole snapshot build.
func NewBalanceFetchError(publicKey string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusInternalServerError,
		Code:       "BALANCE_FETCH_FAILED",
		Message:    "failed to fetch token balances",
		Details: map[string]interface{}{
			"publicKey": publicKey,
		},
		Cause: cause,
	}
}

// NewConfirmationTimeoutError creates an error for a signature that never
// reached a confirmed state within the polling window. Reported, not fatal;
// the plan stays pending.
func NewConfirmationTimeoutError(signature string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "CONFIRMATION_TIMEOUT",
		Message:    "transaction not confirmed within the polling window",
		Details: map[string]interface{}{
			"signature": signature,
		},
	}
}

// NewInstructionBuildError creates an error for a failed instruction build
func NewInstructionBuildError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Code:       "INSTRUCTION_BUILD_FAILED",
		Message:    "failed to build swap instructions",
		Cause:      cause,
	}
}

// Database errors (500)

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database operation failed: %s", operation),
		Cause:      cause,
	}
}

// System errors (500)

// NewInternalError creates an unexpected internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}
