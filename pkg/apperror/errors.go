package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger (LED) ----

func ErrInsufficientFunds() *AppError {
	return New("LED_001", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrUnknownWallet() *AppError {
	return New("LED_002", "Wallet not found", http.StatusNotFound)
}

func ErrUnknownReference() *AppError {
	return New("LED_003", "No transaction registered for this reference", http.StatusNotFound)
}

func ErrSelfTransfer() *AppError {
	return New("LED_004", "Cannot transfer to your own wallet", http.StatusBadRequest)
}

func ErrOperationInProgress() *AppError {
	return New("LED_005", "Operation with this reference is already in progress, retry later", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("LED_006", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- API Keys (KEY) ----

func ErrInvalidKey() *AppError {
	return New("KEY_001", "Invalid API key", http.StatusUnauthorized)
}

func ErrKeyExpired() *AppError {
	return New("KEY_002", "API key has expired", http.StatusUnauthorized)
}

func ErrKeyRevoked() *AppError {
	return New("KEY_003", "API key has been revoked", http.StatusUnauthorized)
}

func ErrPermissionDenied(permission string) *AppError {
	return New("KEY_004", fmt.Sprintf("Permission %q required", permission), http.StatusForbidden)
}

func ErrKeyLimitExceeded(limit int) *AppError {
	return New("KEY_005", fmt.Sprintf("Maximum %d active API keys allowed per user", limit), http.StatusBadRequest)
}

func ErrKeyStillActive() *AppError {
	return New("KEY_006", "API key is not expired, only expired keys can be rolled over", http.StatusBadRequest)
}

func ErrNotOwner() *AppError {
	return New("KEY_007", "API key belongs to another user", http.StatusForbidden)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrAuthRequired() *AppError {
	return New("AUTH_002", "Authentication required", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// ErrStorageUnavailable marks a transient storage failure, safe to retry.
func ErrStorageUnavailable(err error) *AppError {
	return Wrap("SYS_002", "Storage temporarily unavailable, retry the operation", http.StatusServiceUnavailable, err)
}

func ErrGatewayFailure(err error) *AppError {
	return Wrap("SYS_003", "Payment gateway request failed", http.StatusBadGateway, err)
}

// Validation returns a caller-fault validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
