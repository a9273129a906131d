// Package errors defines the structured error values surfaced by the
// service. Every failure a caller can observe is a ServiceError carrying a
// stable code, a human-readable message and an HTTP status for the
// transport layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure category.
type ErrorCode string

const (
	CodeNotInitialized     ErrorCode = "NOT_INITIALIZED"
	CodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	CodeFeeUnavailable     ErrorCode = "FEE_UNAVAILABLE"
	CodeTransferFailed     ErrorCode = "TRANSFER_FAILED"
	CodeRecordNotFound     ErrorCode = "RECORD_NOT_FOUND"
	CodeInvalidPage        ErrorCode = "INVALID_PAGE"
	CodeFaucetFunded       ErrorCode = "FAUCET_ALREADY_FUNDED"
	CodeUnreachable        ErrorCode = "EXTERNAL_PROCESS_UNREACHABLE"
	CodeBusy               ErrorCode = "BUSY"
	CodeReconciliation     ErrorCode = "RECONCILIATION_REQUIRED"
	CodeInvalidArgument    ErrorCode = "INVALID_ARGUMENT"
	CodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	CodeRateLimited        ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal           ErrorCode = "INTERNAL"
)

// ServiceError is the structured failure returned to callers.
type ServiceError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches two service errors by code so sentinel comparisons with
// errors.Is work across wrapping.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if errors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

// WithDetails attaches a key/value pair and returns the error.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// NotInitialized reports an operation attempted before initialize completed.
func NotInitialized() *ServiceError {
	return newError(CodeNotInitialized, http.StatusConflict, "service not yet initialized")
}

// AlreadyInitialized reports a second initialize call.
func AlreadyInitialized() *ServiceError {
	return newError(CodeAlreadyInitialized, http.StatusConflict, "service already initialized")
}

// Unauthorized reports a caller lacking permission for an operation.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "caller is not authorized"
	}
	return newError(CodeUnauthorized, http.StatusForbidden, message)
}

// InsufficientFunds reports a balance too low for the requested amount.
func InsufficientFunds(available, requested uint64) *ServiceError {
	e := newError(CodeInsufficientFunds, http.StatusPaymentRequired, "fund your account first")
	return e.WithDetails("available", available).WithDetails("requested", requested)
}

// FeeUnavailable reports a failed transfer-fee lookup. Callers recover with
// the configured default fee; the error exists for logging and tests.
func FeeUnavailable(err error) *ServiceError {
	e := newError(CodeFeeUnavailable, http.StatusServiceUnavailable, "transfer fee unavailable")
	e.Err = err
	return e
}

// TransferFailed reports a transfer the backend rejected.
func TransferFailed(detail string) *ServiceError {
	e := newError(CodeTransferFailed, http.StatusBadGateway, "transfer failed")
	if detail != "" {
		e.WithDetails("detail", detail)
	}
	return e
}

// RecordNotFound reports a missing donation record.
func RecordNotFound(id string) *ServiceError {
	e := newError(CodeRecordNotFound, http.StatusNotFound,
		fmt.Sprintf("coffee information with id=%s not found", id))
	return e.WithDetails("id", id)
}

// InvalidPage reports non-positive pagination arguments.
func InvalidPage(page, pageSize int) *ServiceError {
	e := newError(CodeInvalidPage, http.StatusBadRequest, "page and pageSize must be positive")
	return e.WithDetails("page", page).WithDetails("pageSize", pageSize)
}

// FaucetAlreadyFunded reports a faucet request from a funded caller.
func FaucetAlreadyFunded() *ServiceError {
	return newError(CodeFaucetFunded, http.StatusConflict,
		"to prevent faucet drain, please utilize your existing tokens")
}

// Unreachable reports a failed call to an external process.
func Unreachable(process string, err error) *ServiceError {
	e := newError(CodeUnreachable, http.StatusBadGateway,
		fmt.Sprintf("%s process unreachable", process))
	e.Err = err
	return e
}

// Busy reports a concurrent in-flight operation for the same account.
func Busy(key string) *ServiceError {
	e := newError(CodeBusy, http.StatusConflict, "another operation for this account is in flight")
	return e.WithDetails("account", key)
}

// ReconciliationRequired reports a transfer that succeeded but whose record
// write failed. Funds moved; the journal holds the orphan.
func ReconciliationRequired(err error) *ServiceError {
	e := newError(CodeReconciliation, http.StatusInternalServerError,
		"transfer committed but record write failed; reconciliation required")
	e.Err = err
	return e
}

// InvalidArgument reports a malformed or unsupported request.
func InvalidArgument(message string) *ServiceError {
	return newError(CodeInvalidArgument, http.StatusBadRequest, message)
}

// InvalidToken reports a rejected authentication token.
func InvalidToken(err error) *ServiceError {
	e := newError(CodeInvalidToken, http.StatusUnauthorized, "invalid authentication token")
	e.Err = err
	return e
}

// RateLimitExceeded reports a throttled request.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded")
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	e := newError(CodeInternal, http.StatusInternalServerError, message)
	e.Err = err
	return e
}

// GetServiceError extracts a ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
