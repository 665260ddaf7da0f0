package common

import "errors"

// Stable error codes surfaced in API responses. Handlers map these to HTTP
// statuses; services attach them to AppError values.
const (
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeInvalidProduct         = "INVALID_PRODUCT"
	CodeOutOfStock             = "OUT_OF_STOCK"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeStockConflict          = "STOCK_CONFLICT"
	CodeNegativeBalance        = "NEGATIVE_BALANCE"
	CodeReservationExpired     = "RESERVATION_EXPIRED"
	CodeIllegalStateTransition = "ILLEGAL_STATE_TRANSITION"
	CodeAccessDenied           = "ACCESS_DENIED"
	CodeDeadlineExceeded       = "DEADLINE_EXCEEDED"
	CodeNotFound               = "NOT_FOUND"
	CodeInternal               = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// AsAppError extracts an AppError from the chain if present.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
