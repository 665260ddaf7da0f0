package common

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the canonical error payload: {code, message, details?}.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{Code: code, Message: message, Details: details})
}

// RenderError maps an error to the canonical envelope. AppError values keep
// their code and status; context deadline errors become DEADLINE_EXCEEDED;
// everything else is an opaque 500.
func RenderError(w http.ResponseWriter, err error) {
	if appErr, ok := AsAppError(err); ok {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		JSONError(w, http.StatusGatewayTimeout, CodeDeadlineExceeded, "request deadline exceeded", nil)
		return
	}
	JSONError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
}
