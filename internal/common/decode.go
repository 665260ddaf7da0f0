package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON decodes the request body into dst and runs struct validation.
// Returns an AppError with VALIDATION_FAILED on any failure.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return NewAppError(CodeValidationFailed, "invalid request body", http.StatusBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return &AppError{
				Code:       CodeValidationFailed,
				Message:    "validation failed: " + strings.Join(fields, ", "),
				HTTPStatus: http.StatusBadRequest,
				Err:        err,
				Details:    fields,
			}
		}
		return NewAppError(CodeValidationFailed, "validation failed", http.StatusBadRequest, err)
	}
	return nil
}
