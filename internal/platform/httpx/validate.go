package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// FieldErrors flattens validator failures keyed by field namespace.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fieldErr := range verrs {
		msg := fieldErr.Tag()
		if fieldErr.Param() != "" {
			msg = fmt.Sprintf("%s=%s", fieldErr.Tag(), fieldErr.Param())
		}
		out[fieldErr.Namespace()] = msg
	}
	return out
}

// ValidationFailed writes a 400 problem listing the failed fields.
func ValidationFailed(w http.ResponseWriter, err error) {
	fields := FieldErrors(err)
	if fields == nil {
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	WriteProblem(w, ProblemDetail{
		Title:      "Validation Failed",
		Status:     http.StatusBadRequest,
		Detail:     "one or more fields are invalid",
		Violations: fields,
	})
}
