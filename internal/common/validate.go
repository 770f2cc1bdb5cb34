package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeAndValidate decodes a JSON request body into dst and runs struct
// validation tags. An empty body validates the zero value. Failures are
// returned as 400 AppErrors.
func DecodeAndValidate(r *http.Request, dst any) error {
	if r.Body == nil {
		return BadRequest("", "request body required", nil)
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return BadRequest("", "invalid payload", err)
	}
	return Validate(dst)
}

// Validate runs struct validation tags on v.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			field := lowerFirst(fe.Field())
			return BadRequest(field, field+" failed "+fe.Tag()+" validation", err)
		}
		return BadRequest("", "invalid payload", err)
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
