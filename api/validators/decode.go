// Package validators decodes request bodies and turns validator tag failures
// into the VALIDATION_ERROR envelope, keyed by JSON field name.
package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
)

// checkout bodies are a handful of fields
const maxBodyBytes = 1 << 20

func DecodeJSONBody(r *http.Request, dest any) error {
	return decode(r, dest, false)
}

// DecodeOptionalJSONBody treats an empty body as {}.
func DecodeOptionalJSONBody(r *http.Request, dest any) error {
	return decode(r, dest, true)
}

func decode(r *http.Request, dest any, emptyOK bool) error {
	defer io.Copy(io.Discard, r.Body) //nolint:errcheck

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dest)
	if errors.Is(err, io.EOF) && emptyOK {
		err = nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}

	var fields validator.ValidationErrors
	switch err := engine.Struct(dest); {
	case err == nil:
		return nil
	case errors.As(err, &fields):
		details := make(map[string]string, len(fields))
		for _, fe := range fields {
			details[fe.Field()] = describe(fe)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
}

func describe(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "decimal_positive":
		return "must be a positive amount"
	case "uppercase":
		return "must be uppercase"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return fmt.Sprintf("must be %s characters", param)
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", param)
	}
	return "is invalid"
}
