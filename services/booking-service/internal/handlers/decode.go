package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and runs its struct tags. Failures come
// back as *apperr.ValidationError.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Invalid("body", "is required")
		case errors.As(err, &mbe):
			return apperr.Invalid("body", "exceeds %d bytes", mbe.Limit)
		default:
			return apperr.Invalid("body", "invalid json: %v", err)
		}
	}
	return check(dst)
}

func check(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice {
		for i := 0; i < rv.Len(); i++ {
			if err := check(rv.Index(i).Interface()); err != nil {
				var ve *apperr.ValidationError
				if errors.As(err, &ve) {
					ve.Field = fmt.Sprintf("[%d].%s", i, ve.Field)
				}
				return err
			}
		}
		return nil
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	err := validate.Struct(v)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &apperr.ValidationError{Field: fe.Field(), Reason: reason(fe)}
	}
	return err
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		if f := strings.Fields(fe.Param()); len(f) == 2 {
			return "is required when " + strings.ToLower(f[0]) + " is " + f[1]
		}
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must not be empty"
	case "datetime":
		return "must match " + fe.Param()
	case "url":
		return "must be a URL"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
