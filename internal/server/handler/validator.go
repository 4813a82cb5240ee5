package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/alanyoungcy/betslip/internal/domain"
)

// requestValidator wraps the shared validator instance.
type requestValidator struct {
	validate *validator.Validate
}

var (
	validatorOnce sync.Once
	validate      *requestValidator
)

// getValidator returns the process-wide validator, building it on first use.
func getValidator() *requestValidator {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("sharecode", validateShareCode)
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = &requestValidator{validate: v}
	})
	return validate
}

func (v *requestValidator) validateStruct(s any) error {
	return v.validate.Struct(s)
}

// formatValidationError turns validator errors into a field to message map
// keyed by JSON field name.
func formatValidationError(err error) map[string]string {
	errs := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs["error"] = "invalid request format"
		return errs
	}

	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			errs[field] = "this field is required"
		case "gt":
			errs[field] = fmt.Sprintf("must be greater than %s", e.Param())
		case "max":
			errs[field] = fmt.Sprintf("must be at most %s characters", e.Param())
		case "sharecode":
			errs[field] = "invalid share code"
		default:
			errs[field] = "invalid value"
		}
	}
	return errs
}

func validateShareCode(fl validator.FieldLevel) bool {
	return domain.ValidShareCode(fl.Field().String())
}
