package bridge

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)
	validate        = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	if err := v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return currencyPattern.MatchString(value)
	}); err != nil {
		panic(err)
	}

	return v
}

// validationErrors flattens validator output into wire-safe field messages.
func validationErrors(err error) []string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, fmt.Sprintf("%s %s", jsonPath(fe), validationMessage(fe)))
	}
	return out
}

func jsonPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "" {
		return fe.Field()
	}
	return path
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("cannot exceed %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "currency":
		return "must be a lowercase 3-letter ISO-4217 code"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
