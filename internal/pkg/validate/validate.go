package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/growsmart/internal/domain"
)

// v is the package-level singleton validator. Field errors are reported by
// their JSON names so they match what the client sent.
var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return val
}

// Struct validates s using its validate tags. A failure is returned as a
// *domain.ValidationError for flow naming each offending field.
func Struct(flow string, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fe.Field())
	}
	return domain.NewValidationError(flow, "invalid request body", fields...)
}

// Var validates a single value against tag. A failure names field.
func Var(flow, field string, value interface{}, tag string) error {
	err := v.Var(value, tag)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	return domain.NewValidationError(flow, "invalid "+field, field)
}
