// Package validator wraps go-playground struct validation for request
// binding.
package validator

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a bound request struct against its validate tags and
// returns a field → failed-tag map, or nil when everything passed. The map
// feeds the error envelope's details payload.
func Validate(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	fields := make(map[string]string)
	for _, fe := range err.(validator.ValidationErrors) {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
