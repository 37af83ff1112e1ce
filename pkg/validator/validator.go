// Package validator wraps go-playground struct validation with
// json-tag field names, so failures read like the wire format.
package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return v
})

func jsonFieldName(field reflect.StructField) string {
	tag, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if tag == "" || tag == "-" {
		return field.Name
	}
	return tag
}

// FieldError is a single failed rule on a single field.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors is the set of failed rules for one struct.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + " failed on " + fe.Tag
		if fe.Param != "" {
			parts[i] += "=" + fe.Param
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct checks the struct's validate tags and reports every
// failure at once.
func ValidateStruct(s any) error {
	err := validate().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	failures := make(ValidationErrors, 0, len(ve))
	for _, fe := range ve {
		failures = append(failures, FieldError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return failures
}
