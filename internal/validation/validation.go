// Package validation checks objects against struct-tag schemas using
// go-playground/validator. Field names in errors follow the json tags.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EmptyObjectLog is the log value reported for an object without properties.
const EmptyObjectLog = "Object is empty"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
			return name
		}

		return fld.Name
	})

	return v
}

// CheckResult is the outcome of CheckObject.
type CheckResult struct {
	IsValid bool `json:"isValid"`
	// Log carries the validator's error unmodified, or EmptyObjectLog.
	Log any `json:"log,omitempty"`
}

// CheckObject validates obj, a struct or pointer to struct, against its
// validate tags.
func CheckObject(obj any) CheckResult {
	if isEmpty(obj) {
		return CheckResult{Log: EmptyObjectLog}
	}

	if err := validate.Struct(obj); err != nil {
		return CheckResult{Log: err}
	}

	return CheckResult{IsValid: true}
}

// Struct validates obj and returns the validator error, if any.
func Struct(obj any) error {
	return validate.Struct(obj)
}

// Messages flattens a validation error into "field: tag" strings.
func Messages(err error) []string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(errs))

	for _, fe := range errs {
		msg := fe.Field() + ": " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}

		out = append(out, msg)
	}

	return out
}

// isEmpty reports whether obj has no properties at all: nil, a nil pointer
// or map, an empty map, or a struct without fields. Zero field values are
// still properties and go through validation.
func isEmpty(obj any) bool {
	if obj == nil {
		return true
	}

	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return true
		}

		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		return v.Len() == 0
	case reflect.Struct:
		return v.NumField() == 0
	default:
		return false
	}
}
