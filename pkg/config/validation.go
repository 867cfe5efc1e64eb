package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags.
//
// Validation never mutates the config; normalization (e.g. log level casing)
// happens in ApplyDefaults. Errors from all fields are collected into a
// single message so a broken config file surfaces every problem at once.
func Validate(cfg *Config) error {
	validate := validator.New()

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
}

// describeFieldError renders one field error as "<field>: <problem>".
// The validation tag name is kept in the message so the failing rule is
// identifiable (e.g. "oneof", "max").
func describeFieldError(fe validator.FieldError) string {
	field := fieldPath(fe)

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: required value is missing", field)
	case "oneof":
		return fmt.Sprintf("%s: %q is not one of the allowed values (oneof: %s)", field, fe.Value(), fe.Param())
	case "min":
		return fmt.Sprintf("%s: value %v is below the min of %s", field, fe.Value(), fe.Param())
	case "max":
		return fmt.Sprintf("%s: value %v exceeds the max of %s", field, fe.Value(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s: value %v must be greater than %s (gt)", field, fe.Value(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s: value %v must be at least %s (gte)", field, fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("%s: failed %q validation", field, fe.Tag())
	}
}

// fieldPath strips the leading "Config." from the struct namespace and
// lowercases it to match the YAML shape users actually write.
func fieldPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}
