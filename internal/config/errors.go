package config

import "fmt"

// FieldError names the offending field and why it was rejected.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// hubField renders Hub[name].Field.
func hubField(name, field string) string {
	if name == "" {
		return fmt.Sprintf("Hub[].%s", field)
	}
	return fmt.Sprintf("Hub[%s].%s", name, field)
}
