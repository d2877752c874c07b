package scheduler

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrScheduleNotFound is returned by operations that require an
// existing schedule. Query-style operations soft-miss instead.
var ErrScheduleNotFound = errors.New("schedule not found")

// ErrEventNotFound is returned when an event key is unknown or the
// event calendar has no usable date left for it.
var ErrEventNotFound = errors.New("event not found")

// ValidationError reports a structural problem with a schedule at
// creation time. Field names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
