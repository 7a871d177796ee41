// Package errs defines the error taxonomy shared by the storage engines and the
// diary service. Callers distinguish conditions with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller mistakes. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrShiftNotFound is returned when an activity operation targets a
	// (date, user) pair that has no shift yet. It is a validation error.
	ErrShiftNotFound = errors.New("shift does not exist yet")

	// ErrStorage marks unrecoverable storage failures for the current request.
	ErrStorage = errors.New("storage failure")
)

// ValidationError reports a single invalid or missing field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation so callers need not know the concrete type.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Missing builds the validation error for a blank required field.
func Missing(field string) error {
	return &ValidationError{Field: field, Reason: "missing required field"}
}

// Invalid builds a validation error with a free-form reason.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NoShift builds the validation error returned when no shift exists for the
// given date and user.
func NoShift(date, username string) error {
	return &ValidationError{
		Reason: fmt.Sprintf("no shift for %s on %s", username, date),
		Err:    ErrShiftNotFound,
	}
}

// StorageError wraps a fatal storage failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error { return e.Err }

// Fatal wraps err as a StorageError unless it already is one.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
