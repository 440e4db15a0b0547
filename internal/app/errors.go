package app

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the record belongs to another user.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates bad user input; nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrGenerating indicates an edit or delete attempted while a
	// generation cycle is in flight.
	ErrGenerating = errors.New("newsletter is generating")
	// ErrNotGenerating indicates a cancel on a record with no generation
	// in flight.
	ErrNotGenerating = errors.New("newsletter is not generating")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
