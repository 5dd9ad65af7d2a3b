package workflow

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced to callers of the approval workflow
var (
	// ErrValidation is returned when input cannot be routed (e.g. no manager assigned)
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when the approval record does not exist
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller is not the designated approver
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when the record is not in the expected pre-state
	ErrConflict = errors.New("conflict")
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = fmt.Errorf("%w: invalid state transition", ErrConflict)

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")
)

// ErrorKind names the taxonomy bucket of an error
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION"
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindForbidden  ErrorKind = "FORBIDDEN"
	KindConflict   ErrorKind = "CONFLICT"
	KindInternal   ErrorKind = "INTERNAL"
)

// Kind classifies err into the workflow taxonomy
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
