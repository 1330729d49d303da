package disputes

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced to callers. Handlers map these to HTTP statuses
// with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")

	// ErrInvalidTransition is a Conflict raised when an operation is not
	// allowed from the dispute's current status.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)
)

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func invalidTransition(from, op string) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, op, from)
}

// unavailable wraps a collaborator failure unless it already carries one of
// the taxonomy errors.
func unavailable(op string, err error) error {
	for _, known := range []error{ErrInvalidArgument, ErrForbidden, ErrNotFound, ErrConflict, ErrUnavailable} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
