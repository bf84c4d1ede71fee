package appointment

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; every concrete error below wraps one.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrConflict           = errors.New("conflict")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrForbidden          = errors.New("forbidden")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var (
	ErrDentistNotFound     = fmt.Errorf("dentist %w", ErrNotFound)
	ErrServiceNotFound     = fmt.Errorf("service %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)

	ErrStartInPast        = fmt.Errorf("%w: requested start is in the past", ErrInvalidRequest)
	ErrOutsideClinicHours = fmt.Errorf("%w: requested time is outside clinic operating hours", ErrInvalidRequest)
	ErrInvalidInterval    = fmt.Errorf("%w: end must be after start", ErrInvalidRequest)
	ErrInvalidDuration    = fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidRequest, MaxDurationMinutes)
	ErrTextTooLong        = fmt.Errorf("%w: text field exceeds %d characters", ErrInvalidRequest, MaxTextLength)
	ErrMissingActor       = fmt.Errorf("%w: caller identity is required", ErrInvalidRequest)

	ErrSlotUnavailable     = fmt.Errorf("%w: time slot is not available", ErrConflict)
	ErrIdempotencyInFlight = fmt.Errorf("%w: a request with this idempotency key is still in progress", ErrConflict)
)

// IsRequestError reports whether err is one of the request-semantic kinds that
// retrying the same input cannot fix.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrForbidden)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}
