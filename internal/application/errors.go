package application

import "errors"

var (
	// ErrPermissionDenied is returned when the acting user lacks the
	// capability an operation requires.
	ErrPermissionDenied = errors.New("application: permission denied")
	// ErrNotFound is returned when the requested item or position is absent.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyCompleted is returned when an operation targets an item that
	// has already been completed.
	ErrAlreadyCompleted = errors.New("application: item already completed")
	// ErrNotCompleted is returned when reopening an item that was never
	// completed.
	ErrNotCompleted = errors.New("application: item not completed")
	// ErrNoCurrentItem is returned when completing without a position and no
	// item is currently active.
	ErrNoCurrentItem = errors.New("application: no current item")
	// ErrSweepInProgress is returned when a sweep is triggered while the
	// previous one has not finished.
	ErrSweepInProgress = errors.New("application: sweep already in progress")
	// ErrDuplicateWarning is returned when a warning tier is recorded twice
	// for the same item.
	ErrDuplicateWarning = errors.New("application: warning already recorded")
)

// ValidationError captures field level validation issues that callers can
// surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
