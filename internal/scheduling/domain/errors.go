package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for invalid scheduling input.
var (
	ErrMissingColumn = errors.New("scheduling: missing required column")
	ErrInvalidDateFormat = errors.New("scheduling: invalid date format")
	ErrNegativeRemainingHours = errors.New("scheduling: remaining_hours must be non-negative")
	ErrInvalidCalendarWindow = errors.New("scheduling: hour_from must be less than hour_to, both in [0,24]")
	ErrInvalidDayOfWeek = errors.New("scheduling: dayofweek must be in [0,6]")
	ErrUnknownTask = errors.New("scheduling: calendar slot or leave references unknown task_id")
	ErrHorizonCapExceeded = errors.New("scheduling: no feasible schedule within horizon cap")
)

// InvalidInputError wraps one or more sentinel causes discovered during a
// single validation pass, so the caller gets every problem at once instead
// of failing on the first row, with a precise message and no partial run.
type InvalidInputError struct {
	Causes []error
}

func (e *InvalidInputError) Error() string {
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("invalid scheduling input (%d problem(s)): %s", len(e.Causes), strings.Join(msgs, "; "))
}

func (e *InvalidInputError) Unwrap() []error {
	return e.Causes
}

// NewInvalidInputError builds an InvalidInputError from accumulated causes.
// Returns nil if causes is empty, so callers can do:
//
//	if err := NewInvalidInputError(causes); err != nil { return err }
func NewInvalidInputError(causes []error) error {
	if len(causes) == 0 {
		return nil
	}
	return &InvalidInputError{Causes: causes}
}
