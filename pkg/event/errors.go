package event

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEventNotFound      = fmt.Errorf("event %w", ErrNotFound)
	ErrVersionNotFound    = fmt.Errorf("version %w", ErrNotFound)
	ErrPermissionNotFound = fmt.Errorf("permission %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)

	ErrAccessDenied       = errors.New("access denied")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrInvalidRange       = errors.New("start time must be before end time")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidRecurrence  = errors.New("invalid recurrence")
	ErrInvalidEvent       = errors.New("invalid event")
	ErrEmptyBatch         = errors.New("batch contains no events")
	ErrBatchTooLarge      = errors.New("batch too large")
)

// ConflictError names the existing event a candidate range collides with.
type ConflictError struct {
	EventId    int
	EventTitle string
	Range      TimeRange
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with event %d (%q)", ErrSchedulingConflict, e.EventId, e.EventTitle)
}

func (e *ConflictError) Unwrap() error {
	return ErrSchedulingConflict
}
