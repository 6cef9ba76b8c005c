package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrBusy             = errors.New("generation already in progress")
	ErrPollTimeout      = errors.New("video generation timed out")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTooManySessions  = errors.New("too many active sessions")
)

// ValidationError reports which field of a request was rejected. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
