package contracts

import (
	"errors"
	"fmt"
)

// ErrLoad marks an unreadable or corrupt settings store. It is logged and
// recovered from by falling back to defaults; it never reaches a caller of Load.
var ErrLoad = errors.New("settings could not be loaded")

// ValidationError reports the first invalid settings field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// WorkerStartError wraps a failure to bring the worker up (device missing,
// busy, permission denied). Its message is shown to the user unchanged.
type WorkerStartError struct {
	Err error
}

func (e *WorkerStartError) Error() string { return e.Err.Error() }

func (e *WorkerStartError) Unwrap() error { return e.Err }

// CommunicationError reports that the backend could not be reached. The
// worker's real state is unknown, which is not the same as failed.
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsCommunication reports whether err is, or wraps, a *CommunicationError.
func IsCommunication(err error) bool {
	var ce *CommunicationError
	return errors.As(err, &ce)
}
