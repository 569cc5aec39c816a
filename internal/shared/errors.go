package shared

import (
	"errors"
	"fmt"
)

// ValidationError reports a client-detectable precondition failure. Requests
// that fail validation never reach the remote store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError reports a referential-integrity rule rejecting a destructive
// operation, detected by a guard query before any write happens.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NewConflictError builds a ConflictError.
func NewConflictError(message string) error {
	return &ConflictError{Message: message}
}

// RemoteError reports a transport, ownership or server-side failure from the
// remote data service, surfaced verbatim to the caller.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// NewRemoteError wraps err as a RemoteError with an operation prefix.
func NewRemoteError(op string, err error) error {
	return &RemoteError{Message: fmt.Sprintf("%s: %v", op, err)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsRemote reports whether err is a RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials indicates sign-in failure.
var ErrInvalidCredentials = errors.New("invalid credentials")
