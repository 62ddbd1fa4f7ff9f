package domain

import "errors"

// ErrNotFound signals a lookup for an unknown job or storage object.
var ErrNotFound = errors.New("not found")

// ErrorKind classifies generation failures for the status contract.
type ErrorKind string

const (
	ErrValidation        ErrorKind = "validation"
	ErrInvalidCredential ErrorKind = "invalid_credential"
	ErrSubmitFailed      ErrorKind = "submit_failed"
	ErrPollFailed        ErrorKind = "poll_failed"
	ErrNoArtifact        ErrorKind = "no_artifact"
	ErrStorageWrite      ErrorKind = "storage_write_failed"
	ErrInternal          ErrorKind = "internal"
)

// Error carries a stable, caller-safe message together with its kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewError builds a classified error with a display message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError classifies an underlying error, preserving it for diagnostics.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the classification of err, defaulting to ErrInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrInternal
}
