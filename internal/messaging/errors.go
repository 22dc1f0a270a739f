package messaging

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNetwork            = errors.New("network unavailable")
	ErrServer             = errors.New("server error")
	ErrMethodNotSupported = errors.New("method not supported")
	ErrNotFound           = errors.New("not found")
)

// APIError is returned by a Store when the remote API answers with a failure
// status or cannot be reached. It matches one of the sentinel errors above
// through errors.Is.
type APIError struct {
	Op      string
	Status  int
	Message string
	Kind    error
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, msg)
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Quiet reports whether err should stay out of user-facing notifications.
func Quiet(err error) bool {
	return errors.Is(err, ErrMethodNotSupported)
}
