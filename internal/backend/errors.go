package backend

import (
	"errors"
	"fmt"
)

// UnknownErrorMessage is shown when a failure carries no usable message.
const UnknownErrorMessage = "An unknown error occurred"

// Error is a non-2xx response from the backend.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// MessageOf returns the backend's message for err, falling back to the
// error text and then to UnknownErrorMessage.
func MessageOf(err error) string {
	if err == nil {
		return UnknownErrorMessage
	}
	var backendErr *Error
	if errors.As(err, &backendErr) && backendErr.Message != "" {
		return backendErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return UnknownErrorMessage
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var backendErr *Error
	return errors.As(err, &backendErr) && backendErr.StatusCode == 404
}
