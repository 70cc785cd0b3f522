package capture

import (
	"errors"
	"fmt"
)

// ErrorName is the platform-reported class of an acquisition failure.
type ErrorName string

const (
	// ErrNotAllowed covers both a permission refusal and the user closing
	// the picker; the message tells them apart.
	ErrNotAllowed   ErrorName = "NotAllowedError"
	ErrNotFound     ErrorName = "NotFoundError"
	ErrNotReadable  ErrorName = "NotReadableError"
	ErrAbort        ErrorName = "AbortError"
	ErrNotSupported ErrorName = "NotSupportedError"
	ErrInvalidState ErrorName = "InvalidStateError"
)

// Error is a classified platform failure.
type Error struct {
	Name    ErrorName
	Message string
	Err     error
}

// NewError returns an *Error with the given name and message.
func NewError(name ErrorName, message string) *Error {
	return &Error{Name: name, Message: message}
}

// WrapError returns an *Error carrying err as its cause. The message
// defaults to err's text.
func WrapError(name ErrorName, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Name: name, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NameOf returns the ErrorName of err if it is or wraps an *Error, and the
// empty name otherwise.
func NameOf(err error) ErrorName {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Name
	}
	return ""
}
