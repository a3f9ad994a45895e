package utils

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks errors caused by malformed caller input.
var ErrInvalidRequest = errors.New("invalid request")

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewValidationError constructs an AppError that matches ErrInvalidRequest.
func NewValidationError(op, msg string) error {
	return &AppError{Op: op, Msg: msg, Err: ErrInvalidRequest}
}

// IsValidation reports whether err was caused by invalid caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// UserMessage returns the human-facing part of err, without the operation prefix.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Msg != "" {
		return appErr.Msg
	}
	return err.Error()
}
