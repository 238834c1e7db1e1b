package service

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to the caller of a dashboard action.
var (
	ErrAuth            = errors.New("auth error")
	ErrRoleNotFound    = errors.New("role not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrValidation      = errors.New("validation error")
	ErrBackend         = errors.New("backend error")
)

// Error carries one of the kinds above together with a human-readable message.
// errors.Is matches both the kind and the wrapped cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a stable identifier for the kind of err, or "" when err is
// not one of the dashboard error kinds.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRoleNotFound):
		return "role_not_found"
	case errors.Is(err, ErrStudentNotFound):
		return "student_not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrBackend):
		return "backend"
	default:
		return ""
	}
}

func authError(message string, err error) *Error {
	return &Error{Kind: ErrAuth, Message: message, Err: err}
}

func roleNotFoundError() *Error {
	return &Error{Kind: ErrRoleNotFound, Message: "User role not found."}
}

func studentNotFoundError() *Error {
	return &Error{Kind: ErrStudentNotFound, Message: "Student not found."}
}

func validationError(message string) *Error {
	return &Error{Kind: ErrValidation, Message: message}
}

// backendError prefixes the underlying message with the failed action, e.g.
// "Error adding student: connection refused".
func backendError(action string, err error) *Error {
	return &Error{Kind: ErrBackend, Message: fmt.Sprintf("%s: %v", action, err), Err: err}
}
