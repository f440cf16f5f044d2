// Package apperr defines the error taxonomy shared by every component.
//
// Each domain error carries one of four kinds, checked with errors.Is, and a
// machine-readable Code for clients.
package apperr

import (
	"errors"
	"fmt"
)

// Kinds.
var (
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation failed")
	ErrConflict              = errors.New("conflict")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Lookups
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeCourseNotFound       Code = "COURSE_NOT_FOUND"
	CodeInstructorNotFound   Code = "INSTRUCTOR_NOT_FOUND"
	CodeStudentNotFound      Code = "STUDENT_NOT_FOUND"
	CodeSubstitutionNotFound Code = "SUBSTITUTION_NOT_FOUND"

	// Input
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeInvalidStatus        Code = "INVALID_STATUS"
	CodeTransitionNotAllowed Code = "TRANSITION_NOT_ALLOWED"
	CodeMissingParameter     Code = "MISSING_PARAMETER"
	CodeSubstitutionClosed   Code = "SUBSTITUTION_NOT_PENDING"
	CodeSessionNotHeld       Code = "SESSION_NOT_HELD"

	// Scheduling
	CodeSlotOccupied Code = "SLOT_OCCUPIED"
	CodeMakeupExists Code = "MAKEUP_EXISTS"

	// Stores
	CodeIndexUnavailable Code = "INDEX_UNAVAILABLE"
	CodeCacheUnavailable Code = "CACHE_UNAVAILABLE"
)

// Error is a domain error.
type Error struct {
	Kind     error
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// WithMeta returns e with key set to value in its metadata.
func (e *Error) WithMeta(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// NotFound builds an ErrNotFound error.
func NotFound(code Code, format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation builds an ErrValidation error.
func Validation(code Code, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds an ErrConflict error.
func Conflict(code Code, format string, args ...any) *Error {
	return &Error{Kind: ErrConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps cause as an ErrDependencyUnavailable error.
func Unavailable(code Code, cause error, format string, args ...any) *Error {
	return &Error{Kind: ErrDependencyUnavailable, Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
