package chat

import (
	"errors"
	"fmt"
)

// Code classifies a chat operation failure for transport-level mapping.
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeUnavailable      Code = "UNAVAILABLE"
	CodeInternal         Code = "INTERNAL"
)

// Error carries a classification code alongside the underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func invalidArgument(message string) error {
	return newError(CodeInvalidArgument, message)
}

func notFound(message string) error {
	return newError(CodeNotFound, message)
}

func forbidden(message string) error {
	return newError(CodePermissionDenied, message)
}

func unavailable(message string, cause error) error {
	return wrapError(CodeUnavailable, message, cause)
}

// CodeOf extracts the classification code from err, or CodeUnknown when err
// does not wrap a chat Error.
func CodeOf(err error) Code {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Code
	}
	return CodeUnknown
}
