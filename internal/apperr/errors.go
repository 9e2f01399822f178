// Package apperr defines the error taxonomy shared by the chat service and its
// transport adapters.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInternal         Code = "INTERNAL"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeInvalidOperation Code = "INVALID_OPERATION"
	CodeNotFound         Code = "NOT_FOUND"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeRateLimited      Code = "RATE_LIMITED"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any *AppError with the same code, so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error { return New(CodeInvalidArgument, msg) }
func InvalidOp(msg string) error { return New(CodeInvalidOperation, msg) }
func NotFound(msg string) error { return New(CodeNotFound, msg) }
func Forbidden(msg string) error { return New(CodePermissionDenied, msg) }
func Unauthorized(msg string) error { return New(CodeUnauthenticated, msg) }
func RateLimited(msg string) error { return New(CodeRateLimited, msg) }
func Internal(cause error) error { return Wrap(CodeInternal, "internal error", cause) }

// CodeOf returns the code of the first AppError in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *AppError
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps an error onto the REST status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument, CodeInvalidOperation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to return to clients. Internal causes are hidden.
func PublicMessage(err error) string {
	var e *AppError
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal server error"
}
