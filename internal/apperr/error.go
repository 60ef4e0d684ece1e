package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
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

// Retryable reports whether the caller may retry the operation unchanged.
func (e *AppError) Retryable() bool { return e.Code == CodeInfrastructure }

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArgument(msg string) error { return New(CodeInvalidArgument, msg) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func Conflict(msg string) error { return New(CodeConflict, msg) }

func Unauthorized(msg string) error { return New(CodeUnauthorized, msg) }

func Forbidden(msg string) error { return New(CodeForbidden, msg) }

// Infrastructure classifies a storage or transport failure. Domain errors
// already carried by cause are returned unchanged so that a repository can
// wrap every error it sees without masking NotFound or Conflict.
func Infrastructure(msg string, cause error) error {
	if cause == nil {
		return nil
	}
	var ae *AppError
	if errors.As(cause, &ae) {
		return cause
	}
	return Wrap(CodeInfrastructure, msg, errors.WithStack(cause))
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }

// IsUnauthorized matches both missing identity and missing permission.
func IsUnauthorized(err error) bool {
	c := CodeOf(err)
	return c == CodeUnauthorized || c == CodeForbidden
}

func IsInvalidArgument(err error) bool { return CodeOf(err) == CodeInvalidArgument }

func IsInfrastructure(err error) bool { return CodeOf(err) == CodeInfrastructure }

// Message returns the client-safe message of err. Causes are never exposed.
func Message(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case "":
		return http.StatusOK
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
