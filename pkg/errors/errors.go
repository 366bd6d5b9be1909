package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the failure categories the engine distinguishes
type ErrorType string

const (
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypePrivateAccount      ErrorType = "private_account"
	ErrorTypeAuthRequired        ErrorType = "auth_required"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeParseFailure        ErrorType = "parse_failure"
	ErrorTypeResourceTooSmall    ErrorType = "resource_too_small"
	ErrorTypeRateLimited         ErrorType = "rate_limited"
	ErrorTypeCaptchaInvalid      ErrorType = "captcha_invalid"
	ErrorTypeNoContent           ErrorType = "no_content"
)

// Error represents an engine error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around cause
func Wrap(t ErrorType, cause error, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Err: cause}
}

// WithCode sets the HTTP status code and returns e
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// TypeOf extracts the ErrorType of err, or ErrorTypeUpstreamUnavailable
// when err carries no type information.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUpstreamUnavailable
}

// As converts any error into *Error, classifying untyped errors as
// upstream failures.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(ErrorTypeUpstreamUnavailable, err, "%v", err)
}

// IsType reports whether err is an *Error of type t
func IsType(err error, t ErrorType) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == t
}

// Specificity ranks error types for summarizing a fully failed acquisition.
// Higher wins. Authoritative upstream state outranks operational noise.
func Specificity(t ErrorType) int {
	switch t {
	case ErrorTypePrivateAccount:
		return 60
	case ErrorTypeNotFound:
		return 50
	case ErrorTypeNoContent:
		return 40
	case ErrorTypeAuthRequired:
		return 30
	case ErrorTypeParseFailure:
		return 20
	case ErrorTypeUpstreamUnavailable:
		return 10
	default:
		return 0
	}
}

// IsAuthoritative reports whether t reflects true upstream state rather
// than a transient failure
func IsAuthoritative(t ErrorType) bool {
	switch t {
	case ErrorTypePrivateAccount, ErrorTypeNotFound:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeUpstreamUnavailable:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// UserMessage returns the normalized message shown to end users for t
func UserMessage(t ErrorType) string {
	switch t {
	case ErrorTypePrivateAccount:
		return "This account is private. Stories of private accounts cannot be viewed."
	case ErrorTypeNotFound:
		return "Account not found. Check the username and try again."
	case ErrorTypeNoContent:
		return "This account has no active stories right now."
	case ErrorTypeAuthRequired:
		return "The platform requires a logged-in session. Refresh the saved session and try again."
	case ErrorTypeResourceTooSmall:
		return "The story file could not be downloaded. Please try again."
	case ErrorTypeRateLimited:
		return "Too many requests. Please wait before trying again."
	case ErrorTypeCaptchaInvalid:
		return "Verification failed. Please solve a new challenge."
	default:
		return "Could not reach the platform right now. Please try again later."
	}
}
