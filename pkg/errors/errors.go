// Package errors provides the structured error types shared by the message
// model, the body stream codecs and the client/server lifecycle.
//
// Every failure carries an ErrorType. Use errors.Is against the exported
// sentinels (ErrInvalidHeader, ErrMessageTooLarge, ...) to classify an error,
// and StatusCode to obtain the HTTP status a server answers with.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorType represents the category of error that occurred.
type ErrorType string

const (
	// ErrorTypeInvalidURI represents an unparseable URI.
	ErrorTypeInvalidURI ErrorType = "invalid_uri"
	// ErrorTypeInvalidValue represents an out-of-range or malformed component value.
	ErrorTypeInvalidValue ErrorType = "invalid_value"
	// ErrorTypeInvalidHeader represents a bad header name or value.
	ErrorTypeInvalidHeader ErrorType = "invalid_header"
	// ErrorTypeInvalidMethod represents a bad request method.
	ErrorTypeInvalidMethod ErrorType = "invalid_method"
	// ErrorTypeUnsupportedVersion represents an unrecognized protocol version.
	ErrorTypeUnsupportedVersion ErrorType = "unsupported_version"
	// ErrorTypeMessageTooLarge represents a body exceeding its configured bound.
	ErrorTypeMessageTooLarge ErrorType = "message_too_large"
	// ErrorTypeMalformedBody represents a content-decoding failure.
	ErrorTypeMalformedBody ErrorType = "malformed_body"
	// ErrorTypeParse represents a wire framing failure.
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeTimeout represents a lifecycle timeout.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeIO represents I/O errors on the connection or a stream.
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeInvalidArgument represents a programming error in a constructor argument.
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
)

// HTTP status codes carried by errors. Kept here so this package has no
// dependency on the message model.
const (
	statusBadRequest          = 400
	statusRequestTimeout      = 408
	statusEntityTooLarge      = 413
	statusHeaderTooLarge      = 431
	statusInternalServerError = 500
	statusVersionNotSupported = 505
)

// Sentinels for errors.Is. Two *Error values match when their types match.
var (
	ErrInvalidURI         = &Error{Type: ErrorTypeInvalidURI}
	ErrInvalidValue       = &Error{Type: ErrorTypeInvalidValue}
	ErrInvalidHeader      = &Error{Type: ErrorTypeInvalidHeader}
	ErrInvalidMethod      = &Error{Type: ErrorTypeInvalidMethod}
	ErrUnsupportedVersion = &Error{Type: ErrorTypeUnsupportedVersion}
	ErrMessageTooLarge    = &Error{Type: ErrorTypeMessageTooLarge}
	ErrMalformedBody      = &Error{Type: ErrorTypeMalformedBody}
	ErrParse              = &Error{Type: ErrorTypeParse}
	ErrTimeout            = &Error{Type: ErrorTypeTimeout}
	ErrIO                 = &Error{Type: ErrorTypeIO}
	ErrInvalidArgument    = &Error{Type: ErrorTypeInvalidArgument}
)

// Error represents a structured error with context information.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Cause     error     `json:"cause,omitempty"`
	Status    int       `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target type.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

func newError(typ ErrorType, status int, message string, cause error) *Error {
	return &Error{
		Type:      typ,
		Message:   message,
		Cause:     cause,
		Status:    status,
		Timestamp: time.Now(),
	}
}

// NewInvalidURIError creates an error for a URI that cannot be parsed.
func NewInvalidURIError(uri string, reason string) *Error {
	return newError(ErrorTypeInvalidURI, statusBadRequest, fmt.Sprintf("invalid URI %q: %s", uri, reason), nil)
}

// NewInvalidValueError creates an error for a malformed or out-of-range value.
func NewInvalidValueError(message string) *Error {
	return newError(ErrorTypeInvalidValue, statusBadRequest, message, nil)
}

// NewInvalidHeaderError creates an error for a bad header name or value.
func NewInvalidHeaderError(message string) *Error {
	return newError(ErrorTypeInvalidHeader, statusBadRequest, message, nil)
}

// NewInvalidMethodError creates an error for a bad request method.
func NewInvalidMethodError(message string) *Error {
	return newError(ErrorTypeInvalidMethod, statusBadRequest, message, nil)
}

// NewUnsupportedVersionError creates an error for an unrecognized protocol version.
func NewUnsupportedVersionError(version string) *Error {
	return newError(ErrorTypeUnsupportedVersion, statusVersionNotSupported,
		fmt.Sprintf("unsupported protocol version %q", version), nil)
}

// NewMessageTooLargeError creates an error for a body exceeding limit bytes.
func NewMessageTooLargeError(limit int64) *Error {
	return newError(ErrorTypeMessageTooLarge, statusEntityTooLarge,
		fmt.Sprintf("message body exceeds %d bytes", limit), nil)
}

// NewHeaderTooLargeError creates an error for a message head exceeding
// limit bytes.
func NewHeaderTooLargeError(limit int) *Error {
	return newError(ErrorTypeMessageTooLarge, statusHeaderTooLarge,
		fmt.Sprintf("message head exceeds %d bytes", limit), nil)
}

// NewMalformedBodyError creates an error for a body that cannot be decoded.
func NewMalformedBodyError(message string, cause error) *Error {
	return newError(ErrorTypeMalformedBody, statusBadRequest, message, cause)
}

// NewFramingError creates a Parse error for a body whose transfer framing is
// broken, such as a truncated chunk.
func NewFramingError(message string, cause error) *Error {
	return newError(ErrorTypeParse, statusBadRequest, message, cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(operation string, timeout time.Duration) *Error {
	return newError(ErrorTypeTimeout, statusRequestTimeout,
		fmt.Sprintf("%s timed out after %v", operation, timeout), nil)
}

// NewIOError creates an I/O error.
func NewIOError(operation string, cause error) *Error {
	return newError(ErrorTypeIO, statusInternalServerError,
		fmt.Sprintf("I/O error during %s", operation), cause)
}

// NewInvalidArgumentError creates an error for a bad constructor argument.
func NewInvalidArgumentError(message string) *Error {
	return newError(ErrorTypeInvalidArgument, statusInternalServerError, message, nil)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return ErrorTypeParse
	}
	return ""
}

// StatusCode returns the HTTP status a server should answer with for err.
// Unclassified errors map to 500.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	switch GetErrorType(err) {
	case ErrorTypeInvalidURI, ErrorTypeInvalidValue, ErrorTypeInvalidHeader,
		ErrorTypeInvalidMethod, ErrorTypeMalformedBody, ErrorTypeParse:
		return statusBadRequest
	case ErrorTypeMessageTooLarge:
		return statusEntityTooLarge
	case ErrorTypeUnsupportedVersion:
		return statusVersionNotSupported
	}
	if IsTimeoutError(err) {
		return statusRequestTimeout
	}
	return statusInternalServerError
}
