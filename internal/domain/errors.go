package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures raised by the SmartBear product clients.
// The kind determines how the server boundary reports the failure to the
// MCP client.
type ErrorKind int

const (
	// KindNotFound indicates a required entity (organization, project,
	// error, field set) is absent upstream.
	KindNotFound ErrorKind = iota

	// KindInvalidArgument indicates a caller-supplied value failed
	// validation before any network call was made.
	KindInvalidArgument

	// KindInvalidConfiguration indicates the server configuration cannot
	// satisfy the request (e.g. no current project resolvable and none
	// specified).
	KindInvalidConfiguration

	// KindUpstreamFailure indicates a non-2xx response from a remote API
	// on a required call.
	KindUpstreamFailure
)

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindUpstreamFailure:
		return "upstream_failure"
	default:
		return "unknown"
	}
}

// ClientError is a classified error returned by product clients.
// It carries the failure kind so the response mapper can choose an
// appropriate JSON-RPC error code at the server boundary.
type ClientError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// NotFoundError creates a ClientError of kind KindNotFound.
func NotFoundError(format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgumentError creates a ClientError of kind KindInvalidArgument.
func InvalidArgumentError(format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// InvalidConfigurationError creates a ClientError of kind KindInvalidConfiguration.
func InvalidConfigurationError(format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: KindInvalidConfiguration, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError creates a ClientError of kind KindUpstreamFailure wrapping
// the HTTP-level cause.
func UpstreamError(message string, cause error) *ClientError {
	return &ClientError{Kind: KindUpstreamFailure, Message: message, Cause: cause}
}

// IsKind reports whether err is a ClientError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
