// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Circuit breaker errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Upstream feed errors.
var (
	// ErrUpstreamBlocked indicates a transport was denied by the upstream service
	// (access-denial status or timeout). Recoverable through a fallback transport.
	ErrUpstreamBlocked = errors.New("upstream blocked")

	// ErrUpstreamExhausted indicates every configured transport was denied.
	ErrUpstreamExhausted = errors.New("upstream exhausted: all transports blocked")

	// ErrMalformedUpstream indicates the upstream payload could not be decoded.
	ErrMalformedUpstream = errors.New("malformed upstream payload")
)

// Synthesis errors.
var (
	// ErrInsufficientData indicates there were not enough posts to run an analysis.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrBackendParse indicates the generative backend response had no recoverable JSON object.
	ErrBackendParse = errors.New("backend response parse failure")

	// ErrHighlightsShape indicates the highlights block did not match the expected shape.
	ErrHighlightsShape = errors.New("highlights shape mismatch")
)

// Event extraction errors.
var (
	// ErrInvalidEvent indicates an extracted event is missing a title or has an unparseable date.
	ErrInvalidEvent = errors.New("invalid extracted event")
)

// Credit errors.
var (
	// ErrInsufficientCredit indicates the caller's balance does not cover the cost.
	ErrInsufficientCredit = errors.New("insufficient credit balance")
)

// Storage errors.
var (
	// ErrDuplicatePost indicates a post with the same upstream ID already exists.
	ErrDuplicatePost = errors.New("duplicate post")

	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrTickerNotFound indicates a ticker could not be found.
	ErrTickerNotFound = errors.New("ticker not found")
)

// Client and connection errors.
var (
	// ErrClientDisabled indicates a client or feature is disabled.
	ErrClientDisabled = errors.New("client disabled")

	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is a convenience wrapper around errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
