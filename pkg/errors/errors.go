// Package errors defines the typed errors surfaced by the stream client.
// Failures never cross a session boundary as panics; callers observe them
// through these values and render their own fallback.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeTransport      ErrorType = "transport_error"  // socket-level failure, retries continue
	ErrorTypeProtocol       ErrorType = "protocol_error"   // malformed patch or message, last-good state kept
	ErrorTypeStale          ErrorType = "stale_connection" // no traffic within threshold, silent reconnect
	ErrorTypeRetryExhausted ErrorType = "retry_exhausted"  // reconnect budget spent, manual reload needed
	ErrorTypeRequest        ErrorType = "request_error"    // REST fetch failed
	ErrorTypeFinished       ErrorType = "stream_finished"  // terminal, not a failure
)

// StreamError represents a structured client error
type StreamError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewStreamError creates a new stream error
func NewStreamError(errorType ErrorType, message string, details ...string) *StreamError {
	err := &StreamError{
		Type:    errorType,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

func NewTransportError(cause error) *StreamError {
	return NewStreamError(ErrorTypeTransport, "connection failed", cause.Error())
}

func NewProtocolError(message string, details ...string) *StreamError {
	return NewStreamError(ErrorTypeProtocol, message, details...)
}

func NewRetryExhaustedError(attempts int) *StreamError {
	return NewStreamError(ErrorTypeRetryExhausted,
		fmt.Sprintf("connection lost after %d attempts, refresh to retry", attempts))
}

func NewRequestError(message string, details ...string) *StreamError {
	return NewStreamError(ErrorTypeRequest, message, details...)
}

// HasType reports whether err is (or wraps) a StreamError of the given type.
func HasType(err error, t ErrorType) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Type == t
	}
	return false
}

// IsRetryExhausted reports whether err is the fatal give-up error.
func IsRetryExhausted(err error) bool {
	return HasType(err, ErrorTypeRetryExhausted)
}
