package carrier

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a carrier failure.
type Kind string

const (
	// KindUnauthenticated means the carrier rejected the credentials.
	KindUnauthenticated Kind = "unauthenticated"
	// KindInvalidRequest means the request was rejected and must be fixed by the caller.
	KindInvalidRequest Kind = "invalid_request"
	// KindRemoteUnavailable means the carrier could not be reached or failed transiently.
	KindRemoteUnavailable Kind = "remote_unavailable"
	// KindUnexpectedResponse means the carrier answered with something we cannot interpret.
	KindUnexpectedResponse Kind = "unexpected_response"
)

// Error represents an error from a carrier API.
type Error struct {
	Carrier    Code
	Kind       Kind
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Carrier, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Carrier, e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a new carrier Error.
func NewError(carrier Code, kind Kind, message string) *Error {
	return &Error{
		Carrier: carrier,
		Kind:    kind,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// Kind sentinels for errors.Is checks.
var (
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrRemoteUnavailable  = &Error{Kind: KindRemoteUnavailable}
	ErrUnexpectedResponse = &Error{Kind: KindUnexpectedResponse}
)

// Registry errors.
var (
	// ErrUnknownCarrier indicates the carrier code is not part of the system.
	ErrUnknownCarrier = errors.New("unknown carrier")

	// ErrNotImplemented indicates the carrier is known but has no adapter yet.
	ErrNotImplemented = errors.New("carrier not implemented")

	// ErrAdapterConstruction indicates the adapter could not be built from the credentials.
	ErrAdapterConstruction = errors.New("adapter construction failed")
)

// KindFromStatus maps a non-2xx HTTP status to an error kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthenticated
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return KindRemoteUnavailable
	case status >= 500:
		return KindRemoteUnavailable
	case status >= 400:
		return KindInvalidRequest
	default:
		return KindUnexpectedResponse
	}
}

// IsRetryable returns true if the error is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}

// IsGone reports whether the carrier answered that the resource no longer exists
// or is already in its final state (404, 409, 410).
func IsGone(err error) bool {
	var carrierErr *Error
	if !errors.As(err, &carrierErr) {
		return false
	}
	switch carrierErr.StatusCode {
	case http.StatusNotFound, http.StatusConflict, http.StatusGone:
		return true
	}
	return false
}
