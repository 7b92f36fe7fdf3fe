package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable reports a transport failure, timeout, 5xx or open breaker. Callers may retry.
	ErrUnavailable = errors.New("backend: unavailable")
	// ErrMalformedResponse reports a body that does not match the expected envelope or payload shape.
	ErrMalformedResponse = errors.New("backend: malformed response")
	// ErrNotFound reports a 404 from the backend.
	ErrNotFound = errors.New("backend: not found")
	// ErrUnauthorized reports a 401 or 403 from the backend.
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrRejected reports a non-success HTTP status or envelope code.
	ErrRejected = errors.New("backend: request rejected")
)

// ResponseError carries the HTTP status and envelope fields of a failed call.
type ResponseError struct {
	Op         string
	HTTPStatus int
	Code       int
	Message    string
	kind       error
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s: http %d code %d: %s", e.Op, e.HTTPStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("backend %s: http %d code %d", e.Op, e.HTTPStatus, e.Code)
}

// Unwrap exposes the sentinel classification.
func (e *ResponseError) Unwrap() error { return e.kind }

func classifyStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
