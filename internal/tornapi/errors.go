package tornapi

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the upstream resource legitimately does not
// exist (HTTP 404 or an empty collection). It is a valid state, not a
// failure, and is never retried.
var ErrNotFound = errors.New("tornapi: resource not found")

// AuthError reports a non-retryable authentication/permission failure
// (HTTP 403 or the API error envelope's key-related codes). Monitors are
// expected to halt on it rather than keep polling.
type AuthError struct {
	Code    int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "tornapi: authentication failed"
	}
	return fmt.Sprintf("tornapi: authentication failed: %s (code %d)", e.Message, e.Code)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// APIError is the error envelope Torn returns inside an HTTP 200 body.
// Anything that is not an auth failure is treated as transient.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tornapi: api error %d: %s", e.Code, e.Message)
}

// StatusError is a non-200 HTTP response that survived retries.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tornapi: http %d for %s", e.StatusCode, e.URL)
}

// Envelope error codes that indicate a key problem (invalid, inactive, or
// insufficient access level). See the public API docs.
func isAuthCode(code int) bool {
	switch code {
	case 1, 2, 10, 13, 16:
		return true
	}
	return false
}
