package nvr

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError represents a failed login or an operation rejected for lack of a
// valid session token.
type AuthError struct {
	Operation string // the device command that required authentication
	Err       error  // underlying error, if any
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// OverloadError represents the device refusing work under concurrent load:
// 503-style responses, "busy" bodies, or the max-session rsp code. These are
// expected during parallel downloads and are always worth retrying.
type OverloadError struct {
	StatusCode int    // HTTP status code, if applicable (0 for rsp-code errors)
	Message    string // message from the device, if any
}

func (e *OverloadError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("device overloaded (HTTP %d): %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("device overloaded: %s", e.Message)
}

// SessionExpiredError represents an operation rejected because the session
// token lease ran out. The owner can re-login and try again.
type SessionExpiredError struct {
	Operation string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired during %s", e.Operation)
}

// APIError represents any other command failure reported by the device.
type APIError struct {
	Cmd    string // the device command that failed
	Code   int    // device rsp code (0 for transport-level failures)
	Detail string // message from the device
	Err    error  // underlying error, if any
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("device error during %s (rsp %d): %s", e.Cmd, e.Code, e.Detail)
	}

	return fmt.Sprintf("device error during %s: %s", e.Cmd, e.Detail)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an expected under-load failure that
// should be retried with backoff rather than surfaced.
func IsTransient(err error) bool {
	var oe *OverloadError
	if errors.As(err, &oe) {
		return true
	}

	var ae *APIError
	if errors.As(err, &ae) {
		detail := strings.ToLower(ae.Detail)

		return strings.Contains(detail, "busy") || strings.Contains(detail, "please try again")
	}

	return false
}

// IsSessionExpired reports whether err means the session token is no longer
// accepted and a re-login may succeed.
func IsSessionExpired(err error) bool {
	var se *SessionExpiredError

	return errors.As(err, &se)
}
