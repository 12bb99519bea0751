package nvr

import (
	"errors"
	"fmt"
	"testing"
)

// TestAuthError_Error verifies error message formatting
func TestAuthError_Error(t *testing.T) {
	err := &AuthError{Operation: "Login"}

	expected := "authentication failed during Login"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestOverloadError_Error verifies error message formatting
func TestOverloadError_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        *OverloadError
		wantFormat string
	}{
		{
			name:       "with HTTP status code",
			err:        &OverloadError{StatusCode: 503, Message: "service unavailable"},
			wantFormat: "device overloaded (HTTP 503): service unavailable",
		},
		{
			name:       "rsp code only",
			err:        &OverloadError{Message: "max session"},
			wantFormat: "device overloaded: max session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantFormat {
				t.Errorf("Error() = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

// TestAPIError_Error verifies error message formatting
func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantFormat string
	}{
		{
			name:       "with rsp code",
			err:        &APIError{Cmd: "Search", Code: -9, Detail: "not exist"},
			wantFormat: "device error during Search (rsp -9): not exist",
		},
		{
			name:       "transport failure",
			err:        &APIError{Cmd: "Playback", Detail: "connection reset"},
			wantFormat: "device error during Playback: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantFormat {
				t.Errorf("Error() = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

// TestAuthError_Unwrap verifies error chain traversal
func TestAuthError_Unwrap(t *testing.T) {
	cause := errors.New("invalid password")
	err := &AuthError{Operation: "Login", Err: cause}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	wrapped := fmt.Errorf("context: %w", err)
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is() should find cause in wrapped chain")
	}
}

// TestAPIError_Unwrap verifies error chain traversal
func TestAPIError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &APIError{Cmd: "Search", Detail: "request failed", Err: cause}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	wrapped := fmt.Errorf("context: %w", err)
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is() should find cause in wrapped chain")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"overload", &OverloadError{StatusCode: 503}, true},
		{"wrapped overload", fmt.Errorf("fetch: %w", &OverloadError{Message: "max session"}), true},
		{"busy api error", &APIError{Cmd: "Playback", Code: -1, Detail: "device is busy"}, true},
		{"try-again api error", &APIError{Cmd: "Search", Code: -1, Detail: "please try again later"}, true},
		{"plain api error", &APIError{Cmd: "Playback", Code: -9, Detail: "not exist"}, false},
		{"auth error", &AuthError{Operation: "Login"}, false},
		{"generic error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSessionExpired(t *testing.T) {
	if !IsSessionExpired(fmt.Errorf("fetch: %w", &SessionExpiredError{Operation: "Playback"})) {
		t.Error("IsSessionExpired() should detect wrapped SessionExpiredError")
	}

	if IsSessionExpired(&OverloadError{StatusCode: 503}) {
		t.Error("IsSessionExpired() should not match overload errors")
	}
}
