package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent failures of the authentication core.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Configuration Errors.

	// ErrNotConfigured indicates required client or account fields are missing.
	// Never retried; the user has to complete the settings first.
	ErrNotConfigured = errors.New("client not configured")

	// Callback Errors.

	// ErrInvalidCallback indicates a malformed redirect, a scheme/host mismatch
	// or a missing authorization code. Terminal for the flow attempt.
	ErrInvalidCallback = errors.New("invalid oauth callback")

	// Exchange and Refresh Errors.

	// ErrTokenExchangeFailed indicates the authorization code exchange failed.
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrTokenRefreshFailed indicates the refresh-token exchange failed.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrNoRefreshToken indicates a refresh was required but no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrAuthenticationFailed indicates the stored credentials could not be
	// renewed and have been purged. The user must authenticate again.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNotAuthenticated indicates no token set is stored.
	ErrNotAuthenticated = errors.New("not authenticated")

	// Transport and Request Errors.

	// ErrRequestFailed indicates a transport failure or a non-2xx response other than 401.
	ErrRequestFailed = errors.New("request failed")

	// ErrUnauthorized indicates the API rejected the request again after one refresh.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidResponse indicates a response body could not be decoded.
	ErrInvalidResponse = errors.New("invalid response")
)

// HTTPError carries the status and raw body of a failed call.
// It unwraps to Kind, so errors.Is(err, ErrRequestFailed) and friends work.
type HTTPError struct {
	Kind       error
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *HTTPError) Error() string {
	msg := e.Kind.Error()
	if e.Method != "" {
		msg = fmt.Sprintf("%s: %s %s", msg, e.Method, e.URL)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Body) > 0 {
		msg = fmt.Sprintf("%s: body %q", msg, truncate(e.Body, 512))
	}
	return msg
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *HTTPError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// OAuthError is an error response from an authorization server,
// either on the redirect (error=...) or from the token endpoint.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	StatusCode  int    `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("oauth error: %s", e.Code)
}

// UserMessage maps an error onto the guidance shown to a user:
// configuration errors point at settings, authentication errors ask for a
// new login and request failures are presented as retryable.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "The client is not configured. Set client id, secret, account and redirect URI first."
	case errors.Is(err, ErrInvalidCallback):
		return "The authorization callback was rejected. Please start the login again."
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrTokenExchangeFailed),
		errors.Is(err, ErrUnauthorized):
		return "Your session is no longer valid. Please log in again."
	case errors.Is(err, ErrInvalidResponse):
		return "The service returned data that could not be read."
	case errors.Is(err, ErrRequestFailed):
		return "The request failed. Please try again."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
