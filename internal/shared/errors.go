package shared

import (
	"fmt"
	"strings"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed          = fmt.Errorf("authentication failed")
	ErrNotAuthenticated    = fmt.Errorf("not authenticated")
	ErrTokenExpired        = fmt.Errorf("access token expired")
	ErrTokenRejected       = fmt.Errorf("access token rejected")
	ErrRefreshFailed       = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken      = fmt.Errorf("no refresh token available")
	ErrRefreshUnsupported  = fmt.Errorf("grant does not support refresh")
	ErrMissingScope        = fmt.Errorf("missing required scope")
	ErrCredentialsNotFound = fmt.Errorf("stored credentials not found")
	ErrTimeout             = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrTransport          = fmt.Errorf("transport failure")
	ErrDeserialize        = fmt.Errorf("failed to decode response")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// TransportError reports a network, DNS or TLS failure while talking to Spotify.
//
// It matches [ErrTransport] with [errors.Is].
type TransportError struct {
	Op  string // token, GET /tracks/{id}, ...
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// AuthorizationError reports credentials the accounts service or API rejected.
//
// Code and Description carry the OAuth error fields when the service sent them.
// It matches [ErrAuthFailed] with [errors.Is].
type AuthorizationError struct {
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *AuthorizationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrAuthFailed.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, " (%s)", e.Description)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

func (e *AuthorizationError) Is(target error) bool { return target == ErrAuthFailed }

// ScopeError is returned before any network access when a request needs scopes the client was not granted.
type ScopeError struct {
	Missing []string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingScope, strings.Join(e.Missing, ", "))
}

func (e *ScopeError) Is(target error) bool { return target == ErrMissingScope }

// APIError is a non-success response the executor does not recover from.
//
// Message is taken from Spotify's {"error": {"status", "message"}} body when present.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: status %d: %s", ErrAPIRequest, e.Status, e.Message)
	}
	return fmt.Sprintf("%v: status %d", ErrAPIRequest, e.Status)
}

func (e *APIError) Is(target error) bool { return target == ErrAPIRequest }
