package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
)

// Kind classifies an AuthError once, at the HTTP boundary. The distinction
// between KindNetwork and the server-confirmed kinds is load-bearing: a
// client that cannot tell "credentials are actually invalid" apart from "the
// network blipped" either logs users out on flaky connections or never logs
// out users whose session truly expired.
type Kind int

const (
	// KindUnknown is an unclassified failure.
	KindUnknown Kind = iota

	// KindNetwork is a transport-level failure with no HTTP response.
	// Never destroys credentials.
	KindNetwork

	// KindCredentials is a rejected login or registration attempt.
	KindCredentials

	// KindTokenExpired is a 401 for an access token the server rejected.
	KindTokenExpired

	// KindRefreshInvalid is a server-confirmed invalid or expired refresh
	// token. The only kind that destroys stored credentials.
	KindRefreshInvalid

	// KindDenied is a role/permission mismatch (403), distinct from an
	// authentication failure. Never logs the user out.
	KindDenied

	// KindServer is a 5xx; credentials preserved, retryable.
	KindServer

	// KindProtocol is a response the client could not make sense of.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindCredentials:
		return "credentials"
	case KindTokenExpired:
		return "token_expired"
	case KindRefreshInvalid:
		return "refresh_invalid"
	case KindDenied:
		return "denied"
	case KindServer:
		return "server"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Server codes that confirm the refresh token itself is dead, as opposed to
// a generic 401.
const (
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenVersionStale   = "TOKEN_VERSION_STALE"
)

// AuthError is the one discriminated error type for everything that can go
// wrong talking to the backend. Constructed here, classified once, never
// re-interpreted downstream.
type AuthError struct {
	// Kind is the classification; see the Kind constants.
	Kind Kind

	// Status is the HTTP status code, 0 for transport failures.
	Status int

	// Code is the server's machine-readable error code when present.
	Code string

	// Message is human-readable.
	Message string

	// handled flags that a notifier already surfaced this error, so the
	// catch-all handler must not show it again.
	handled atomic.Bool

	cause error
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth: %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("auth: %s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.cause }

// Transient reports whether retrying without changing anything could
// succeed.
func (e *AuthError) Transient() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// MarkHandled records that this error has been shown to the user. Returns
// false if it was already marked, so the first caller wins.
func (e *AuthError) MarkHandled() bool {
	return e.handled.CompareAndSwap(false, true)
}

// Handled reports whether a handler already surfaced this error.
func (e *AuthError) Handled() bool { return e.handled.Load() }

// KindOf extracts the classification from any error chain. Unclassified
// errors report KindUnknown.
func KindOf(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// transportError wraps a failure that produced no HTTP response.
func transportError(err error) *AuthError {
	msg := "network unreachable"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &AuthError{
		Kind:    KindNetwork,
		Message: msg,
		cause:   err,
	}
}

// serverErrorBody is the superset of error body shapes the backend emits.
// Older endpoints return {code,message}, newer ones nest under "error", and
// a few return a bare message string.
type serverErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify builds an AuthError from a non-2xx response.
// login reshapes 400/401 into KindCredentials for the credential-presenting
// endpoints.
func classify(resp *http.Response, body []byte, login bool) *AuthError {
	code, message := parseErrorBody(body)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	ae := &AuthError{
		Status:  resp.StatusCode,
		Code:    code,
		Message: message,
	}

	switch {
	case resp.StatusCode >= 500:
		ae.Kind = KindServer
	case resp.StatusCode == http.StatusForbidden:
		ae.Kind = KindDenied
	case resp.StatusCode == http.StatusUnauthorized:
		switch {
		case login:
			ae.Kind = KindCredentials
		case code == CodeInvalidRefreshToken || code == CodeRefreshTokenExpired || code == CodeTokenVersionStale:
			ae.Kind = KindRefreshInvalid
		default:
			ae.Kind = KindTokenExpired
		}
	case resp.StatusCode == http.StatusBadRequest && login:
		ae.Kind = KindCredentials
	default:
		ae.Kind = KindProtocol
	}

	return ae
}

func parseErrorBody(body []byte) (code, message string) {
	if len(body) == 0 {
		return "", ""
	}

	var parsed serverErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != nil && (parsed.Error.Code != "" || parsed.Error.Message != "") {
			return parsed.Error.Code, parsed.Error.Message
		}
		if parsed.Code != "" || parsed.Message != "" {
			return parsed.Code, parsed.Message
		}
	}

	var plain string
	if err := json.Unmarshal(body, &plain); err == nil {
		return "", plain
	}

	return "", string(body)
}
