package oauth

import "errors"

var (
	// ErrNoPendingFlow is returned when AwaitCode is called with no
	// authorization in flight for the backend.
	ErrNoPendingFlow = errors.New("oauth: no pending authorization")

	// ErrTimeout is returned when the loopback callback does not fire
	// within the await window.
	ErrTimeout = errors.New("oauth: authorization timed out")

	// ErrDenied is returned when the authorization server redirects back
	// with an error response.
	ErrDenied = errors.New("oauth: authorization denied")

	// ErrNoVerifier is returned when the staged PKCE verifier is missing
	// at exchange time.
	ErrNoVerifier = errors.New("oauth: code verifier not staged")

	// ErrRegistration is returned when dynamic client registration fails.
	ErrRegistration = errors.New("oauth: dynamic registration failed")
)
