package backend

import "errors"

var (
	// ErrUnreachable is returned when a backend cannot be dialed or spawned.
	ErrUnreachable = errors.New("backend unreachable")

	// ErrHandshake is returned when a backend is reachable but the protocol
	// handshake does not complete.
	ErrHandshake = errors.New("backend handshake failed")

	// ErrUnauthorized is returned when a remote backend rejects the
	// connection for lack of credentials.
	ErrUnauthorized = errors.New("backend unauthorized")

	// ErrSessionFailed is returned when calling through a session whose
	// transport has faulted.
	ErrSessionFailed = errors.New("backend session failed")

	// ErrNotOpen is returned when a session is used before Open succeeded.
	ErrNotOpen = errors.New("backend session not open")
)
