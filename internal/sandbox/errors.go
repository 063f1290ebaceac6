package sandbox

import "errors"

var (
	// ErrRuntimeMissing is returned when no container runtime is found on
	// PATH.
	ErrRuntimeMissing = errors.New("sandbox: container runtime not found")

	// ErrUnhealthy is returned when the container or the in-container
	// proxy cannot be contacted. The next execute attempts a fresh
	// sandbox.
	ErrUnhealthy = errors.New("sandbox: unhealthy")

	// ErrNotRunning is returned when an operation requires a running
	// container and none exists.
	ErrNotRunning = errors.New("sandbox: container not running")
)
