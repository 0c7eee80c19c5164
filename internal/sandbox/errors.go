package sandbox

import "errors"

// Sentinel errors for the sandbox package.
var (
	// ErrNotInitialized is returned when an operation runs before Create.
	ErrNotInitialized = errors.New("sandbox not created")

	// ErrNotFound is returned when a file does not exist in the sandbox.
	ErrNotFound = errors.New("file not found in sandbox")

	// ErrOutsideRoot is returned when a relative path escapes the sandbox root.
	ErrOutsideRoot = errors.New("path escapes sandbox root")
)
