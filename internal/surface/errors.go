package surface

import "errors"

var (
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("surface closed")

	// ErrRunning is returned when Run is called twice.
	ErrRunning = errors.New("surface already running")
)
