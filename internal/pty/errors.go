package pty

import "errors"

// Sentinel errors for the pty package.
var (
	// ErrAlreadySpawned is returned when Spawn is called on a running session.
	ErrAlreadySpawned = errors.New("pty session already spawned")

	// ErrNotRunning is returned when an operation needs a running session.
	ErrNotRunning = errors.New("pty session not running")

	// ErrStopped is returned when Spawn is called after Stop.
	ErrStopped = errors.New("pty session stopped")

	// ErrEmptyCommand is returned when SpawnCommand gets no argv.
	ErrEmptyCommand = errors.New("empty command")
)
