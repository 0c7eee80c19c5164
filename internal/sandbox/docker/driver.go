// Package docker drives the container runtime that backs container
// sandboxes. The engine never links a runtime in-process: every operation
// crosses an external boundary, either the docker CLI or the Engine API
// socket. A non-zero result from that boundary is returned as an error.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// RunOptions describes a detached sandbox container.
type RunOptions struct {
	Image           string
	Name            string
	Hostname        string
	NetworkDisabled bool
	Labels          map[string]string
}

// ExecOptions describes a command run inside a container.
type ExecOptions struct {
	Cmd     []string
	User    string
	WorkDir string
	Env     []string

	// Stdin, when set, is streamed to the command and then closed.
	Stdin io.Reader
}

// ExecResult is the outcome of an exec. A non-zero ExitCode is a result,
// not an error.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Driver is the container runtime boundary.
type Driver interface {
	ImageExists(ctx context.Context, image string) (bool, error)
	BuildImage(ctx context.Context, image, contextDir string) error
	Run(ctx context.Context, opts RunOptions) (string, error)
	Exec(ctx context.Context, id string, opts ExecOptions) (ExecResult, error)
	CopyTo(ctx context.Context, id, src, dest string) error
	Remove(ctx context.Context, id string, force bool) error
	Running(ctx context.Context, id string) (bool, error)
	Close() error
}

// CommandError is returned when a docker CLI invocation fails.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("docker %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("docker %s: %v: %s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// New returns the driver named by kind: "cli" (default) or "api".
func New(kind, binary string) (Driver, error) {
	switch kind {
	case "", "cli":
		return NewCLIDriver(binary), nil
	case "api":
		return NewAPIDriver()
	default:
		return nil, fmt.Errorf("unknown docker driver %q", kind)
	}
}
