package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/spencer-dollahite/clitutor/internal/sandbox"
)

// waitDelay bounds how long Wait lingers on open pipes after a kill.
const waitDelay = 500 * time.Millisecond

// Local runs commands with the host's bash, rooted in the sandbox directory.
type Local struct {
	*core
	shell string
}

// NewLocal creates an executor over a provider whose root is a host path.
func NewLocal(p sandbox.Provider, opts Options) *Local {
	return &Local{
		core:  newCore(sandbox.KindLocal, p, opts),
		shell: "bash",
	}
}

// Run executes command in a fresh bash process group.
func (l *Local) Run(ctx context.Context, command string, opts RunOptions) CommandResult {
	return l.run(ctx, command, opts, l.exec)
}

func (l *Local) exec(ctx context.Context, root, script string, timeout time.Duration) rawResult {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, l.shell, "-c", script)
	cmd.Dir = root
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + root,
		"TERM=dumb",
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderr, remaining: maxOutputBytes}

	err := cmd.Run()
	res := rawResult{stdout: stdout.Bytes(), stderr: stderr.Bytes()}
	if err == nil {
		return res
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.timedOut = true
		return res
	}
	if ctx.Err() != nil {
		res.err = fmt.Errorf("cancelled: %w", ctx.Err())
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitStatus(exitErr)
		return res
	}
	res.err = err
	return res
}

// exitStatus maps a signal death to the shell's 128+n convention.
func exitStatus(err *exec.ExitError) int {
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return err.ExitCode()
}

// limitedWriter discards everything past its budget while still reporting
// full writes, so the child never sees EPIPE.
type limitedWriter struct {
	w         *bytes.Buffer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.remaining <= 0 {
		return n, nil
	}
	if len(p) > lw.remaining {
		p = p[:lw.remaining]
	}
	lw.w.Write(p)
	lw.remaining -= len(p)
	return n, nil
}
