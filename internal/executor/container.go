package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/sandbox"
	"github.com/spencer-dollahite/clitutor/internal/sandbox/docker"
)

// timeoutExitCode is what coreutils timeout exits with when it fires.
const timeoutExitCode = 124

// driverGrace is added to the in-container timeout for the exec round trip.
const driverGrace = 2 * time.Second

// ContainerSandbox is a provider that can exec commands in its container.
// *sandbox.Container implements it.
type ContainerSandbox interface {
	sandbox.Provider
	Exec(ctx context.Context, opts docker.ExecOptions) (docker.ExecResult, error)
}

// execWrapper runs the command under coreutils timeout in the background
// and records its pid, which is also its process group, in $1 so a
// cancelled run can kill the whole tree. $2 is the limit in seconds and $3
// the script.
const execWrapper = `timeout -k 1 "$2" bash -c "$3" & pid=$!
echo "$pid" > "$1"
wait "$pid"; rc=$?
rm -f "$1"
exit "$rc"`

// killScript kills the process group recorded by execWrapper.
const killScript = `[ -f "$1" ] && kill -KILL -- -"$(cat "$1")" 2>/dev/null; rm -f "$1"`

// Container runs commands inside the sandbox container.
type Container struct {
	*core
	box ContainerSandbox
	now func() time.Time
}

// NewContainer creates an executor over a container sandbox.
func NewContainer(box ContainerSandbox, opts Options) *Container {
	return &Container{
		core: newCore(sandbox.KindContainer, box, opts),
		box:  box,
		now:  time.Now,
	}
}

// Run executes command through the container's exec primitive. The
// in-container timeout kills the process tree it started; a cancelled run
// kills it explicitly.
func (c *Container) Run(ctx context.Context, command string, opts RunOptions) CommandResult {
	return c.run(ctx, command, opts, c.exec)
}

func (c *Container) exec(ctx context.Context, root, script string, timeout time.Duration) rawResult {
	secs := strconv.Itoa(int(math.Ceil(timeout.Seconds())))
	pidFile := "/tmp/.clitutor-exec-" + uuid.NewString() + ".pid"

	runCtx, cancel := context.WithTimeout(ctx, timeout+driverGrace)
	defer cancel()

	started := c.now()
	res, err := c.box.Exec(runCtx, docker.ExecOptions{
		Cmd:     []string{"bash", "-c", execWrapper, "clitutor-exec", pidFile, secs, script},
		WorkDir: root,
		Env:     []string{"TERM=dumb", "HOME=" + root},
	})
	elapsed := c.now().Sub(started)
	out := rawResult{stdout: capOutput(res.Stdout), stderr: capOutput(res.Stderr)}

	switch {
	case err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		c.kill(pidFile)
		out.timedOut = true
	case err != nil && ctx.Err() != nil:
		c.kill(pidFile)
		out.err = fmt.Errorf("cancelled: %w", ctx.Err())
	case err != nil:
		out.err = err
	case res.ExitCode == timeoutExitCode && elapsed >= timeout:
		// A command that exits 124 on its own before the limit keeps its
		// status.
		out.timedOut = true
	default:
		out.exitCode = res.ExitCode
	}
	return out
}

// kill stops the process group of an abandoned run.
func (c *Container) kill(pidFile string) {
	ctx, cancel := context.WithTimeout(context.Background(), driverGrace)
	defer cancel()
	_, err := c.box.Exec(ctx, docker.ExecOptions{
		Cmd: []string{"sh", "-c", killScript, "clitutor-kill", pidFile},
	})
	if err != nil {
		c.log.Warn("failed to kill abandoned command", zap.String("pid_file", pidFile), zap.Error(err))
	}
}

func capOutput(b []byte) []byte {
	if len(b) > maxOutputBytes {
		return b[:maxOutputBytes]
	}
	return b
}
