// Package executor runs single learner commands headlessly inside a sandbox
// and reports their output as values.
//
// A command goes through the safety filter first, then runs in a fresh
// bash with a wrapper that changes into the tracked working directory and,
// when requested, reports the final directory through a sentinel appended
// to stdout. Failures never surface as Go errors: timeouts, refusals and
// spawn problems are all described by the returned CommandResult.
package executor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/metrics"
	"github.com/spencer-dollahite/clitutor/internal/safety"
	"github.com/spencer-dollahite/clitutor/internal/sandbox"
)

// DefaultTimeout bounds a run when RunOptions.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// maxOutputBytes caps each captured stream.
const maxOutputBytes = 1 << 20

// CommandResult describes one finished command.
type CommandResult struct {
	Command     string
	Stdout      string
	Stderr      string
	ExitCode    int
	TimedOut    bool
	Blocked     bool
	BlockReason string
}

// Success reports a zero exit that was neither blocked nor timed out.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0 && !r.Blocked && !r.TimedOut
}

// RunOptions controls a single run.
type RunOptions struct {
	// Timeout bounds the run. Zero means DefaultTimeout.
	Timeout time.Duration
	// TrackCwd records the directory the command finished in.
	TrackCwd bool
}

// DefaultRunOptions returns a 10 second timeout with cwd tracking.
func DefaultRunOptions() RunOptions {
	return RunOptions{Timeout: DefaultTimeout, TrackCwd: true}
}

func (o RunOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Executor runs commands in a sandbox.
type Executor interface {
	// Run executes command and never returns an error; see CommandResult.
	Run(ctx context.Context, command string, opts RunOptions) CommandResult
	// CheckSafety returns the refusal reason and true if command is blocked.
	CheckSafety(command string) (string, bool)
	// ResetCwd moves the tracked directory back to the sandbox root.
	ResetCwd()
	Cwd() string
	Root() string
	// PromptMarkup renders a styled prompt for the tracked directory.
	PromptMarkup() string
}

// Options configures an executor.
type Options struct {
	// Filter defaults to safety.Default().
	Filter  *safety.Filter
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// rawResult is what a backend reports before the shared interpretation.
type rawResult struct {
	stdout   []byte
	stderr   []byte
	exitCode int
	timedOut bool
	err      error
}

type backend func(ctx context.Context, root, script string, timeout time.Duration) rawResult

// core holds what both executors share: cwd tracking, safety and
// result interpretation.
type core struct {
	kind     sandbox.Kind
	provider sandbox.Provider
	filter   *safety.Filter
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu  sync.Mutex
	cwd string
}

func newCore(kind sandbox.Kind, p sandbox.Provider, opts Options) *core {
	c := &core{
		kind:     kind,
		provider: p,
		filter:   opts.Filter,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	if c.filter == nil {
		c.filter = safety.Default()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

func (c *core) CheckSafety(command string) (string, bool) {
	v := c.filter.Classify(command)
	return v.Reason, v.Blocked
}

func (c *core) Root() string {
	return c.provider.Root()
}

func (c *core) Cwd() string {
	c.mu.Lock()
	cwd := c.cwd
	c.mu.Unlock()
	if cwd == "" {
		return c.provider.Root()
	}
	return cwd
}

func (c *core) ResetCwd() {
	c.mu.Lock()
	c.cwd = ""
	c.mu.Unlock()
}

func (c *core) setCwd(dir string) {
	c.mu.Lock()
	c.cwd = dir
	c.mu.Unlock()
}

func (c *core) PromptMarkup() string {
	return Prompt(c.Cwd(), c.Root())
}

func (c *core) run(ctx context.Context, command string, opts RunOptions, exec backend) CommandResult {
	kind := string(c.kind)

	if v := c.filter.Classify(command); v.Blocked {
		c.metrics.ObserveBlocked(v.Layer.String())
		c.metrics.ObserveRun(kind, metrics.OutcomeBlocked, 0)
		c.log.Info("command blocked",
			zap.String("command", command),
			zap.String("layer", v.Layer.String()),
		)
		return CommandResult{
			Command:     command,
			Stderr:      "Blocked: " + v.Reason,
			ExitCode:    1,
			Blocked:     true,
			BlockReason: v.Reason,
		}
	}

	root := c.provider.Root()
	if root == "" {
		c.metrics.ObserveRun(kind, metrics.OutcomeError, 0)
		return errorResult(command, sandbox.ErrNotInitialized.Error())
	}

	timeout := opts.timeout()
	script := wrap(command, c.Cwd(), root, opts.TrackCwd)

	start := time.Now()
	raw := exec(ctx, root, script, timeout)
	elapsed := time.Since(start)

	switch {
	case raw.timedOut:
		c.metrics.ObserveRun(kind, metrics.OutcomeTimedOut, elapsed)
		c.log.Warn("command timed out",
			zap.String("command", command),
			zap.Duration("timeout", timeout),
		)
		return CommandResult{
			Command:  command,
			Stdout:   stripCwd(string(raw.stdout)),
			Stderr:   "Command timed out after " + formatSeconds(timeout) + " seconds.",
			ExitCode: 1,
			TimedOut: true,
		}
	case raw.err != nil:
		c.metrics.ObserveRun(kind, metrics.OutcomeError, elapsed)
		c.log.Warn("command failed to run", zap.String("command", command), zap.Error(raw.err))
		return errorResult(command, raw.err.Error())
	}

	stdout := string(raw.stdout)
	if opts.TrackCwd {
		var dir string
		stdout, dir = parseCwd(stdout)
		if dir != "" {
			c.setCwd(dir)
		}
	}

	outcome := metrics.OutcomeOK
	if raw.exitCode != 0 {
		outcome = metrics.OutcomeFailed
	}
	c.metrics.ObserveRun(kind, outcome, elapsed)
	c.log.Debug("command finished",
		zap.String("command", command),
		zap.Int("exit_code", raw.exitCode),
		zap.Duration("duration", elapsed),
	)

	return CommandResult{
		Command:  command,
		Stdout:   stdout,
		Stderr:   string(raw.stderr),
		ExitCode: raw.exitCode,
	}
}

func errorResult(command, diag string) CommandResult {
	return CommandResult{
		Command:  command,
		Stderr:   "Error: " + diag,
		ExitCode: 1,
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
