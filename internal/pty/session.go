// Package pty owns a shell process attached to a pseudo-terminal.
//
// A Session moves through Unspawned, Running and Stopped. While running, a
// reader goroutine delivers output chunks on Output and a writer goroutine
// drains input so Write never blocks. When the shell goes away the reader
// sends a single disconnect chunk and closes the channel.
package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/spencer-dollahite/clitutor/internal/metrics"
)

const (
	readSize    = 64 * 1024
	writeQueue  = 1024
	outputQueue = 256

	// killAfter is how long a stopped shell may linger before SIGKILL.
	killAfter = 2 * time.Second
)

// State is the lifecycle state of a session.
type State int

const (
	StateUnspawned State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnspawned:
		return "unspawned"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Chunk is one read from the PTY. The last chunk a session delivers has
// Disconnected set.
type Chunk struct {
	Data         []byte
	Disconnected bool
	// Err is the read error that ended the session, if any.
	Err error
}

// Options configures a session.
type Options struct {
	// Shell is the interactive shell for Spawn. Defaults to "bash".
	Shell string
	// Env is appended to the inherited environment.
	Env []string
	// Dir is the working directory of the spawned process.
	Dir string

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Session is one PTY-attached process.
type Session struct {
	id      string
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	ptmx   *os.File
	rows   int
	cols   int
	out    chan Chunk
	writes chan []byte
	done   chan struct{}
}

// NewSession creates an unspawned session.
func NewSession(opts Options) *Session {
	if opts.Shell == "" {
		opts.Shell = "bash"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		opts:    opts,
		log:     log.With(zap.String("session", id)),
		metrics: opts.Metrics,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Spawn starts the interactive shell with initScript as its rcfile.
func (s *Session) Spawn(initScript string, rows, cols int) error {
	return s.SpawnCommand([]string{s.opts.Shell, "--rcfile", initScript}, nil, "", rows, cols)
}

// SpawnCommand starts argv on a new PTY. The PTY slave becomes the
// process's controlling terminal and its three standard streams.
func (s *Session) SpawnCommand(argv, env []string, dir string, rows, cols int) error {
	if len(argv) == 0 {
		return ErrEmptyCommand
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning:
		return ErrAlreadySpawned
	case StateStopped:
		return ErrStopped
	}

	rows, cols = clampSize(rows, cols)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), s.opts.Env...)
	cmd.Env = append(cmd.Env, env...)
	cmd.Dir = s.opts.Dir
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	ptmx, err := pty.StartWithAttrs(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}, cmd.SysProcAttr)
	if err != nil {
		return fmt.Errorf("starting %s on pty: %w", argv[0], err)
	}

	s.cmd = cmd
	s.ptmx = ptmx
	s.rows, s.cols = rows, cols
	s.out = make(chan Chunk, outputQueue)
	s.writes = make(chan []byte, writeQueue)
	s.done = make(chan struct{})
	s.state = StateRunning

	go s.readLoop(ptmx, s.out, s.done)
	go s.writeLoop(ptmx, s.writes, s.done)

	s.metrics.SessionStarted()
	s.log.Info("pty session spawned",
		zap.Strings("argv", argv),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("rows", rows),
		zap.Int("cols", cols),
	)
	return nil
}

func clampSize(rows, cols int) (int, int) {
	if rows < 2 {
		rows = 2
	}
	if cols < 10 {
		cols = 10
	}
	return rows, cols
}

func (s *Session) readLoop(f *os.File, out chan<- Chunk, done <-chan struct{}) {
	defer close(out)
	buf := make([]byte, readSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case out <- Chunk{Data: data}:
			case <-done:
				return
			}
		}
		if err != nil || n == 0 {
			if errors.Is(err, os.ErrClosed) {
				err = nil
			}
			s.log.Debug("pty reader finished", zap.Error(err))
			select {
			case out <- Chunk{Disconnected: true, Err: err}:
			case <-done:
			}
			return
		}
	}
}

func (s *Session) writeLoop(f *os.File, writes <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case p := <-writes:
			if _, err := f.Write(p); err != nil {
				s.log.Debug("pty write failed", zap.Error(err))
			}
		case <-done:
			return
		}
	}
}

// Start delivers output and the disconnect through callbacks instead of
// Output. Only one consumer may drain a session.
func (s *Session) Start(onOutput func([]byte), onDisconnect func()) error {
	out := s.Output()
	if out == nil {
		return ErrNotRunning
	}
	go func() {
		for c := range out {
			if c.Disconnected {
				if onDisconnect != nil {
					onDisconnect()
				}
				continue
			}
			if onOutput != nil {
				onOutput(c.Data)
			}
		}
	}()
	return nil
}

// Output returns the chunk channel, or nil before Spawn.
func (s *Session) Output() <-chan Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	return s.out
}

// Write queues p for the shell. Errors and overflow are dropped.
func (s *Session) Write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || len(p) == 0 {
		return
	}
	data := make([]byte, len(p))
	copy(data, p)
	select {
	case s.writes <- data:
	default:
		s.log.Warn("pty write queue full, dropping input", zap.Int("bytes", len(p)))
	}
}

// WriteString queues s for the shell.
func (s *Session) WriteString(text string) {
	s.Write([]byte(text))
}

// Resize sets the PTY window size. Errors are dropped.
func (s *Session) Resize(rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, cols = clampSize(rows, cols)
	s.rows, s.cols = rows, cols
	if s.state != StateRunning {
		return
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		s.log.Debug("pty resize failed", zap.Error(err))
	}
}

// Size returns the last requested window size.
func (s *Session) Size() (rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.cols
}

// PID returns the shell's process ID, or -1 when not running.
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.cmd == nil || s.cmd.Process == nil {
		return -1
	}
	return s.cmd.Process.Pid
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop terminates the shell and closes the PTY. It is safe to call more
// than once and before Spawn.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		s.state = StateStopped
		return
	}
	s.state = StateStopped
	close(s.done)

	// The shell leads its own session and process group, so signalling
	// -pid also reaches children that share the group.
	pid := s.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		s.log.Debug("sigterm failed", zap.Int("pid", pid), zap.Error(err))
	}

	var ws unix.WaitStatus
	reaped, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	if err == nil && reaped == 0 {
		go reapLater(s.cmd, s.log)
	}

	if err := s.ptmx.Close(); err != nil {
		s.log.Debug("closing pty master", zap.Error(err))
	}

	s.metrics.SessionStopped()
	s.log.Info("pty session stopped", zap.Int("pid", pid))
}

// reapLater waits for a shell that ignored SIGTERM, killing it after
// killAfter.
func reapLater(cmd *exec.Cmd, log *zap.Logger) {
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(killAfter):
		pid := cmd.Process.Pid
		log.Debug("shell ignored sigterm, killing", zap.Int("pid", pid))
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
			_ = cmd.Process.Kill()
		}
		<-exited
	}
}
