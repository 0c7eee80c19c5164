// Package surface is the interactive terminal a learner types into.
//
// A Surface owns a shell behind a PTY, splits the shell's output into
// display bytes and captured command results, feeds the display bytes to
// a terminal emulator and paints the emulator's grid. Everything that
// mutates the grid or the capture state runs on the goroutine executing
// Run; the exported methods only post requests to it.
package surface

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/executor"
	"github.com/spencer-dollahite/clitutor/internal/metrics"
	"github.com/spencer-dollahite/clitutor/internal/protocol"
	"github.com/spencer-dollahite/clitutor/internal/pty"
	"github.com/spencer-dollahite/clitutor/internal/renderer"
	"github.com/spencer-dollahite/clitutor/internal/sandbox"
	"github.com/spencer-dollahite/clitutor/internal/terminal"
)

const (
	DefaultRows = 24
	DefaultCols = 80

	minRows = 2
	minCols = 10

	eventQueue   = 64
	requestQueue = 64
)

// System messages are drawn in bold cyan behind a marker.
const (
	messagePrefix = "\x1b[1;36m  ▸ "
	messageSuffix = "\x1b[0m"
)

// slashPrefix marks input handled by the application instead of the shell.
const slashPrefix = "/"

// PTY is the shell process a Surface drives. *pty.Session implements it.
type PTY interface {
	Spawn(initScript string, rows, cols int) error
	SpawnCommand(argv, env []string, dir string, rows, cols int) error
	Output() <-chan pty.Chunk
	Write(p []byte)
	Resize(rows, cols int)
	Stop()
}

// Options configures a Surface.
type Options struct {
	Rows, Cols int

	// User and Hostname appear in the shell prompt.
	User     string
	Hostname string

	// Screen, when set, is repainted by the engine after every change.
	Screen tcell.Screen

	// Shell is the local shell binary. Defaults to bash.
	Shell string

	// NewPTY creates the shell process. Defaults to a pty.Session.
	NewPTY func() PTY

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Surface is an interactive shell session rendered into a terminal grid.
type Surface struct {
	provider sandbox.Provider
	opts     Options
	log      *zap.Logger
	metrics  *metrics.Metrics

	// Owned by the engine goroutine.
	emu         *terminal.Emulator
	demux       *protocol.Demuxer
	shell       PTY
	out         <-chan pty.Chunk
	cleanup     func()
	root        string
	rows, cols  int
	input       []rune
	lastCommand string
	pending     []string
	changed     bool
	done        <-chan struct{}

	drawMu  sync.Mutex
	render  *renderer.Renderer
	focused bool

	mu       sync.Mutex
	cwd      string
	rootSnap string

	events   chan Event
	requests chan func(context.Context)

	running   atomic.Bool
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates a surface over provider. The provider must be created before
// Run is called.
func New(provider sandbox.Provider, opts Options) *Surface {
	if opts.Rows <= 0 {
		opts.Rows = DefaultRows
	}
	if opts.Cols <= 0 {
		opts.Cols = DefaultCols
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewPTY == nil {
		logger, m, shell := opts.Logger, opts.Metrics, opts.Shell
		opts.NewPTY = func() PTY {
			return pty.NewSession(pty.Options{Shell: shell, Logger: logger, Metrics: m})
		}
	}
	rows, cols := clampSize(opts.Rows, opts.Cols)
	return &Surface{
		provider: provider,
		opts:     opts,
		log:      opts.Logger.With(zap.String("component", "surface")),
		metrics:  opts.Metrics,
		emu:      terminal.New(rows, cols),
		demux:    protocol.NewDemuxer(""),
		rows:     rows,
		cols:     cols,
		render:   renderer.New(nil),
		focused:  true,
		events:   make(chan Event, eventQueue),
		requests: make(chan func(context.Context), requestQueue),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func clampSize(rows, cols int) (int, int) {
	return max(rows, minRows), max(cols, minCols)
}

// Events returns the event channel. It is closed when Run returns. The host
// must keep reading it: Redraw events are dropped when the queue is full,
// but the engine waits for room for every other event.
func (s *Surface) Events() <-chan Event {
	return s.events
}

// Grid returns the screen grid. It may be read from any goroutine.
func (s *Surface) Grid() *terminal.Grid {
	return s.emu.Grid()
}

// Cwd returns the shell's working directory as of the last command.
func (s *Surface) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// PromptMarkup returns the styled prompt for the current directory.
func (s *Surface) PromptMarkup() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return executor.Prompt(s.cwd, s.rootSnap)
}

func (s *Surface) setLocation(root, cwd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootSnap = root
	s.cwd = cwd
}

func (s *Surface) setCwd(cwd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cwd = cwd
}

// Run spawns the shell and processes output and requests until ctx is done
// or Close is called. The shell is stopped before Run returns.
func (s *Surface) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(s.stopped)
	defer close(s.events)
	defer s.closeOnce.Do(func() { close(s.quit) })

	select {
	case <-s.quit:
		return ErrClosed
	default:
	}

	s.root = s.provider.Root()
	if s.root == "" {
		return sandbox.ErrNotInitialized
	}
	s.demux.Reset(s.root)
	s.setLocation(s.root, s.root)
	s.done = ctx.Done()

	if err := s.spawn(ctx); err != nil {
		return err
	}
	defer s.stopShell()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quit:
			return nil
		case c, ok := <-s.out:
			if !ok {
				s.out = nil
				continue
			}
			s.handleChunk(c)
		case fn := <-s.requests:
			fn(ctx)
		}
		s.paint()
	}
}

// Running reports whether Run is active.
func (s *Surface) Running() bool {
	return s.running.Load()
}

// Close stops the engine and waits for Run to return.
func (s *Surface) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	if s.running.Load() {
		<-s.stopped
	}
}

func (s *Surface) spawn(ctx context.Context) error {
	script, cleanup, err := protocol.WriteInitScript(protocol.InitOptions{
		SandboxPath: s.root,
		User:        s.opts.User,
		Hostname:    s.opts.Hostname,
	})
	if err != nil {
		return fmt.Errorf("writing init script: %w", err)
	}

	sh := s.opts.NewPTY()
	if sp, ok := s.provider.(sandbox.ShellProvider); ok {
		var argv []string
		argv, err = sp.ShellCommand(ctx, script)
		if err == nil {
			err = sh.SpawnCommand(argv, nil, "", s.rows, s.cols)
		}
	} else {
		err = sh.Spawn(script, s.rows, s.cols)
	}
	if err != nil {
		cleanup()
		return fmt.Errorf("spawning shell: %w", err)
	}

	s.shell = sh
	s.out = sh.Output()
	s.cleanup = cleanup
	s.log.Info("shell spawned",
		zap.String("root", s.root),
		zap.Int("rows", s.rows),
		zap.Int("cols", s.cols),
	)
	return nil
}

func (s *Surface) stopShell() {
	if s.shell != nil {
		s.shell.Stop()
		s.shell = nil
	}
	s.out = nil
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

func (s *Surface) handleChunk(c pty.Chunk) {
	if c.Disconnected {
		s.log.Info("shell disconnected", zap.Error(c.Err))
		s.emit(Disconnected{Err: c.Err})
		return
	}

	o := s.demux.Feed(c.Data)
	display := o.Display
	if o.Ready {
		s.display(display[:o.ReadyAt])
		s.flushPending()
		display = display[o.ReadyAt:]
	}
	s.display(display)
	s.setCwd(s.demux.Cwd())

	for _, res := range o.Results {
		res.Command = s.lastCommand
		s.metrics.ObserveCompleted(res.ExitCode)
		s.log.Debug("command completed",
			zap.String("command", res.Command),
			zap.Int("exit_code", res.ExitCode),
		)
		s.emit(CommandCompleted{Result: res})
	}

	if len(s.pending) > 0 && s.demux.Ready() && !s.demux.Capturing() {
		batch := s.pending
		s.pending = nil
		s.systemMessages(batch)
	}
}

func (s *Surface) display(p []byte) {
	if len(p) == 0 {
		return
	}
	s.emu.Write(p)
	s.changed = true
}

func (s *Surface) write(text string) {
	if s.shell != nil {
		s.shell.Write([]byte(text))
	}
}

// emit delivers ev to the host. Redraw is dropped when the queue is full;
// every other event waits for the host, so a host that stops reading
// Events also stops the shell's output from being processed.
func (s *Surface) emit(ev Event) {
	if _, ok := ev.(Redraw); ok {
		select {
		case s.events <- ev:
		default:
		}
		return
	}
	select {
	case s.events <- ev:
	case <-s.quit:
	case <-s.done:
	}
}

func (s *Surface) paint() {
	if !s.changed {
		return
	}
	if s.out != nil && len(s.out) > 0 {
		return
	}
	s.changed = false
	if s.opts.Screen != nil {
		s.Draw(s.opts.Screen)
		s.opts.Screen.Show()
	}
	s.emit(Redraw{})
}

// Draw paints the grid onto screen. The caller calls screen.Show.
func (s *Surface) Draw(screen tcell.Screen) {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	s.render.Draw(screen, s.emu.Grid(), s.focused)
}

// post queues fn for the engine. It is dropped after Close.
func (s *Surface) post(fn func(context.Context)) {
	select {
	case s.requests <- fn:
	case <-s.quit:
	}
}

// call runs fn on the engine and waits for its result.
func (s *Surface) call(fn func(context.Context) error) error {
	errc := make(chan error, 1)
	select {
	case s.requests <- func(ctx context.Context) { errc <- fn(ctx) }:
	case <-s.quit:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.quit:
		return ErrClosed
	}
}

// HandleKey forwards k to the shell. It reports false for keys the surface
// leaves to its host, currently Escape and unknown keys.
func (s *Surface) HandleKey(k Key) bool {
	if k.Code == KeyEscape || k.Code == KeyNone {
		return false
	}
	s.post(func(context.Context) { s.key(k) })
	return true
}

func (s *Surface) key(k Key) {
	switch k.Code {
	case KeyCtrl:
		switch unicode.ToLower(k.Rune) {
		case 'd':
			// ignoreeof is set, but EOF is never forwarded.
			return
		case 'c', 'u', 'w':
			s.input = s.input[:0]
		}
	case KeyRune:
		s.input = append(s.input, k.Rune)
	case KeyBackspace:
		if n := len(s.input); n > 0 {
			s.input = s.input[:n-1]
		}
	case KeyEnter:
		line := strings.TrimSpace(string(s.input))
		s.input = s.input[:0]
		if strings.HasPrefix(line, slashPrefix) {
			s.write("\x15")
			// A running command would read the CR, so only the line is
			// erased and no boundary is expected.
			if !s.demux.Capturing() {
				s.write("\r")
				s.demux.Skip()
			}
			s.emit(SlashCommand{Text: line})
			return
		}
		s.lastCommand = line
	}
	if seq := Sequence(k); seq != "" {
		s.write(seq)
	}
}

// WriteSystemMessage shows messages in the terminal without running
// anything in the shell. Messages sent before the shell's first prompt are
// shown above it; messages sent while a command runs are shown once it
// completes.
func (s *Surface) WriteSystemMessage(texts ...string) {
	if len(texts) == 0 {
		return
	}
	s.post(func(context.Context) {
		if !s.demux.Ready() || s.demux.Capturing() {
			s.pending = append(s.pending, texts...)
			return
		}
		s.systemMessages(texts)
	})
}

// systemMessages draws a batch over the prompt line and asks the shell for
// a fresh prompt. The boundary that prompt produces is suppressed.
func (s *Surface) systemMessages(batch []string) {
	var b strings.Builder
	for i, msg := range batch {
		if i == 0 {
			b.WriteString("\r\x1b[K")
		} else {
			b.WriteString("\r\n")
		}
		b.WriteString(messagePrefix + msg + messageSuffix)
	}
	s.display([]byte(b.String()))
	s.input = s.input[:0]
	s.demux.Skip()
	s.write("\x15\r")
}

func (s *Surface) flushPending() {
	if len(s.pending) == 0 {
		return
	}
	var b strings.Builder
	for _, msg := range s.pending {
		b.WriteString(messagePrefix + msg + messageSuffix + "\r\n")
	}
	s.pending = nil
	s.display([]byte(b.String()))
}

// Resize changes the grid and PTY size. Sizes below 2x10 are raised.
func (s *Surface) Resize(rows, cols int) {
	s.post(func(context.Context) {
		rows, cols := clampSize(rows, cols)
		if rows == s.rows && cols == s.cols {
			return
		}
		s.rows, s.cols = rows, cols
		s.emu.Resize(rows, cols)
		if s.shell != nil {
			s.shell.Resize(rows, cols)
		}
		s.drawMu.Lock()
		s.render.Reset()
		s.drawMu.Unlock()
		s.changed = true
	})
}

// Focus sets whether the cursor is drawn.
func (s *Surface) Focus(focused bool) {
	s.drawMu.Lock()
	s.focused = focused
	s.render.InvalidateCursor()
	s.drawMu.Unlock()
	s.post(func(context.Context) { s.changed = true })
}

// Respawn replaces the shell with a fresh one rooted at newRoot, or at the
// provider's current root when newRoot is empty. The screen and capture
// state are reset.
func (s *Surface) Respawn(newRoot string) error {
	return s.call(func(ctx context.Context) error {
		s.stopShell()
		switch {
		case newRoot != "":
			s.root = newRoot
		case s.provider.Root() != "":
			s.root = s.provider.Root()
		}
		s.demux.Reset(s.root)
		s.setLocation(s.root, s.root)
		s.emu.Reset()
		s.input = s.input[:0]
		s.lastCommand = ""
		s.pending = nil

		s.drawMu.Lock()
		s.render.Reset()
		s.drawMu.Unlock()
		s.changed = true

		s.log.Info("respawning shell", zap.String("root", s.root))
		return s.spawn(ctx)
	})
}
