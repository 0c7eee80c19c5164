package surface

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spencer-dollahite/clitutor/internal/pty"
	"github.com/spencer-dollahite/clitutor/internal/sandbox"
)

const (
	start   = "\x1f__CLITUTOR_CMD_START__\x1f"
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func end(rc, cwd string) string {
	return "\x1f__CLITUTOR_CMD_END__:" + rc + ":" + cwd + "\x1f"
}

type fakePTY struct {
	mu      sync.Mutex
	script  string
	argv    []string
	rows    int
	cols    int
	writes  bytes.Buffer
	stopped bool
	out     chan pty.Chunk
}

func newFakePTY() *fakePTY {
	return &fakePTY{out: make(chan pty.Chunk, 16)}
}

func (f *fakePTY) Spawn(initScript string, rows, cols int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = initScript
	f.rows, f.cols = rows, cols
	return nil
}

func (f *fakePTY) SpawnCommand(argv, env []string, dir string, rows, cols int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.argv = argv
	f.rows, f.cols = rows, cols
	return nil
}

func (f *fakePTY) Output() <-chan pty.Chunk { return f.out }

func (f *fakePTY) Write(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes.Write(p)
}

func (f *fakePTY) Resize(rows, cols int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows, f.cols = rows, cols
}

func (f *fakePTY) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakePTY) send(s string) {
	f.out <- pty.Chunk{Data: []byte(s)}
}

func (f *fakePTY) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes.String()
}

func (f *fakePTY) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakePTY) spawned() (script string, argv []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.script, f.argv
}

func (f *fakePTY) size() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, f.cols
}

// stubProvider only answers Root; the surface needs nothing else.
type stubProvider struct {
	sandbox.Provider
	root string
}

func (p *stubProvider) Root() string { return p.root }

type containerProvider struct {
	stubProvider
	gotScript string
	scriptOK  bool
}

func (p *containerProvider) ShellCommand(ctx context.Context, initScriptPath string) ([]string, error) {
	p.gotScript = initScriptPath
	_, err := os.Stat(initScriptPath)
	p.scriptOK = err == nil
	return []string{"docker", "exec", "-it", "abc", "bash", "--rcfile", sandbox.ShellRCPath}, nil
}

type harness struct {
	s    *Surface
	mu   sync.Mutex
	ptys []*fakePTY
	errc chan error
}

func (h *harness) pty(i int) *fakePTY {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ptys[i]
}

func (h *harness) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ptys)
}

func startSurface(t *testing.T, p sandbox.Provider) *harness {
	t.Helper()
	h := &harness{errc: make(chan error, 1)}
	h.s = New(p, Options{
		Rows: 5,
		Cols: 40,
		NewPTY: func() PTY {
			f := newFakePTY()
			h.mu.Lock()
			h.ptys = append(h.ptys, f)
			h.mu.Unlock()
			return f
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.errc <- h.s.Run(ctx) }()
	t.Cleanup(func() {
		h.s.Close()
		cancel()
	})

	require.Eventually(t, func() bool { return h.count() == 1 }, waitFor, tick)
	h.sync(t)
	return h
}

// ready feeds the startup boundary and waits for the prompt.
func (h *harness) ready(t *testing.T) {
	t.Helper()
	h.pty(0).send(end("0", "/sb") + "$ ")
	require.Eventually(t, func() bool { return h.s.Grid().RowText(0) == "$" }, waitFor, tick)
}

// sync waits until every request posted so far has been handled.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.call(func(context.Context) error { return nil }))
}

func (h *harness) typeLine(t *testing.T, line string) {
	t.Helper()
	for _, r := range line {
		require.True(t, h.s.HandleKey(Rune(r)))
	}
	require.True(t, h.s.HandleKey(Key{Code: KeyEnter}))
	h.sync(t)
}

func nextEvent(t *testing.T, s *Surface) Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "event channel closed")
			if _, redraw := ev.(Redraw); redraw {
				continue
			}
			return ev
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

func TestCommandCompleted(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.ready(t)

	h.typeLine(t, "cd sub && echo hi")
	assert.Equal(t, "cd sub && echo hi\r", h.pty(0).written())

	h.pty(0).send(start + "hi\r\n" + end("0", "/sb/sub") + "$ ")

	ev := nextEvent(t, h.s)
	done, ok := ev.(CommandCompleted)
	require.True(t, ok, "expected CommandCompleted, got %T", ev)
	assert.Equal(t, "hi\n", done.Result.Stdout)
	assert.Equal(t, 0, done.Result.ExitCode)
	assert.Equal(t, "cd sub && echo hi", done.Result.Command)

	assert.Equal(t, "/sb/sub", h.s.Cwd())
	assert.Contains(t, h.s.PromptMarkup(), "~/sub")
	assert.Equal(t, "$ hi", h.s.Grid().RowText(0))
	assert.Equal(t, "$", h.s.Grid().RowText(1))
}

func TestStartupBoundaryProducesNoEvent(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.ready(t)

	h.pty(0).send(start + "x\r\n" + end("3", "/sb"))
	ev := nextEvent(t, h.s)
	done, ok := ev.(CommandCompleted)
	require.True(t, ok, "expected CommandCompleted, got %T", ev)
	assert.Equal(t, 3, done.Result.ExitCode)
	assert.Equal(t, "x\n", done.Result.Stdout)
}

func TestSlashCommandNeverReachesShell(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.ready(t)

	h.typeLine(t, "/help me")

	ev := nextEvent(t, h.s)
	slash, ok := ev.(SlashCommand)
	require.True(t, ok, "expected SlashCommand, got %T", ev)
	assert.Equal(t, "/help me", slash.Text)
	assert.Equal(t, "/help me\x15\r", h.pty(0).written())

	// The empty command the CR produces is suppressed.
	h.pty(0).send(end("0", "/sb") + "\r\n$ ")
	h.pty(0).send(start + "real\r\n" + end("0", "/sb"))

	ev = nextEvent(t, h.s)
	done, ok := ev.(CommandCompleted)
	require.True(t, ok, "expected CommandCompleted, got %T", ev)
	assert.Equal(t, "real\n", done.Result.Stdout)
}

func TestKeyHandling(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})

	assert.False(t, h.s.HandleKey(Key{Code: KeyEscape}))
	assert.False(t, h.s.HandleKey(Key{}))
	assert.True(t, h.s.HandleKey(Ctrl('d')))
	assert.True(t, h.s.HandleKey(Ctrl('c')))
	assert.True(t, h.s.HandleKey(Key{Code: KeyUp}))
	assert.True(t, h.s.HandleKey(Rune('a')))
	assert.True(t, h.s.HandleKey(Key{Code: KeyBackspace}))
	h.sync(t)

	assert.Equal(t, "\x03\x1b[Aa\x7f", h.pty(0).written())
}

func TestBackspaceEditsSlashDetection(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.ready(t)

	h.s.HandleKey(Rune('/'))
	h.s.HandleKey(Key{Code: KeyBackspace})
	h.typeLine(t, "ls")

	assert.Equal(t, "/\x7fls\r", h.pty(0).written())
}

func TestSystemMessageBeforeReadyIsShownAbovePrompt(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})

	h.s.WriteSystemMessage("welcome")
	h.sync(t)
	h.pty(0).send(end("0", "/sb") + "$ ")

	require.Eventually(t, func() bool { return h.s.Grid().RowText(1) == "$" }, waitFor, tick)
	assert.Equal(t, "  ▸ welcome", h.s.Grid().RowText(0))
	assert.Empty(t, h.pty(0).written())
}

func TestSystemMessageAfterReady(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.ready(t)

	h.s.WriteSystemMessage("passed", "+10 XP")
	h.sync(t)

	require.Eventually(t, func() bool { return h.pty(0).written() == "\x15\r" }, waitFor, tick)
	assert.Equal(t, "  ▸ passed", h.s.Grid().RowText(0))
	assert.Equal(t, "  ▸ +10 XP", h.s.Grid().RowText(1))

	// The repaint boundary is suppressed.
	h.pty(0).send(end("0", "/sb") + "\r\n$ ")
	h.pty(0).send(start + "next\r\n" + end("0", "/sb"))

	ev := nextEvent(t, h.s)
	done, ok := ev.(CommandCompleted)
	require.True(t, ok, "expected CommandCompleted, got %T", ev)
	assert.Equal(t, "next\n", done.Result.Stdout)
}

func TestSystemMessageWhileCommandRunsWaitsForCompletion(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.ready(t)

	h.typeLine(t, "echo hi; sleep 1")
	h.pty(0).send(start + "hi\r\n")
	require.Eventually(t, func() bool { return h.s.Grid().RowText(0) == "$ hi" }, waitFor, tick)

	h.s.WriteSystemMessage("Correct!")
	h.sync(t)
	assert.Equal(t, "echo hi; sleep 1\r", h.pty(0).written())

	h.pty(0).send(end("0", "/sb") + "$ ")

	ev := nextEvent(t, h.s)
	done, ok := ev.(CommandCompleted)
	require.True(t, ok, "expected CommandCompleted, got %T", ev)
	assert.Equal(t, "hi\n", done.Result.Stdout)
	assert.Equal(t, "echo hi; sleep 1", done.Result.Command)

	require.Eventually(t, func() bool { return h.pty(0).written() == "echo hi; sleep 1\r\x15\r" }, waitFor, tick)
	assert.Equal(t, "  ▸ Correct!", h.s.Grid().RowText(1))

	// The repaint boundary is suppressed and the next command is reported.
	h.pty(0).send(end("0", "/sb") + "\r\n$ ")
	h.pty(0).send(start + "next\r\n" + end("0", "/sb"))

	ev = nextEvent(t, h.s)
	done, ok = ev.(CommandCompleted)
	require.True(t, ok, "expected CommandCompleted, got %T", ev)
	assert.Equal(t, "next\n", done.Result.Stdout)
}

func TestSlashCommandWhileCommandRuns(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.ready(t)

	h.typeLine(t, "sleep 5")
	h.pty(0).send(start + "working\r\n")
	require.Eventually(t, func() bool { return h.s.Grid().RowText(0) == "$ working" }, waitFor, tick)

	h.typeLine(t, "/help")
	ev := nextEvent(t, h.s)
	_, ok := ev.(SlashCommand)
	require.True(t, ok, "expected SlashCommand, got %T", ev)
	assert.Equal(t, "sleep 5\r/help\x15", h.pty(0).written())

	h.pty(0).send("done\r\n" + end("0", "/sb"))
	ev = nextEvent(t, h.s)
	done, ok := ev.(CommandCompleted)
	require.True(t, ok, "expected CommandCompleted, got %T", ev)
	assert.Equal(t, "working\ndone\n", done.Result.Stdout)
	assert.Equal(t, "sleep 5", done.Result.Command)
}

func TestUnreadRedrawsDoNotStallEngine(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.ready(t)

	for i := 0; i < 3*eventQueue; i++ {
		h.pty(0).send("x")
		h.sync(t)
	}
	require.Eventually(t, func() bool { return len(h.pty(0).out) == 0 }, waitFor, tick)
	h.sync(t)
}

func TestDisconnected(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})

	bye := errors.New("eof")
	h.pty(0).out <- pty.Chunk{Disconnected: true, Err: bye}
	close(h.pty(0).out)

	ev := nextEvent(t, h.s)
	d, ok := ev.(Disconnected)
	require.True(t, ok, "expected Disconnected, got %T", ev)
	assert.Equal(t, bye, d.Err)
}

func TestRespawn(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.ready(t)
	first := h.pty(0)
	firstScript, _ := first.spawned()

	require.NoError(t, h.s.Respawn("/other"))
	require.Equal(t, 2, h.count())

	assert.True(t, first.isStopped())
	_, err := os.Stat(firstScript)
	assert.True(t, os.IsNotExist(err), "old init script should be removed")

	assert.Equal(t, "/other", h.s.Cwd())
	assert.Equal(t, "", h.s.Grid().RowText(0))

	second := h.pty(1)
	secondScript, _ := second.spawned()
	content, err := os.ReadFile(secondScript)
	require.NoError(t, err)
	assert.Contains(t, string(content), "/other")

	// The new shell's startup boundary is suppressed again.
	second.send(end("0", "/other") + "$ ")
	second.send(start + "again\r\n" + end("0", "/other"))
	ev := nextEvent(t, h.s)
	done, ok := ev.(CommandCompleted)
	require.True(t, ok, "expected CommandCompleted, got %T", ev)
	assert.Equal(t, "again\n", done.Result.Stdout)
}

func TestContainerProviderSpawnsWrapperCommand(t *testing.T) {
	p := &containerProvider{stubProvider: stubProvider{root: sandbox.DefaultRoot}}
	h := startSurface(t, p)

	script, argv := h.pty(0).spawned()

	assert.Equal(t, []string{"docker", "exec", "-it", "abc", "bash", "--rcfile", sandbox.ShellRCPath}, argv)
	assert.Empty(t, script, "Spawn must not be used for wrapped shells")
	assert.True(t, p.scriptOK)
	assert.Equal(t, sandbox.DefaultRoot, h.s.Cwd())
}

func TestResizeClamps(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})

	rows, cols := h.pty(0).size()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 40, cols)

	h.s.Resize(1, 3)
	h.sync(t)

	rows, cols = h.pty(0).size()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 10, cols)
	rows, cols = h.s.Grid().Size()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 10, cols)
}

func TestRunWithoutSandbox(t *testing.T) {
	s := New(&stubProvider{}, Options{NewPTY: func() PTY { return newFakePTY() }})
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, sandbox.ErrNotInitialized)

	assert.ErrorIs(t, s.Run(context.Background()), ErrRunning)
}

func TestCloseStopsShell(t *testing.T) {
	h := startSurface(t, &stubProvider{root: "/sb"})
	h.s.Close()

	select {
	case err := <-h.errc:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	assert.True(t, h.pty(0).isStopped())
	assert.ErrorIs(t, h.s.Respawn(""), ErrClosed)
}
