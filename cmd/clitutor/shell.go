package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/app"
	"github.com/spencer-dollahite/clitutor/internal/sandbox"
	"github.com/spencer-dollahite/clitutor/internal/surface"
)

const shellHelp = "Commands: /reset recreates the sandbox and /quit leaves."

func newShellCmd(g *globalOptions) *cobra.Command {
	var (
		plain       bool
		metricsAddr string
		seeds       []string
	)
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive shell in a fresh sandbox",
		Long: `Open an interactive bash session inside a fresh sandbox.

Lines starting with "/" are handled by clitutor instead of the shell.
` + shellHelp + `

--plain connects the terminal straight to the shell without the built-in
screen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := g.newApp(true)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if _, err := a.Start(ctx); err != nil {
				return err
			}
			if err := sandbox.SeedFiles(ctx, a.Provider(), seeds); err != nil {
				return err
			}

			if g.configPath != "" {
				go func() { _ = a.WatchConfig(ctx, g.loadOptions()) }()
			}

			addr := metricsAddr
			if addr == "" && a.Config().Metrics.Enabled {
				addr = a.Config().Metrics.Addr
			}
			if addr != "" {
				stop := serveMetrics(a, addr)
				defer stop()
			}

			if plain {
				return runPlain(ctx, a)
			}
			return runScreen(ctx, a)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "attach the terminal directly to the shell")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringArrayVar(&seeds, "seed", nil, `seed a file before starting, as "name:content"`)
	return cmd
}

// serveMetrics exposes the registry until the returned function is called.
func serveMetrics(a *app.Application, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.MetricsHandler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger().Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	a.Logger().Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// screenHost drives a surface on a full-screen terminal.
type screenHost struct {
	app    *app.Application
	screen tcell.Screen
	surf   *surface.Surface
	log    *zap.Logger
}

func runScreen(ctx context.Context, a *app.Application) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("opening terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	defer screen.Fini()
	screen.EnablePaste()
	screen.EnableFocus()

	cols, rows := screen.Size()
	a.Config().Terminal.Rows, a.Config().Terminal.Cols = rows, cols

	h := &screenHost{
		app:    a,
		screen: screen,
		surf:   a.NewSurface(screen),
		log:    a.Logger().With(zap.String("component", "host")),
	}
	return h.run(ctx)
}

func (h *screenHost) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- h.surf.Run(ctx) }()
	defer h.surf.Close()

	keys := make(chan tcell.Event, 64)
	go func() {
		for {
			ev := h.screen.PollEvent()
			if ev == nil {
				close(keys)
				return
			}
			select {
			case keys <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	events := h.surf.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err

		case ev, ok := <-keys:
			if !ok {
				return nil
			}
			h.handleScreenEvent(ev)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if done := h.handleSurfaceEvent(ctx, ev); done {
				return nil
			}
		}
	}
}

func (h *screenHost) handleScreenEvent(ev tcell.Event) {
	switch e := ev.(type) {
	case *tcell.EventKey:
		h.surf.HandleKey(surface.KeyFromEvent(e))
	case *tcell.EventResize:
		cols, rows := e.Size()
		h.surf.Resize(rows, cols)
		h.screen.Sync()
	case *tcell.EventFocus:
		h.surf.Focus(e.Focused)
	}
}

// handleSurfaceEvent reacts to the engine and reports whether the session
// should end.
func (h *screenHost) handleSurfaceEvent(ctx context.Context, ev surface.Event) bool {
	switch e := ev.(type) {
	case surface.CommandCompleted:
		h.log.Debug("command completed",
			zap.String("command", e.Result.Command),
			zap.Int("exit_code", e.Result.ExitCode),
		)
	case surface.SlashCommand:
		return h.slash(ctx, e.Text)
	case surface.Disconnected:
		h.log.Info("shell disconnected", zap.Error(e.Err))
		return true
	}
	return false
}

func (h *screenHost) slash(ctx context.Context, text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/reset":
		if _, err := h.app.Reset(ctx); err != nil {
			h.surf.WriteSystemMessage("Reset failed: " + err.Error())
			return false
		}
		h.surf.WriteSystemMessage("Sandbox reset.")
	case "/help":
		h.surf.WriteSystemMessage(shellHelp)
	default:
		h.surf.WriteSystemMessage("Unknown command "+fields[0]+".", shellHelp)
	}
	return false
}
