package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spencer-dollahite/clitutor/internal/app"
	"github.com/spencer-dollahite/clitutor/internal/protocol"
	"github.com/spencer-dollahite/clitutor/internal/pty"
	"github.com/spencer-dollahite/clitutor/internal/sandbox"
)

// runPlain attaches the controlling terminal to the sandbox shell. Output
// passes through the boundary demuxer so markers never reach the screen.
func runPlain(ctx context.Context, a *app.Application) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("--plain requires a terminal on stdin")
	}
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		rows, cols = a.Config().Terminal.Rows, a.Config().Terminal.Cols
	}

	cfg := a.Config()
	provider := a.Provider()
	root := provider.Root()
	log := a.Logger().With(zap.String("component", "plain"))

	script, cleanup, err := protocol.WriteInitScript(protocol.InitOptions{
		SandboxPath: root,
		User:        cfg.Sandbox.User,
		Hostname:    cfg.Sandbox.Hostname,
	})
	if err != nil {
		return fmt.Errorf("writing init script: %w", err)
	}
	defer cleanup()

	sh := pty.NewSession(pty.Options{Shell: cfg.Shell.Path, Logger: log, Metrics: a.Metrics()})
	if sp, ok := provider.(sandbox.ShellProvider); ok {
		argv, err := sp.ShellCommand(ctx, script)
		if err != nil {
			return err
		}
		err = sh.SpawnCommand(argv, nil, "", rows, cols)
		if err != nil {
			return err
		}
	} else if err := sh.Spawn(script, rows, cols); err != nil {
		return err
	}
	defer sh.Stop()

	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, old)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	// The reader is abandoned on return; the process exits soon after.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				sh.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	demux := protocol.NewDemuxer(root)
	out := sh.Output()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-winch:
			if c, r, err := term.GetSize(fd); err == nil {
				sh.Resize(r, c)
			}

		case chunk, ok := <-out:
			if !ok || chunk.Disconnected {
				if chunk.Err != nil {
					log.Debug("shell output ended", zap.Error(chunk.Err))
				}
				return nil
			}
			res := demux.Feed(chunk.Data)
			if _, err := os.Stdout.Write(res.Display); err != nil {
				return err
			}
			for _, r := range res.Results {
				a.Metrics().ObserveCompleted(r.ExitCode)
				log.Debug("command completed",
					zap.Int("exit_code", r.ExitCode),
					zap.String("cwd", demux.Cwd()),
				)
			}
		}
	}
}
