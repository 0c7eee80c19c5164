// Package app wires clitutor's components together from a config.Config.
//
// An Application owns the logger, the metrics registry, the sandbox
// provider and the headless executor. Interactive surfaces and validators
// are created on demand and share those components.
package app

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/config"
	"github.com/spencer-dollahite/clitutor/internal/executor"
	"github.com/spencer-dollahite/clitutor/internal/metrics"
	"github.com/spencer-dollahite/clitutor/internal/safety"
	"github.com/spencer-dollahite/clitutor/internal/sandbox"
	"github.com/spencer-dollahite/clitutor/internal/sandbox/docker"
	"github.com/spencer-dollahite/clitutor/internal/surface"
	"github.com/spencer-dollahite/clitutor/internal/validator"
)

// Options configures an Application.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config

	// Logger, when set, is used instead of one built from Config.Logging.
	Logger *zap.Logger

	// Driver overrides the container driver chosen by Config.Sandbox.Driver.
	Driver docker.Driver

	// Filter defaults to safety.Default().
	Filter *safety.Filter
}

// Application is the set of components one clitutor process uses.
type Application struct {
	cfg   *config.Config
	log   *zap.Logger
	level zap.AtomicLevel

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	driver   docker.Driver
	provider sandbox.Provider
	exec     executor.Executor

	started atomic.Bool

	mu       sync.Mutex
	surfaces []*surface.Surface
}

// New builds an Application. Nothing is created in the sandbox until
// Start.
func New(opts Options) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	a := &Application{cfg: cfg}

	if opts.Logger != nil {
		a.log = opts.Logger
		a.level = zap.NewAtomicLevelAt(cfg.Logging.ZapLevel())
	} else {
		logger, level, err := NewLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		a.log, a.level = logger, level
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	filter := opts.Filter
	if filter == nil {
		filter = safety.Default()
	}
	execOpts := executor.Options{
		Filter:  filter,
		Logger:  a.log,
		Metrics: a.metrics,
	}
	sbOpts := sandbox.Options{
		AssetsDir: cfg.Sandbox.AssetsDir,
		Logger:    a.log,
		Metrics:   a.metrics,
	}

	switch cfg.Sandbox.Kind {
	case config.SandboxContainer:
		driver := opts.Driver
		if driver == nil {
			d, err := docker.New(cfg.Sandbox.Driver, cfg.Sandbox.DockerBinary)
			if err != nil {
				return nil, NewComponentError("docker", "connect", err)
			}
			driver = d
		}
		a.driver = driver
		box := sandbox.NewContainer(driver, sandbox.ContainerOptions{
			Options:       sbOpts,
			Image:         cfg.Sandbox.Image,
			Root:          cfg.Sandbox.Root,
			Hostname:      cfg.Sandbox.Hostname,
			User:          cfg.Sandbox.User,
			DockerfileDir: cfg.Sandbox.DockerfileDir,
			DockerBinary:  cfg.Sandbox.DockerBinary,
		})
		a.provider = box
		a.exec = executor.NewContainer(box, execOpts)
	default:
		local := sandbox.NewLocal(sbOpts)
		a.provider = local
		a.exec = executor.NewLocal(local, execOpts)
	}

	a.log.Debug("application configured",
		zap.String("sandbox", cfg.Sandbox.Kind),
		zap.String("level", a.level.String()),
	)
	return a, nil
}

// Config returns the configuration the application was built from.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the process logger.
func (a *Application) Logger() *zap.Logger { return a.log }

// Level returns the adjustable log level.
func (a *Application) Level() zap.AtomicLevel { return a.level }

// Registry returns the metrics registry.
func (a *Application) Registry() *prometheus.Registry { return a.registry }

// Metrics returns the engine collectors.
func (a *Application) Metrics() *metrics.Metrics { return a.metrics }

// Provider returns the sandbox provider.
func (a *Application) Provider() sandbox.Provider { return a.provider }

// Executor returns the headless executor.
func (a *Application) Executor() executor.Executor { return a.exec }

// RunOptions returns the configured options for headless runs.
func (a *Application) RunOptions() executor.RunOptions {
	return executor.RunOptions{
		Timeout:  a.cfg.Executor.Timeout.Std(),
		TrackCwd: a.cfg.Executor.TrackCwd,
	}
}

// Start creates the sandbox and returns its root.
func (a *Application) Start(ctx context.Context) (string, error) {
	if !a.started.CompareAndSwap(false, true) {
		return "", ErrAlreadyStarted
	}
	root, err := a.provider.Create(ctx)
	if err != nil {
		a.started.Store(false)
		return "", NewComponentError("sandbox", "create", err)
	}
	a.exec.ResetCwd()
	a.log.Info("sandbox ready",
		zap.String("kind", string(a.provider.Kind())),
		zap.String("root", root),
	)
	return root, nil
}

// Reset recreates the sandbox and respawns every open surface into it.
func (a *Application) Reset(ctx context.Context) (string, error) {
	if !a.started.Load() {
		return "", ErrNotStarted
	}
	root, err := a.provider.Reset(ctx)
	if err != nil {
		return "", NewComponentError("sandbox", "reset", err)
	}
	a.exec.ResetCwd()

	a.mu.Lock()
	surfaces := append([]*surface.Surface(nil), a.surfaces...)
	a.mu.Unlock()

	var errs ErrorList
	for _, s := range surfaces {
		if s.Running() {
			errs.Add(s.Respawn(root))
		}
	}
	if err := errs.AsError(); err != nil {
		return root, NewComponentError("surface", "respawn", err)
	}
	a.log.Info("sandbox reset", zap.String("root", root))
	return root, nil
}

// NewSurface creates an interactive surface over the application's
// sandbox. screen may be nil for headless use. The caller runs it; Close
// stops it.
func (a *Application) NewSurface(screen tcell.Screen) *surface.Surface {
	s := surface.New(a.provider, surface.Options{
		Rows:     a.cfg.Terminal.Rows,
		Cols:     a.cfg.Terminal.Cols,
		User:     a.cfg.Sandbox.User,
		Hostname: a.cfg.Sandbox.Hostname,
		Shell:    a.cfg.Shell.Path,
		Screen:   screen,
		Logger:   a.log,
		Metrics:  a.metrics,
	})
	a.mu.Lock()
	a.surfaces = append(a.surfaces, s)
	a.mu.Unlock()
	return s
}

// Checker returns a validator over the sandbox. cwd may be nil, in which
// case the headless executor's directory is used.
func (a *Application) Checker(cwd validator.CwdSource) *validator.Checker {
	if cwd == nil {
		cwd = a.exec
	}
	return validator.NewChecker(a.provider, cwd, a.log)
}

// MetricsHandler serves the registry in the Prometheus text format.
func (a *Application) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// WatchConfig applies log level changes from the config file until ctx is
// done. Other settings take effect on the next start.
func (a *Application) WatchConfig(ctx context.Context, opts config.LoadOptions) error {
	return config.Watch(ctx, opts, func(cfg *config.Config, err error) {
		if err != nil {
			a.log.Warn("config reload failed", zap.Error(err))
			return
		}
		if lvl := cfg.Logging.ZapLevel(); lvl != a.level.Level() {
			a.level.SetLevel(lvl)
			a.log.Info("log level changed", zap.Stringer("level", lvl))
		}
	})
}

// Close stops every surface and destroys the sandbox.
func (a *Application) Close(ctx context.Context) error {
	a.mu.Lock()
	surfaces := a.surfaces
	a.surfaces = nil
	a.mu.Unlock()

	for _, s := range surfaces {
		s.Close()
	}

	var errs ErrorList
	if err := a.provider.Destroy(ctx); err != nil {
		errs.Add(NewComponentError("sandbox", "destroy", err))
	}
	if a.driver != nil {
		if err := a.driver.Close(); err != nil {
			errs.Add(NewComponentError("docker", "close", err))
		}
	}
	a.started.Store(false)
	_ = a.log.Sync()
	return errs.AsError()
}
