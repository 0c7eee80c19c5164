package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/sandbox/docker"
)

// Container defaults.
const (
	DefaultImage    = "clitutor-sandbox"
	DefaultRoot     = "/home/student/sandbox"
	DefaultHostname = "clitutor"
	DefaultUser     = "student"

	// ShellRCPath is where the init script is installed in the container.
	ShellRCPath = "/tmp/clitutor.bashrc"
)

// ContainerOptions configures a Container provider.
type ContainerOptions struct {
	Options

	Image         string
	Root          string
	Hostname      string
	User          string
	DockerfileDir string
	// DockerBinary is the executable used for interactive shells.
	DockerBinary string
}

func (o *ContainerOptions) setDefaults() {
	if o.Image == "" {
		o.Image = DefaultImage
	}
	if o.Root == "" {
		o.Root = DefaultRoot
	}
	if o.Hostname == "" {
		o.Hostname = DefaultHostname
	}
	if o.User == "" {
		o.User = DefaultUser
	}
	if o.DockerBinary == "" {
		o.DockerBinary = "docker"
	}
}

// Container is a sandbox backed by a dedicated container.
type Container struct {
	mu     sync.Mutex
	driver docker.Driver
	opts   ContainerOptions
	id     string
	name   string
	log    *zap.Logger
}

// NewContainer creates a container provider on the given driver.
func NewContainer(driver docker.Driver, opts ContainerOptions) *Container {
	opts.setDefaults()
	return &Container{
		driver: driver,
		opts:   opts,
		log:    opts.logger().With(zap.String("sandbox", string(KindContainer))),
	}
}

// Kind returns KindContainer.
func (c *Container) Kind() Kind {
	return KindContainer
}

// ID returns the running container's ID, or "" before Create.
func (c *Container) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Name returns the running container's name.
func (c *Container) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Root returns the in-container sandbox path, or "" before Create.
func (c *Container) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id == "" {
		return ""
	}
	return c.opts.Root
}

// Create ensures the image exists and starts a fresh container.
func (c *Container) Create(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.destroyLocked(ctx); err != nil {
		return "", err
	}
	if err := c.ensureImage(ctx); err != nil {
		return "", err
	}

	name := "clitutor-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	id, err := c.driver.Run(ctx, docker.RunOptions{
		Image:           c.opts.Image,
		Name:            name,
		Hostname:        c.opts.Hostname,
		NetworkDisabled: true,
		Labels:          map[string]string{"clitutor.sandbox": "true"},
	})
	c.opts.Metrics.ObserveSandbox(string(KindContainer), "create", err)
	if err != nil {
		return "", fmt.Errorf("starting sandbox container: %w", err)
	}
	if id == "" {
		id = name
	}

	c.id = id
	c.name = name
	c.log.Info("sandbox container started",
		zap.String("name", name),
		zap.String("id", id),
		zap.String("image", c.opts.Image),
	)
	return c.opts.Root, nil
}

func (c *Container) ensureImage(ctx context.Context) error {
	ok, err := c.driver.ImageExists(ctx, c.opts.Image)
	if err != nil {
		return fmt.Errorf("checking image %s: %w", c.opts.Image, err)
	}
	if ok {
		return nil
	}
	c.log.Info("building sandbox image",
		zap.String("image", c.opts.Image),
		zap.String("context", c.opts.DockerfileDir),
	)
	if err := c.driver.BuildImage(ctx, c.opts.Image, c.opts.DockerfileDir); err != nil {
		return fmt.Errorf("building image %s: %w", c.opts.Image, err)
	}
	return nil
}

// Reset destroys the container and starts a new one.
func (c *Container) Reset(ctx context.Context) (string, error) {
	if err := c.Destroy(ctx); err != nil {
		return "", err
	}
	return c.Create(ctx)
}

// Destroy force-removes the container. Repeated calls are no-ops.
func (c *Container) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyLocked(ctx)
}

func (c *Container) destroyLocked(ctx context.Context) error {
	if c.id == "" {
		return nil
	}
	id := c.id
	c.id = ""
	c.name = ""

	err := c.driver.Remove(ctx, id, true)
	c.opts.Metrics.ObserveSandbox(string(KindContainer), "destroy", err)
	if err != nil {
		c.log.Warn("failed to remove sandbox container", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("removing container %s: %w", id, err)
	}
	c.log.Info("sandbox container removed", zap.String("id", id))
	return nil
}

// Exec runs a command in the container as the sandbox user.
func (c *Container) Exec(ctx context.Context, opts docker.ExecOptions) (docker.ExecResult, error) {
	id := c.ID()
	if id == "" {
		return docker.ExecResult{}, ErrNotInitialized
	}
	if opts.User == "" {
		opts.User = c.opts.User
	}
	if opts.WorkDir == "" {
		opts.WorkDir = c.opts.Root
	}
	return c.driver.Exec(ctx, id, opts)
}

func (c *Container) shell(ctx context.Context, user, script string) (docker.ExecResult, error) {
	return c.Exec(ctx, docker.ExecOptions{Cmd: []string{"bash", "-c", script}, User: user})
}

func (c *Container) abs(rel string) (string, error) {
	cleaned := path.Clean("/" + rel)
	full := path.Join(c.opts.Root, cleaned)
	if full != c.opts.Root && !strings.HasPrefix(full, c.opts.Root+"/") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return full, nil
}

// FileExists runs test -e inside the container. It is false before Create.
func (c *Container) FileExists(ctx context.Context, rel string) bool {
	if c.ID() == "" {
		return false
	}
	full, err := c.abs(rel)
	if err != nil {
		return false
	}
	res, err := c.Exec(ctx, docker.ExecOptions{Cmd: []string{"test", "-e", full}})
	return err == nil && res.ExitCode == 0
}

// ReadFile cats the file inside the container.
func (c *Container) ReadFile(ctx context.Context, rel string) ([]byte, error) {
	if c.ID() == "" {
		return nil, ErrNotInitialized
	}
	full, err := c.abs(rel)
	if err != nil {
		return nil, err
	}
	res, err := c.Exec(ctx, docker.ExecOptions{Cmd: []string{"cat", full}})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	return res.Stdout, nil
}

// SeedFile writes content to rel inside the container, creating parent
// directories.
func (c *Container) SeedFile(ctx context.Context, rel string, content []byte) error {
	if c.ID() == "" {
		return ErrNotInitialized
	}
	full, err := c.abs(rel)
	if err != nil {
		return err
	}
	script := fmt.Sprintf("mkdir -p %s && cat > %s",
		shellquote.Join(path.Dir(full)),
		shellquote.Join(full),
	)
	res, err := c.Exec(ctx, docker.ExecOptions{
		Cmd:   []string{"bash", "-c", script},
		Stdin: bytes.NewReader(content),
	})
	if err != nil {
		return fmt.Errorf("seeding %s: %w", rel, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("seeding %s: exit %d: %s", rel, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}

// SeedAsset copies a bundled asset into the container and hands it to the
// sandbox user. A missing asset is skipped.
func (c *Container) SeedAsset(ctx context.Context, name, dest string) error {
	id := c.ID()
	if id == "" {
		return ErrNotInitialized
	}
	if dest == "" {
		dest = name
	}
	full, err := c.abs(dest)
	if err != nil {
		return err
	}

	src := filepath.Join(c.opts.AssetsDir, name)
	if _, err := os.Stat(src); err != nil {
		c.log.Debug("asset not found, skipping", zap.String("asset", src))
		return nil
	}

	res, err := c.shell(ctx, "", "mkdir -p "+shellquote.Join(path.Dir(full)))
	if err != nil {
		return fmt.Errorf("creating parent of %s: %w", dest, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("creating parent of %s: exit %d: %s", dest, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	if err := c.driver.CopyTo(ctx, id, src, full); err != nil {
		return fmt.Errorf("copying asset %s: %w", name, err)
	}
	owner := c.opts.User + ":" + c.opts.User
	if _, err := c.shell(ctx, "root", "chown "+owner+" "+shellquote.Join(full)); err != nil {
		return fmt.Errorf("chown %s: %w", dest, err)
	}
	return nil
}

// HasDirWithFile reports whether a subdirectory holds a regular file.
func (c *Container) HasDirWithFile(ctx context.Context) bool {
	if c.ID() == "" {
		return false
	}
	res, err := c.Exec(ctx, docker.ExecOptions{
		Cmd: []string{"find", c.opts.Root, "-mindepth", "2", "-type", "f", "-print", "-quit"},
	})
	return err == nil && res.ExitCode == 0 && strings.TrimSpace(string(res.Stdout)) != ""
}

// FindFileContaining reports whether any file contains text.
func (c *Container) FindFileContaining(ctx context.Context, text string) bool {
	if c.ID() == "" || text == "" {
		return false
	}
	res, err := c.Exec(ctx, docker.ExecOptions{
		Cmd: []string{"grep", "-rlF", "-m", "1", "--", text, c.opts.Root},
	})
	return err == nil && res.ExitCode == 0
}

// ShellCommand copies the init script into the container and returns the
// argv of an interactive bash using it.
func (c *Container) ShellCommand(ctx context.Context, initScriptPath string) ([]string, error) {
	id := c.ID()
	if id == "" {
		return nil, ErrNotInitialized
	}
	if err := c.driver.CopyTo(ctx, id, initScriptPath, ShellRCPath); err != nil {
		return nil, fmt.Errorf("installing init script: %w", err)
	}
	owner := c.opts.User + ":" + c.opts.User
	if _, err := c.shell(ctx, "root", "chown "+owner+" "+ShellRCPath); err != nil {
		return nil, fmt.Errorf("chown init script: %w", err)
	}
	return []string{
		c.opts.DockerBinary, "exec", "-it",
		"-u", c.opts.User,
		id,
		"bash", "--rcfile", ShellRCPath,
	}, nil
}
