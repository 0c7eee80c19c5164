package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// maxScanBytes caps the size of files inspected by FindFileContaining.
const maxScanBytes = 1 << 20

// Local is a sandbox backed by a temporary host directory.
type Local struct {
	mu        sync.Mutex
	root      string
	opts      Options
	log       *zap.Logger
	removeAll func(string) error
}

// NewLocal creates a local provider. Call Create before use.
func NewLocal(opts Options) *Local {
	return &Local{
		opts:      opts,
		log:       opts.logger().With(zap.String("sandbox", string(KindLocal))),
		removeAll: os.RemoveAll,
	}
}

// Kind returns KindLocal.
func (l *Local) Kind() Kind {
	return KindLocal
}

// Root returns the sandbox directory, or "" before Create.
func (l *Local) Root() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.root
}

// Create makes a new uniquely named temporary directory.
func (l *Local) Create(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.destroyLocked(); err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "clitutor-sandbox-")
	l.opts.Metrics.ObserveSandbox(string(KindLocal), "create", err)
	if err != nil {
		return "", fmt.Errorf("creating sandbox dir: %w", err)
	}
	// Resolve symlinks so paths reported by the shell (pwd -P, $PWD after
	// cd) compare equal to the root, e.g. /tmp -> /private/tmp.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	l.root = dir
	l.log.Info("sandbox created", zap.String("root", dir))
	return dir, nil
}

// Reset destroys and recreates the sandbox directory.
func (l *Local) Reset(ctx context.Context) (string, error) {
	if err := l.Destroy(ctx); err != nil {
		return "", err
	}
	return l.Create(ctx)
}

// Destroy removes the sandbox directory. It tolerates a directory that is
// already gone. After a failed removal the root is kept so Destroy can be
// retried.
func (l *Local) Destroy(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroyLocked()
}

func (l *Local) destroyLocked() error {
	if l.root == "" {
		return nil
	}
	root := l.root

	err := l.removeAll(root)
	l.opts.Metrics.ObserveSandbox(string(KindLocal), "destroy", err)
	if err != nil {
		l.log.Warn("failed to remove sandbox dir", zap.String("root", root), zap.Error(err))
		return fmt.Errorf("removing sandbox dir %s: %w", root, err)
	}
	l.root = ""
	l.log.Info("sandbox destroyed", zap.String("root", root))
	return nil
}

// resolve joins rel onto the root and rejects paths that leave it.
func (l *Local) resolve(rel string) (string, error) {
	root := l.Root()
	if root == "" {
		return "", ErrNotInitialized
	}
	full := filepath.Join(root, rel)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return full, nil
}

// FileExists reports whether rel exists. It is false before Create.
func (l *Local) FileExists(ctx context.Context, rel string) bool {
	full, err := l.resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// ReadFile returns the contents of rel.
func (l *Local) ReadFile(ctx context.Context, rel string) ([]byte, error) {
	full, err := l.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

// SeedFile writes content to rel, creating parent directories.
func (l *Local) SeedFile(ctx context.Context, rel string, content []byte) error {
	full, err := l.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", rel, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// SeedAsset copies a bundled asset into the sandbox as dest (name when
// empty). A missing asset is skipped.
func (l *Local) SeedAsset(ctx context.Context, name, dest string) error {
	if dest == "" {
		dest = name
	}
	full, err := l.resolve(dest)
	if err != nil {
		return err
	}

	src := filepath.Join(l.opts.AssetsDir, name)
	info, err := os.Stat(src)
	if err != nil {
		l.log.Debug("asset not found, skipping", zap.String("asset", src))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", dest, err)
	}
	if err := copyFile(src, full, info.Mode().Perm()); err != nil {
		return fmt.Errorf("copying asset %s: %w", name, err)
	}
	_ = os.Chtimes(full, info.ModTime(), info.ModTime())
	return nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// HasDirWithFile reports whether a subdirectory of the root holds a file.
func (l *Local) HasDirWithFile(ctx context.Context) bool {
	root := l.Root()
	if root == "" {
		return false
	}
	found := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return nil
		}
		if d.Type().IsRegular() && filepath.Dir(path) != root {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}

// FindFileContaining reports whether any regular file under the root
// contains text.
func (l *Local) FindFileContaining(ctx context.Context, text string) bool {
	root := l.Root()
	if root == "" || text == "" {
		return false
	}
	needle := []byte(text)
	found := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxScanBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err == nil && bytes.Contains(data, needle) {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}
