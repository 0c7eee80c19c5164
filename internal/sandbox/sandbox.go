// Package sandbox provides the disposable environments learner commands run in.
//
// Two providers share one contract. Local keeps the sandbox in a freshly
// created temporary directory on the host. Container keeps it at a fixed
// path inside a dedicated container with networking disabled, reached only
// through exec-into-container primitives, so every probe costs a process
// spawn and callers should batch where they can.
//
// Operations before Create fail with ErrNotInitialized. Destroy is always
// safe to repeat.
package sandbox

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/metrics"
)

// Kind names a provider variant.
type Kind string

const (
	KindLocal     Kind = "local"
	KindContainer Kind = "container"
)

// Provider owns one disposable execution environment.
type Provider interface {
	Kind() Kind

	// Create builds a new backing resource, destroying any prior one, and
	// returns the sandbox root.
	Create(ctx context.Context) (string, error)
	// Reset destroys and recreates the backing resource.
	Reset(ctx context.Context) (string, error)
	// Destroy releases the backing resource. Repeated calls are no-ops.
	Destroy(ctx context.Context) error
	// Root returns the sandbox root, or "" before Create.
	Root() string

	FileExists(ctx context.Context, rel string) bool
	ReadFile(ctx context.Context, rel string) ([]byte, error)
	SeedFile(ctx context.Context, rel string, content []byte) error
	SeedAsset(ctx context.Context, name, dest string) error

	// HasDirWithFile reports whether any subdirectory holds a regular file.
	HasDirWithFile(ctx context.Context) bool
	// FindFileContaining reports whether any file contains text.
	FindFileContaining(ctx context.Context, text string) bool
}

// ShellProvider is implemented by providers whose interactive shell has to
// be launched through a wrapper command instead of a local bash.
type ShellProvider interface {
	// ShellCommand installs the init script and returns the argv to run
	// under a PTY.
	ShellCommand(ctx context.Context, initScriptPath string) ([]string, error)
}

// Options holds settings shared by all providers.
type Options struct {
	// AssetsDir is where SeedAsset looks for bundled files.
	AssetsDir string
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// SeedFiles seeds files from "name:content" entries. An entry without a colon
// creates an empty file.
func SeedFiles(ctx context.Context, p Provider, entries []string) error {
	for _, entry := range entries {
		name, content, _ := strings.Cut(entry, ":")
		if err := p.SeedFile(ctx, name, []byte(content)); err != nil {
			return fmt.Errorf("seeding %s: %w", name, err)
		}
	}
	return nil
}
