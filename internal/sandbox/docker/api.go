package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
)

// APIDriver talks to the Docker Engine API.
type APIDriver struct {
	cli *client.Client
}

// NewAPIDriver creates a driver configured from the environment
// (DOCKER_HOST, DOCKER_CERT_PATH, ...).
func NewAPIDriver() (*APIDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &APIDriver{cli: cli}, nil
}

// ImageExists reports whether the image is present locally.
func (d *APIDriver) ImageExists(ctx context.Context, image string) (bool, error) {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, image)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspecting image %s: %w", image, err)
	}
	return true, nil
}

// BuildImage builds and tags an image from a Dockerfile directory.
func (d *APIDriver) BuildImage(ctx context.Context, image, contextDir string) error {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("archiving build context %s: %w", contextDir, err)
	}
	defer buildCtx.Close()

	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:   []string{image},
		Remove: true,
	})
	if err != nil {
		return fmt.Errorf("building image %s: %w", image, err)
	}
	defer resp.Body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil); err != nil {
		return fmt.Errorf("building image %s: %w", image, err)
	}
	return nil
}

// Run creates and starts a detached container and returns its ID.
func (d *APIDriver) Run(ctx context.Context, opts RunOptions) (string, error) {
	cfg := &container.Config{
		Image:           opts.Image,
		Hostname:        opts.Hostname,
		Labels:          opts.Labels,
		NetworkDisabled: opts.NetworkDisabled,
	}
	hostCfg := &container.HostConfig{}
	if opts.NetworkDisabled {
		hostCfg.NetworkMode = "none"
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("creating container %s: %w", opts.Name, err)
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		_ = d.cli.ContainerRemove(context.Background(), resp.ID, types.ContainerRemoveOptions{Force: true})
		return "", fmt.Errorf("starting container %s: %w", opts.Name, err)
	}
	return resp.ID, nil
}

// Exec runs a command inside the container and waits for it to exit.
func (d *APIDriver) Exec(ctx context.Context, id string, opts ExecOptions) (ExecResult, error) {
	created, err := d.cli.ContainerExecCreate(ctx, id, types.ExecConfig{
		User:         opts.User,
		WorkingDir:   opts.WorkDir,
		Env:          opts.Env,
		Cmd:          opts.Cmd,
		AttachStdin:  opts.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("creating exec in %s: %w", id, err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("attaching exec in %s: %w", id, err)
	}
	defer attach.Close()

	if opts.Stdin != nil {
		go func() {
			_, _ = io.Copy(attach.Conn, opts.Stdin)
			_ = attach.CloseWrite()
		}()
	}

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return ExecResult{}, fmt.Errorf("reading exec output: %w", err)
		}
	case <-ctx.Done():
		attach.Close()
		return ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, ctx.Err()
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("inspecting exec: %w", err)
	}
	return ExecResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// CopyTo copies a host file into the container as a single-entry tar stream.
func (d *APIDriver) CopyTo(ctx context.Context, id, src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    path.Base(dest),
		Mode:    int64(info.Mode().Perm()),
		Size:    int64(len(data)),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write(data); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	if err := d.cli.CopyToContainer(ctx, id, path.Dir(dest), &buf, types.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copying %s to %s:%s: %w", src, id, dest, err)
	}
	return nil
}

// Remove removes the container. A missing container is not an error.
func (d *APIDriver) Remove(ctx context.Context, id string, force bool) error {
	err := d.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: force})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container %s: %w", id, err)
	}
	return nil
}

// Running reports whether the container exists and is running.
func (d *APIDriver) Running(ctx context.Context, id string) (bool, error) {
	c, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return c.State != nil && c.State.Running, nil
}

// Close releases the API client.
func (d *APIDriver) Close() error {
	return d.cli.Close()
}
