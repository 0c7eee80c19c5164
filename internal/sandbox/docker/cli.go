package docker

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// CLIDriver shells out to the docker binary.
type CLIDriver struct {
	binary string
}

// NewCLIDriver creates a CLI driver. An empty binary means "docker" on PATH.
func NewCLIDriver(binary string) *CLIDriver {
	if binary == "" {
		binary = "docker"
	}
	return &CLIDriver{binary: binary}
}

// Binary returns the docker executable used by the driver.
func (d *CLIDriver) Binary() string {
	return d.binary
}

func (d *CLIDriver) output(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, &CommandError{Args: args, Output: stderr.String(), Err: err}
	}
	return out, nil
}

// ImageExists reports whether the image is present locally.
func (d *CLIDriver) ImageExists(ctx context.Context, image string) (bool, error) {
	out, err := d.output(ctx, "images", "-q", image)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// BuildImage builds and tags an image from a Dockerfile directory.
func (d *CLIDriver) BuildImage(ctx context.Context, image, contextDir string) error {
	_, err := d.output(ctx, "build", "-t", image, contextDir)
	return err
}

// Run starts a detached container and returns its ID.
func (d *CLIDriver) Run(ctx context.Context, opts RunOptions) (string, error) {
	out, err := d.output(ctx, runArgs(opts)...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func runArgs(opts RunOptions) []string {
	args := []string{"run", "-d", "--name", opts.Name}
	if opts.Hostname != "" {
		args = append(args, "--hostname", opts.Hostname)
	}
	if opts.NetworkDisabled {
		args = append(args, "--network", "none")
	}
	keys := make([]string, 0, len(opts.Labels))
	for k := range opts.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}
	return append(args, opts.Image)
}

// Exec runs a command inside the container.
func (d *CLIDriver) Exec(ctx context.Context, id string, opts ExecOptions) (ExecResult, error) {
	args := execArgs(id, opts)
	cmd := exec.CommandContext(ctx, d.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = opts.Stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, &CommandError{Args: args, Output: stderr.String(), Err: err}
	}
	return res, nil
}

func execArgs(id string, opts ExecOptions) []string {
	args := []string{"exec"}
	if opts.Stdin != nil {
		args = append(args, "-i")
	}
	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	for _, e := range opts.Env {
		args = append(args, "-e", e)
	}
	args = append(args, id)
	return append(args, opts.Cmd...)
}

// CopyTo copies a host file into the container.
func (d *CLIDriver) CopyTo(ctx context.Context, id, src, dest string) error {
	_, err := d.output(ctx, "cp", src, id+":"+dest)
	return err
}

// Remove removes the container.
func (d *CLIDriver) Remove(ctx context.Context, id string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	_, err := d.output(ctx, append(args, id)...)
	return err
}

// Running reports whether the container exists and is running.
func (d *CLIDriver) Running(ctx context.Context, id string) (bool, error) {
	out, err := d.output(ctx, "inspect", id)
	if err != nil {
		return false, err
	}
	return gjson.GetBytes(out, "0.State.Running").Bool(), nil
}

// Close is a no-op for the CLI driver.
func (d *CLIDriver) Close() error {
	return nil
}
