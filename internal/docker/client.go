package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/jesseduffield/kill"
	"github.com/sirupsen/logrus"

	"github.com/stepchowfun/toast/internal/dockercli"
	"github.com/stepchowfun/toast/internal/toasterr"
)

// DockerExecutor is the concrete Executor backed by the configured
// container CLI binary, invoked as a subprocess with argument vectors
// matching the public Docker CLI surface (spec §6). This follows the
// teacher's OSCommand pattern of wrapping `exec.Command` behind a
// narrower, logged interface rather than talking to the daemon directly.
type DockerExecutor struct {
	bin        string
	prefixArgs []string
	logger     *logrus.Entry
}

// NewDockerExecutor builds an executor that shells out to cli (the
// configured `docker_cli`/`--docker-cli` value). cli is split with the
// same argv parser the teacher's OSCommand uses for user-configured
// command strings (internal/dockercli.ParseArgv), so a value like
// "sudo docker" or "docker --context remote" works as a prefix applied
// to every invocation, not just a bare binary name.
func NewDockerExecutor(logger *logrus.Entry, cli string) (*DockerExecutor, error) {
	if cli == "" {
		cli = "docker"
	}

	argv := dockercli.ParseArgv(cli)
	if len(argv) == 0 {
		return nil, fmt.Errorf("docker_cli %q did not parse to a runnable command", cli)
	}

	return &DockerExecutor{bin: argv[0], prefixArgs: argv[1:], logger: logger}, nil
}

// run invokes the configured CLI with args, optionally feeding stdin,
// and returns captured stdout. On a nonzero exit, the error message
// propagates the subprocess's stderr, per spec §6 ("Standard error from
// failed invocations is propagated in error messages").
func (d *DockerExecutor) run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	full := append(append([]string(nil), d.prefixArgs...), args...)
	d.logger.WithField("args", full).Debug("running docker CLI")

	cmd := exec.CommandContext(ctx, d.bin, full...)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf(
			"%s %s: %w: %s",
			d.bin, strings.Join(full, " "), err, strings.TrimSpace(stderr.String()),
		)
	}

	return stdout.Bytes(), nil
}

// cmdArgs prepends the configured prefix args ahead of args, for the one
// call site (Run) that needs to build an *exec.Cmd itself rather than
// going through run.
func (d *DockerExecutor) cmdArgs(args ...string) []string {
	return append(append([]string(nil), d.prefixArgs...), args...)
}

func (d *DockerExecutor) ImageExistsLocal(ctx context.Context, ref string) (bool, error) {
	_, err := d.run(ctx, nil, "image", "inspect", ref)
	return err == nil, nil
}

// ImageExistsRemote probes a registry for ref without pulling it, via
// `docker manifest inspect`, the CLI's dedicated non-mutating remote
// lookup (spec §4.6 phase 2's remote cache probe needs exactly this: a
// read that doesn't fetch the image).
func (d *DockerExecutor) ImageExistsRemote(ctx context.Context, ref string) (bool, error) {
	_, err := d.run(ctx, nil, "manifest", "inspect", ref)
	return err == nil, nil
}

func (d *DockerExecutor) Pull(ctx context.Context, ref string) error {
	_, err := d.run(ctx, nil, "pull", ref)
	return toasterr.WrapError(err)
}

func (d *DockerExecutor) Push(ctx context.Context, ref string) error {
	_, err := d.run(ctx, nil, "push", ref)
	return toasterr.WrapError(err)
}

func (d *DockerExecutor) Tag(ctx context.Context, srcRef, dstRef string) error {
	_, err := d.run(ctx, nil, "tag", srcRef, dstRef)
	return toasterr.WrapError(err)
}

func (d *DockerExecutor) DeleteLocal(ctx context.Context, ref string) error {
	if _, err := d.run(ctx, nil, "image", "rm", "--force", ref); err != nil {
		d.logger.WithField("ref", ref).WithError(err).Warn("best-effort local image deletion failed")
	}
	return nil
}

// Create builds a `docker container create` invocation from opts,
// appending ExtraArgs verbatim before the image reference so a
// toastfile's extra_docker_arguments reaches the real CLI surface (spec
// §3's Task.extra_docker_arguments, §4.5's create(..., extra_args)).
func (d *DockerExecutor) Create(ctx context.Context, opts CreateOptions) (string, error) {
	args := []string{"container", "create"}

	if opts.User != "" {
		args = append(args, "--user", opts.User)
	}
	if opts.WorkingDir != "" {
		args = append(args, "--workdir", opts.WorkingDir)
	}
	for k, v := range opts.Environment {
		args = append(args, "--env", k+"="+v)
	}
	for _, m := range opts.Mounts {
		args = append(args, "--volume", mountSpec(m))
	}
	for _, p := range opts.Ports {
		args = append(args, "--publish", p.HostPort+":"+p.ContainerPort)
	}

	args = append(args, opts.ExtraArgs...)
	args = append(args, opts.ImageRef)

	if opts.Command != "" {
		args = append(args, "su", "-c", opts.Command, opts.User)
	}

	out, err := d.run(ctx, nil, args...)
	if err != nil {
		return "", toasterr.WrapError(err)
	}

	return strings.TrimSpace(string(out)), nil
}

func (d *DockerExecutor) Start(ctx context.Context, containerID string) error {
	_, err := d.run(ctx, nil, "container", "start", containerID)
	return toasterr.WrapError(err)
}

// CopyIn streams tarStream to `docker container cp - <containerID>:<dstDir>`,
// which reads a tar archive from standard input, matching the streaming
// contract of spec §4.5.
func (d *DockerExecutor) CopyIn(ctx context.Context, containerID string, tarStream io.Reader, dstDir string) error {
	_, err := d.run(ctx, tarStream, "container", "cp", "-", containerID+":"+dstDir)
	return toasterr.WrapError(err)
}

// CopyOut runs `docker container cp <containerID>:<srcPath> -`, which
// writes a tar archive of srcPath to standard output.
func (d *DockerExecutor) CopyOut(ctx context.Context, containerID string, srcPath string) (io.ReadCloser, error) {
	out, err := d.run(ctx, nil, "container", "cp", containerID+":"+srcPath, "-")
	if err != nil {
		return nil, toasterr.WrapError(err)
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}

// Run starts the container attached to the caller's stdout/stderr via
// `docker container start --attach`, whose own exit status mirrors the
// container's exit code — the only subprocess invocation this engine
// needs to both stream output live and recover the command's exit code,
// without a separate `container wait`/`container logs` call outside
// spec §6's listed surface. On cancellation, the subprocess is sent a
// polite termination signal (spec §5) via the same jesseduffield/kill
// helper the shell drop-in uses, rather than left to run to completion.
func (d *DockerExecutor) Run(ctx context.Context, containerID string, stdout, stderr io.Writer) (int64, error) {
	cmd := exec.Command(d.bin, d.cmdArgs("container", "start", "--attach", containerID)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	kill.PrepareForChildren(cmd)

	if err := cmd.Start(); err != nil {
		return 0, toasterr.WrapError(err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			return 0, nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return int64(exitErr.ExitCode()), nil
		}
		return 0, toasterr.WrapError(err)
	case <-ctx.Done():
		if termErr := dockercli.Terminate(cmd); termErr != nil {
			d.logger.WithError(termErr).Warn("failed to terminate running container process")
		}
		<-done
		return 0, ctx.Err()
	}
}

func (d *DockerExecutor) Stop(ctx context.Context, containerID string) error {
	if _, err := d.run(ctx, nil, "container", "stop", containerID); err != nil {
		d.logger.WithField("containerID", containerID).WithError(err).Warn("best-effort container stop failed")
	}
	return nil
}

func (d *DockerExecutor) Commit(ctx context.Context, containerID string, ref string) error {
	_, err := d.run(ctx, nil, "container", "commit", containerID, ref)
	return toasterr.WrapError(err)
}

func (d *DockerExecutor) Remove(ctx context.Context, containerID string) error {
	if _, err := d.run(ctx, nil, "container", "rm", "--force", containerID); err != nil {
		d.logger.WithField("containerID", containerID).WithError(err).Warn("best-effort container removal failed")
	}
	return nil
}

func mountSpec(m Mount) string {
	spec := m.HostPath + ":" + m.ContainerPath
	if m.ReadOnly {
		spec += ":ro"
	}
	return spec
}
