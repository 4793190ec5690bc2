// Package dockercli holds the engine's best-effort subprocess
// collaborators: the interactive shell drop-in and process-killing
// support, both deliberately kept outside the Executor contract (spec
// §1 lists "the shell-drop feature" and "the Docker CLI subprocess" as
// external collaborators, not core-engine concerns). Grounded on the
// teacher's OSCommand: argv splitting via mgutz/str and signal delivery
// via jesseduffield/kill.
package dockercli

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/jesseduffield/kill"
	"github.com/mgutz/str"
)

// ShellOptions carries the carrier image state the run loop hands to the
// drop-in shell after the schedule terminates, win or lose (spec §4.6's
// "Shell drop-in").
type ShellOptions struct {
	DockerCLI  string
	ImageRef   string
	User       string
	WorkingDir string
	Mounts     []string // already formatted "host:container[:ro]"
	Ports      []string // already formatted "host:container"
}

// DropIn execs an interactive container CLI invocation that attaches the
// caller's terminal to a shell inside ImageRef, inheriting the last
// task's mounts, ports, user, and working directory. If ctx is cancelled
// while the shell is attached (the same interrupt the run loop itself
// reacts to), the subprocess is sent a polite termination signal via
// Terminate rather than left to outlive the engine.
func DropIn(ctx context.Context, opts ShellOptions) error {
	args := []string{"run", "-it", "--rm",
		"--user", opts.User,
		"--workdir", opts.WorkingDir,
	}
	for _, m := range opts.Mounts {
		args = append(args, "--volume", m)
	}
	for _, p := range opts.Ports {
		args = append(args, "--publish", p)
	}
	args = append(args, opts.ImageRef, "/bin/su", "-", opts.User)

	cmd := exec.Command(opts.DockerCLI, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	kill.PrepareForChildren(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if err := Terminate(cmd); err != nil {
			return err
		}
		<-done
		return ctx.Err()
	}
}

// ParseArgv splits a raw shell command string into an argument vector,
// honoring quoting the way a POSIX shell would — used by
// internal/docker.NewDockerExecutor to split the configured docker_cli
// string into a binary and prefix arguments.
func ParseArgv(command string) []string {
	return str.ToArgv(command)
}

// Terminate sends cmd (which must have been prepared with
// PrepareForChildren before Start) a polite termination signal, used by
// the run loop's cancellation handling (spec §5) to stop a subprocess
// the engine currently owns without leaving orphaned grandchildren
// behind.
func Terminate(cmd *exec.Cmd) error {
	if err := kill.Kill(cmd); err != nil {
		return fmt.Errorf("failed to terminate process: %w", err)
	}
	return nil
}
