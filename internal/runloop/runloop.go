// Package runloop implements the state machine of spec §4.6: it walks a
// schedule, and for each task resolves a cache hit or drives the
// executor through create/copy/execute/commit/teardown, threading the
// carrier image reference and the predecessor cache key from one
// iteration to the next.
package runloop

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/stepchowfun/toast/internal/archive"
	"github.com/stepchowfun/toast/internal/cachekey"
	"github.com/stepchowfun/toast/internal/cleanup"
	"github.com/stepchowfun/toast/internal/docker"
	"github.com/stepchowfun/toast/internal/pathcollector"
	"github.com/stepchowfun/toast/internal/toasterr"
	"github.com/stepchowfun/toast/internal/toastfile"
	"github.com/stepchowfun/toast/internal/ui"
)

// Options configures one invocation of the run loop, gathering the
// configuration-file and CLI-collaborator knobs that affect its
// behavior (spec §6).
type Options struct {
	ToastfileDir     string
	OutputDir        string // defaults to ToastfileDir when empty
	DockerRepo       string
	ReadLocalCache   bool
	WriteLocalCache  bool
	ReadRemoteCache  bool
	WriteRemoteCache bool
	ForcedTasks      map[string]bool
	ForceAll         bool
	Stdout           io.Writer
	Stderr           io.Writer
}

// RunLoop drives an Executor through the schedule.
type RunLoop struct {
	executor docker.Executor
	logger   *logrus.Entry
	opts     Options
}

// New constructs a RunLoop.
func New(executor docker.Executor, logger *logrus.Entry, opts Options) *RunLoop {
	if opts.OutputDir == "" {
		opts.OutputDir = opts.ToastfileDir
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &RunLoop{executor: executor, logger: logger, opts: opts}
}

// TaskFailedError reports that a scheduled task's command exited
// nonzero; the schedule halts at this point, per spec §7.
type TaskFailedError struct {
	TaskName string
	ExitCode int64
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %q failed with exit code %d", e.TaskName, e.ExitCode)
}

// Run executes schedule in order against tf, merging processEnv into each
// task's environment bindings. It returns the final carrier image
// reference and the last resolved task attempted (whichever name was
// reached, whether it succeeded or failed) on success or failure alike,
// since spec §4.6's shell drop-in runs "on success or failure" against
// whatever image the schedule got to, carrying that task's mounts,
// ports, user, and working directory.
func (r *RunLoop) Run(ctx context.Context, tf *toastfile.Toastfile, schedule []string, processEnv map[string]string) (string, *toastfile.ResolvedTask, error) {
	carrier := tf.Image
	predecessor := tf.Image
	var lastTask *toastfile.ResolvedTask

	for _, name := range schedule {
		task := tf.Tasks[name]

		resolved, err := toastfile.Resolve(name, task, tf, processEnv)
		if err != nil {
			return carrier, lastTask, err
		}
		lastTask = resolved

		nextCarrier, nextPredecessor, err := r.runTask(ctx, resolved, carrier, predecessor)
		if err != nil {
			return carrier, lastTask, err
		}
		carrier = nextCarrier
		predecessor = nextPredecessor
	}

	ui.ScheduleFinished(r.opts.Stdout)
	return carrier, lastTask, nil
}

// runTask executes the nine phases of spec §4.6 for a single resolved
// task, returning the carrier and predecessor-key values to use for the
// next iteration.
func (r *RunLoop) runTask(ctx context.Context, task *toastfile.ResolvedTask, carrier, predecessor string) (string, string, error) {
	logger := r.logger.WithField("task", task.Name)

	// Phase 1: compute key.
	key, err := cachekey.Key(task, predecessor, r.opts.ToastfileDir)
	if err != nil {
		return "", "", fmt.Errorf("failed to compute cache key for task %q: %w", task.Name, err)
	}
	tag := r.opts.DockerRepo + ":" + key

	forced := r.opts.ForceAll || r.opts.ForcedTasks[task.Name]

	// Phase 2: cache probe.
	if task.Cacheable && !forced {
		hit, err := r.probeCache(ctx, tag)
		if err != nil {
			return "", "", err
		}
		if hit {
			ui.CacheHit(r.opts.Stdout, task.Name)
			return tag, key, nil
		}
	}
	ui.CacheMiss(r.opts.Stdout, task.Name)
	ui.TaskStarted(r.opts.Stdout, task.Name)

	scope := cleanup.NewScope(logger)
	defer scope.Discharge()

	// Phase 3: ensure carrier present.
	if err := r.ensurePresent(ctx, carrier); err != nil {
		return "", "", err
	}

	// Phase 4: create container.
	command := task.CommandPrefix + "\n" + task.Command
	containerID, err := r.executor.Create(ctx, docker.CreateOptions{
		ImageRef:    carrier,
		Command:     command,
		Environment: task.Environment,
		Mounts:      toMounts(task),
		Ports:       toPorts(task.Ports),
		User:        task.User,
		WorkingDir:  task.Location,
		ExtraArgs:   task.ExtraDockerArguments,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create container for task %q: %w", task.Name, err)
	}
	scope.ContainerGuard(func() { _ = r.executor.Remove(context.Background(), containerID) })

	// Phase 5: copy inputs.
	if err := r.copyInputs(ctx, task, containerID); err != nil {
		return "", "", err
	}

	// Phase 6: execute command.
	exitCode, err := r.executor.Run(ctx, containerID, r.opts.Stdout, r.opts.Stderr)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", toasterr.NewCodedError(toasterr.ErrCancelled, task.Name, "run was interrupted")
		}
		return "", "", fmt.Errorf("failed to run task %q: %w", task.Name, err)
	}

	if exitCode != 0 {
		_ = r.harvest(ctx, scope, containerID, task.OutputPathsOnFailure)
		ui.TaskFailed(r.opts.Stdout, task.Name, fmt.Errorf("exit code %d", exitCode))
		return "", "", &TaskFailedError{TaskName: task.Name, ExitCode: exitCode}
	}

	// Phase 7: commit & copy outputs. Output harvesting happens on every
	// success regardless of cacheability; only a cacheable task's
	// mutations are committed and carried forward to the next task (see
	// the grounding ledger's note on spec property 5).
	if err := r.harvest(ctx, scope, containerID, task.OutputPaths); err != nil {
		return "", "", fmt.Errorf("failed to harvest outputs of task %q: %w", task.Name, err)
	}

	if !task.Cacheable {
		return carrier, predecessor, nil
	}

	if err := r.executor.Commit(ctx, containerID, tag); err != nil {
		return "", "", fmt.Errorf("failed to commit task %q: %w", task.Name, err)
	}

	// Phase 8: remote cache write.
	if r.opts.WriteRemoteCache {
		if err := r.executor.Push(ctx, tag); err != nil {
			logger.WithError(err).Warn("failed to push cache image, continuing")
		}
	}

	// Phase 9: teardown (tag guard; container guard runs via the
	// deferred scope.Discharge above).
	if !r.opts.WriteLocalCache {
		scope.TagGuard(true, func() { _ = r.executor.DeleteLocal(context.Background(), tag) })
	}

	return tag, key, nil
}

func (r *RunLoop) probeCache(ctx context.Context, tag string) (bool, error) {
	if r.opts.ReadLocalCache {
		exists, err := r.executor.ImageExistsLocal(ctx, tag)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}

	if r.opts.ReadRemoteCache {
		exists, err := r.executor.ImageExistsRemote(ctx, tag)
		if err != nil {
			return false, err
		}
		if exists {
			if err := r.executor.Pull(ctx, tag); err != nil {
				return false, fmt.Errorf("failed to pull cached image %q: %w", tag, err)
			}
			return true, nil
		}
	}

	return false, nil
}

func (r *RunLoop) ensurePresent(ctx context.Context, ref string) error {
	exists, err := r.executor.ImageExistsLocal(ctx, ref)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := r.executor.Pull(ctx, ref); err != nil {
		return fmt.Errorf("failed to pull base image %q: %w", ref, err)
	}
	return nil
}

func (r *RunLoop) copyInputs(ctx context.Context, task *toastfile.ResolvedTask, containerID string) error {
	entries, err := pathcollector.Collect(r.opts.ToastfileDir, task.InputPaths, task.ExcludedInputPaths)
	if err != nil {
		return fmt.Errorf("failed to enumerate input paths for task %q: %w", task.Name, err)
	}
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := archive.WriteTar(&buf, entries); err != nil {
		return fmt.Errorf("failed to build input archive for task %q: %w", task.Name, err)
	}

	if err := r.executor.CopyIn(ctx, containerID, &buf, task.Location); err != nil {
		return fmt.Errorf("failed to copy inputs into task %q: %w", task.Name, err)
	}

	return nil
}

// harvest copies each output path out of the container into a temporary
// staging directory and moves it to its final host destination. Every
// path is attempted; each failure is logged and the first one is
// returned. After a command failure the caller ignores that error, since
// harvesting there is best-effort (spec §7); after a success the error
// fails the task, so a declared output that can't be harvested is never
// silently skipped. The staging directory is torn down through scope's
// temp-directory guard (spec §4.7), discharged alongside the container
// guard when runTask's step concludes, rather than by a standalone defer.
func (r *RunLoop) harvest(ctx context.Context, scope *cleanup.Scope, containerID string, outputPaths []string) error {
	if len(outputPaths) == 0 {
		return nil
	}

	stagingDir, err := os.MkdirTemp("", "toast-output-")
	if err != nil {
		r.logger.WithError(err).Warn("failed to create output staging directory")
		return fmt.Errorf("failed to create output staging directory: %w", err)
	}
	scope.TempDirGuard(stagingDir)

	var firstErr error
	for _, outputPath := range outputPaths {
		if err := r.harvestOne(ctx, containerID, outputPath, stagingDir); err != nil {
			r.logger.WithField("path", outputPath).WithError(err).Warn("failed to harvest output path")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to harvest output path %q: %w", outputPath, err)
			}
		}
	}
	return firstErr
}

func (r *RunLoop) harvestOne(ctx context.Context, containerID, outputPath, stagingDir string) error {
	reader, err := r.executor.CopyOut(ctx, containerID, outputPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	entryDir := filepath.Join(stagingDir, filepath.Base(outputPath))
	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		return err
	}
	if err := archive.ExtractTar(reader, entryDir); err != nil {
		return err
	}

	dest := filepath.Join(r.opts.OutputDir, filepath.Dir(outputPath))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	return archive.MoveTree(entryDir, dest)
}

func toMounts(task *toastfile.ResolvedTask) []docker.Mount {
	mounts := make([]docker.Mount, 0, len(task.MountPaths))
	for _, m := range task.MountPaths {
		mounts = append(mounts, docker.Mount{
			HostPath:      m.Host,
			ContainerPath: m.Container,
			ReadOnly:      task.MountReadonly,
		})
	}
	return mounts
}

func toPorts(mappings []toastfile.PathMapping) []docker.PortBinding {
	ports := make([]docker.PortBinding, 0, len(mappings))
	for _, p := range mappings {
		ports = append(ports, docker.PortBinding{HostPort: p.Host, ContainerPort: p.Container})
	}
	return ports
}
