package runloop

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/stepchowfun/toast/internal/docker"
	"github.com/stepchowfun/toast/internal/toastfile"
)

// fakeExecutor is the test double spec §9 calls for: it records calls and
// returns scripted results without talking to a daemon.
type fakeExecutor struct {
	localImages  map[string]bool
	commits      []string
	nextExitCode int64
	containerNum int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{localImages: map[string]bool{}}
}

func (f *fakeExecutor) ImageExistsLocal(_ context.Context, ref string) (bool, error) {
	return f.localImages[ref], nil
}
func (f *fakeExecutor) ImageExistsRemote(_ context.Context, ref string) (bool, error) {
	return false, nil
}
func (f *fakeExecutor) Pull(_ context.Context, ref string) error {
	f.localImages[ref] = true
	return nil
}
func (f *fakeExecutor) Push(_ context.Context, ref string) error { return nil }
func (f *fakeExecutor) Tag(_ context.Context, src, dst string) error {
	f.localImages[dst] = true
	return nil
}
func (f *fakeExecutor) DeleteLocal(_ context.Context, ref string) error {
	delete(f.localImages, ref)
	return nil
}
func (f *fakeExecutor) Create(_ context.Context, opts docker.CreateOptions) (string, error) {
	f.containerNum++
	return fmt.Sprintf("container-%d", f.containerNum), nil
}
func (f *fakeExecutor) Start(_ context.Context, containerID string) error { return nil }
func (f *fakeExecutor) CopyIn(_ context.Context, containerID string, tarStream io.Reader, dstDir string) error {
	_, err := io.Copy(io.Discard, tarStream)
	return err
}
func (f *fakeExecutor) CopyOut(_ context.Context, containerID string, srcPath string) (io.ReadCloser, error) {
	return io.NopCloser(&bytes.Buffer{}), nil
}
func (f *fakeExecutor) Run(_ context.Context, containerID string, stdout, stderr io.Writer) (int64, error) {
	return f.nextExitCode, nil
}
func (f *fakeExecutor) Stop(_ context.Context, containerID string) error { return nil }
func (f *fakeExecutor) Commit(_ context.Context, containerID string, ref string) error {
	f.commits = append(f.commits, ref)
	f.localImages[ref] = true
	return nil
}
func (f *fakeExecutor) Remove(_ context.Context, containerID string) error { return nil }

func newOpts(dir string) Options {
	return Options{
		ToastfileDir:    dir,
		DockerRepo:      "toast",
		ReadLocalCache:  true,
		WriteLocalCache: true,
		ForcedTasks:     map[string]bool{},
		Stdout:          &bytes.Buffer{},
		Stderr:          &bytes.Buffer{},
	}
}

func TestRunCommitsCacheableTaskAndSkipsOnSecondRun(t *testing.T) {
	dir := t.TempDir()
	tf, err := toastfile.Parse([]byte(`
image: alpine
tasks:
  a:
    command: echo hi
`))
	require.NoError(t, err)
	require.NoError(t, tf.Validate())

	exec := newFakeExecutor()
	exec.localImages["alpine"] = true
	logger := logrus.NewEntry(logrus.New())

	rl := New(exec, logger, newOpts(dir))
	carrier1, _, err := rl.Run(context.Background(), tf, []string{"a"}, map[string]string{})
	require.NoError(t, err)
	require.Len(t, exec.commits, 1, "expected exactly one commit")

	carrier2, _, err := rl.Run(context.Background(), tf, []string{"a"}, map[string]string{})
	require.NoError(t, err)
	require.Equal(t, carrier1, carrier2, "expected identical carrier on repeated run")
	require.Len(t, exec.commits, 1, "expected second run to be a cache hit with no new commit")
}

func TestNonCacheableTaskDoesNotAdvanceCarrier(t *testing.T) {
	dir := t.TempDir()
	no := false
	tf, err := toastfile.Parse([]byte(`
image: alpine
tasks:
  a:
    command: echo a
  b:
    dependencies: [a]
    command: echo b
  c:
    dependencies: [b]
    command: echo c
`))
	require.NoError(t, err)
	tf.Tasks["b"].Cache = &no

	exec := newFakeExecutor()
	exec.localImages["alpine"] = true
	logger := logrus.NewEntry(logrus.New())

	rl := New(exec, logger, newOpts(dir))

	schedule, err := tf.Schedule([]string{"c"})
	require.NoError(t, err)

	_, _, err = rl.Run(context.Background(), tf, schedule, map[string]string{})
	require.NoError(t, err)

	// Task b is not cacheable, so only a and c should have produced
	// commits — b's container mutations must not reach the image
	// lineage (testable property 5).
	require.Len(t, exec.commits, 2, "expected commits for a and c only")
}

func TestTaskFailureHaltsTheSchedule(t *testing.T) {
	dir := t.TempDir()
	tf, err := toastfile.Parse([]byte(`
image: alpine
tasks:
  a:
    command: exit 1
  b:
    dependencies: [a]
    command: echo never
`))
	require.NoError(t, err)

	exec := newFakeExecutor()
	exec.localImages["alpine"] = true
	exec.nextExitCode = 1
	logger := logrus.NewEntry(logrus.New())

	rl := New(exec, logger, newOpts(dir))
	schedule, err := tf.Schedule([]string{"b"})
	require.NoError(t, err)

	_, _, err = rl.Run(context.Background(), tf, schedule, map[string]string{})
	require.Error(t, err, "expected the schedule to halt with an error")
	require.Empty(t, exec.commits, "expected no commits after a failed task")
}
