package docker

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestMountSpecFormatsReadOnlySuffix(t *testing.T) {
	require.Equal(t, "/host/a:/container/a", mountSpec(Mount{HostPath: "/host/a", ContainerPath: "/container/a"}))
	require.Equal(
		t,
		"/host/b:/container/b:ro",
		mountSpec(Mount{HostPath: "/host/b", ContainerPath: "/container/b", ReadOnly: true}),
	)
}

func TestNewDockerExecutorDefaultsToDockerBinary(t *testing.T) {
	e, err := NewDockerExecutor(logrus.NewEntry(logrus.New()), "")
	require.NoError(t, err)
	require.Equal(t, "docker", e.bin)
	require.Empty(t, e.prefixArgs)
}

func TestNewDockerExecutorSplitsConfiguredCLIIntoPrefixArgs(t *testing.T) {
	e, err := NewDockerExecutor(logrus.NewEntry(logrus.New()), "sudo docker --context remote")
	require.NoError(t, err)
	require.Equal(t, "sudo", e.bin)
	require.Equal(t, []string{"docker", "--context", "remote"}, e.prefixArgs)
}

// TestRunInvokesConfiguredBinaryWithFullArgv swaps the configured binary
// for /bin/echo, the same trick the teacher's OSCommand tests use to
// assert on an argv without a real docker daemon, confirming that prefix
// args from a multi-word docker_cli precede the per-call args: echo only
// treats -n as its no-trailing-newline option when it comes first.
func TestRunInvokesConfiguredBinaryWithFullArgv(t *testing.T) {
	e, err := NewDockerExecutor(logrus.NewEntry(logrus.New()), "/bin/echo -n")
	require.NoError(t, err)

	out, err := e.run(context.Background(), nil, "image", "inspect", "alpine")
	require.NoError(t, err)
	require.Equal(t, "image inspect alpine", string(out))
}

func TestCreateAppendsExtraArgsBeforeImageRef(t *testing.T) {
	e, err := NewDockerExecutor(logrus.NewEntry(logrus.New()), "/bin/echo")
	require.NoError(t, err)

	out, err := e.Create(context.Background(), CreateOptions{
		ImageRef:   "alpine",
		User:       "root",
		WorkingDir: "/scratch",
		ExtraArgs:  []string{"--cap-add=SYS_PTRACE"},
	})
	require.NoError(t, err)
	require.Equal(
		t,
		"container create --user root --workdir /scratch --cap-add=SYS_PTRACE alpine",
		out,
	)
}

func TestRunPropagatesStderrOnFailure(t *testing.T) {
	e, err := NewDockerExecutor(logrus.NewEntry(logrus.New()), "/bin/sh")
	require.NoError(t, err)

	_, err = e.run(context.Background(), nil, "-c", "echo boom >&2; exit 1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}
