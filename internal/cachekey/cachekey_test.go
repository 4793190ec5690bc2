package cachekey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stepchowfun/toast/internal/toastfile"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func baseTask() *toastfile.ResolvedTask {
	return &toastfile.ResolvedTask{
		Name:        "build",
		Command:     "make",
		User:        "root",
		Location:    "/scratch",
		Environment: map[string]string{},
		InputPaths:  []string{"src"},
		OutputPaths: []string{"a.out"},
	}
}

func TestKeyStableForUnchangedInputs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/x.c", "int main() {}")

	task := baseTask()

	k1, err := Key(task, "alpine", dir)
	require.NoError(t, err)
	k2, err := Key(task, "alpine", dir)
	require.NoError(t, err)
	require.Equal(t, k1, k2, "expected stable key")
}

func TestKeyChangesWhenInputContentChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/x.c", "int main() {}")
	task := baseTask()

	k1, err := Key(task, "alpine", dir)
	require.NoError(t, err)

	writeFile(t, dir, "src/x.c", "int main() { return 1; }")

	k2, err := Key(task, "alpine", dir)
	require.NoError(t, err)

	require.NotEqual(t, k1, k2, "expected key to change when input file content changes")
}

func TestKeyUnaffectedByExcludedInput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/x.c", "int main() {}")
	writeFile(t, dir, "src/notes.txt", "first")

	task := baseTask()
	task.ExcludedInputPaths = []string{"src/notes.txt"}

	k1, err := Key(task, "alpine", dir)
	require.NoError(t, err)

	writeFile(t, dir, "src/notes.txt", "second")

	k2, err := Key(task, "alpine", dir)
	require.NoError(t, err)

	require.Equal(t, k1, k2, "expected excluded input path to never affect the cache key")
}

func TestKeyChainsToPredecessor(t *testing.T) {
	dir := t.TempDir()
	task := baseTask()
	task.InputPaths = nil

	k1, err := Key(task, "alpine", dir)
	require.NoError(t, err)
	k2, err := Key(task, "alpine:other-tag", dir)
	require.NoError(t, err)
	require.NotEqual(t, k1, k2, "expected different predecessor fingerprints to produce different keys")
}

func TestKeyIgnoresNonCacheAffectingFields(t *testing.T) {
	dir := t.TempDir()
	task := baseTask()
	task.InputPaths = nil

	k1, err := Key(task, "alpine", dir)
	require.NoError(t, err)

	task.Description = "changed description"
	task.OutputPathsOnFailure = []string{"log.txt"}
	task.ExtraDockerArguments = []string{"--cap-add=SYS_PTRACE"}

	k2, err := Key(task, "alpine", dir)
	require.NoError(t, err)

	require.Equal(t, k1, k2, "expected description/output_paths_on_failure/extra_docker_arguments to not affect the key")
}
