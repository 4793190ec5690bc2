package toastfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, content string) *Toastfile {
	t.Helper()
	tf, err := Parse([]byte(content))
	require.NoError(t, err, "unexpected parse error")
	return tf
}

func TestParseAppliesDefaults(t *testing.T) {
	tf := mustParse(t, `
image: alpine
tasks:
  a:
    command: echo hi
`)
	require.Equal(t, "/scratch", tf.Location)
	require.Equal(t, "root", tf.User)
}

func TestValidateRejectsUndefinedDependency(t *testing.T) {
	tf := mustParse(t, `
image: alpine
tasks:
  a:
    dependencies: [b]
    command: echo hi
`)
	require.Error(t, tf.Validate(), "expected a validation error for undefined dependency")
}

func TestValidateRejectsCycle(t *testing.T) {
	tf := mustParse(t, `
image: alpine
tasks:
  a:
    dependencies: [b]
    command: echo a
  b:
    dependencies: [a]
    command: echo b
`)
	err := tf.Validate()
	require.Error(t, err, "expected a cycle validation error")
	require.Contains(t, err.Error(), "cycle")
}

func TestValidateRejectsCacheableTaskWithPorts(t *testing.T) {
	tf := mustParse(t, `
image: alpine
tasks:
  a:
    command: echo hi
    ports: ["8080:8080"]
`)
	require.Error(t, tf.Validate(), "expected a validation error for cacheable task with ports")
}

func TestValidateAllowsUncacheableTaskWithPorts(t *testing.T) {
	no := false
	tf := mustParse(t, `
image: alpine
tasks:
  a:
    command: echo hi
    cache: false
    ports: ["8080:8080"]
`)
	tf.Tasks["a"].Cache = &no
	require.NoError(t, tf.Validate())
}

func TestValidateRejectsUncoveredExcludedPath(t *testing.T) {
	tf := mustParse(t, `
image: alpine
tasks:
  a:
    command: echo hi
    input_paths: [src]
    excluded_input_paths: [other]
`)
	require.Error(t, tf.Validate(), "expected a validation error for an excluded path outside input_paths")
}

func TestScheduleIsDeterministicAcrossRootOrder(t *testing.T) {
	tf := mustParse(t, `
image: alpine
tasks:
  a:
    command: echo a
  b:
    dependencies: [a]
    command: echo b
`)
	s1, err := tf.Schedule([]string{"a", "b"})
	require.NoError(t, err)
	s2, err := tf.Schedule([]string{"b", "a"})
	require.NoError(t, err)
	require.Equal(t, s1, s2, "expected identical schedules")
}

func TestResolveRequiredEnvironmentVariableMissing(t *testing.T) {
	tf := mustParse(t, `
image: alpine
tasks:
  deploy:
    command: echo deploying
    environment:
      CLUSTER: null
`)
	_, err := Resolve("deploy", tf.Tasks["deploy"], tf, map[string]string{})
	require.Error(t, err, "expected a validation error for missing required environment variable")
}

func TestResolveUsesProvidedOverDefault(t *testing.T) {
	tf := mustParse(t, `
image: alpine
tasks:
  deploy:
    command: echo deploying
    environment:
      CLUSTER: staging
`)
	resolved, err := Resolve("deploy", tf.Tasks["deploy"], tf, map[string]string{"CLUSTER": "prod"})
	require.NoError(t, err)
	require.Equal(t, "prod", resolved.Environment["CLUSTER"], "expected process environment to override default")
}

func TestResolveInheritsToastfileDefaults(t *testing.T) {
	tf := mustParse(t, `
image: alpine
user: builder
tasks:
  a:
    command: echo hi
`)
	resolved, err := Resolve("a", tf.Tasks["a"], tf, map[string]string{})
	require.NoError(t, err)
	require.Equal(t, "builder", resolved.User, "expected inherited user")
	require.Equal(t, "/scratch", resolved.Location, "expected inherited location")
}

func TestResolveTaskOverrideWinsOverToastfileDefault(t *testing.T) {
	tf := mustParse(t, `
image: alpine
user: builder
tasks:
  a:
    command: echo hi
    user: root
`)
	resolved, err := Resolve("a", tf.Tasks["a"], tf, map[string]string{})
	require.NoError(t, err)
	require.Equal(t, "root", resolved.User, "expected task override to win")
}
