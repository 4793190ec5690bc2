package toastfile

import (
	"fmt"
	"sort"

	"github.com/imdario/mergo"
)

// ResolvedTask is a Task with every toastfile-level default inlined and
// every environment binding materialized to a concrete value. It is
// immutable for the duration of one invocation (spec §3's Lifecycle).
type ResolvedTask struct {
	Name                 string
	Description          string
	Dependencies         []string
	Cacheable            bool
	Environment          map[string]string
	InputPaths           []string
	ExcludedInputPaths   []string
	OutputPaths          []string
	OutputPathsOnFailure []string
	MountPaths           []PathMapping
	MountReadonly        bool
	Ports                []PathMapping
	Location             string
	User                 string
	CommandPrefix        string
	Command              string
	ExtraDockerArguments []string
}

// Resolve inlines the toastfile's defaults onto task and materializes its
// environment bindings against processEnv, the caller's process
// environment. A required variable (no declared default) absent from
// processEnv is a validation failure raised here, before any container is
// created, per spec §3 and §7.
func Resolve(name string, task *Task, tf *Toastfile, processEnv map[string]string) (*ResolvedTask, error) {
	// mergo.Merge only fills zero-valued destination fields, so an
	// explicit per-task override (a non-nil pointer) always wins over the
	// toastfile-level default.
	defaults := Task{
		Location:      &tf.Location,
		User:          &tf.User,
		CommandPrefix: &tf.CommandPrefix,
	}
	merged := *task
	if err := mergo.Merge(&merged, defaults); err != nil {
		return nil, fmt.Errorf("failed to merge defaults for task %q: %w", name, err)
	}

	env, err := resolveEnvironment(name, merged.Environment, processEnv)
	if err != nil {
		return nil, err
	}

	return &ResolvedTask{
		Name:                 name,
		Description:          merged.Description,
		Dependencies:         merged.Dependencies,
		Cacheable:            merged.CacheEnabled(),
		Environment:          env,
		InputPaths:           merged.InputPaths,
		ExcludedInputPaths:   merged.ExcludedInputPaths,
		OutputPaths:          merged.OutputPaths,
		OutputPathsOnFailure: merged.OutputPathsOnFailure,
		MountPaths:           merged.MountPaths,
		MountReadonly:        merged.MountReadonly,
		Ports:                merged.Ports,
		Location:             *merged.Location,
		User:                 *merged.User,
		CommandPrefix:        *merged.CommandPrefix,
		Command:              merged.Command,
		ExtraDockerArguments: merged.ExtraDockerArguments,
	}, nil
}

func resolveEnvironment(taskName string, declared map[string]EnvironmentVariable, processEnv map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(declared))

	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		variable := declared[name]
		if value, ok := processEnv[name]; ok {
			resolved[name] = value
			continue
		}
		if variable.Default != nil {
			resolved[name] = *variable.Default
			continue
		}
		return nil, fmt.Errorf(
			"task %q requires environment variable %q, which has no default and is not set",
			taskName, name,
		)
	}

	return resolved, nil
}
