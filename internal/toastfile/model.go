// Package toastfile is the in-memory representation of a parsed toastfile
// (spec §3): the base image, task defaults, and the task map itself, plus
// the validation and resolution logic that turns a raw parse into an
// immutable, schedulable model.
package toastfile

import (
	"fmt"

	yaml "github.com/jesseduffield/yaml"
)

// Toastfile is the root document. Tasks is keyed by task name; names are
// unique and case-sensitive by construction of the YAML map.
type Toastfile struct {
	Image         string           `yaml:"image"`
	Default       string           `yaml:"default,omitempty"`
	Location      string           `yaml:"location,omitempty"`
	User          string           `yaml:"user,omitempty"`
	CommandPrefix string           `yaml:"command_prefix,omitempty"`
	Tasks         map[string]*Task `yaml:"tasks"`
}

// EnvironmentVariable models the "optional default" sum type from spec §9:
// Default == nil means the variable is required and must come from the
// process environment or the run fails validation before any container
// is created.
type EnvironmentVariable struct {
	Default *string
}

// UnmarshalYAML accepts either a bare null (required variable) or a
// scalar default value.
func (e *EnvironmentVariable) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw *string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	e.Default = raw
	return nil
}

// MarshalYAML round-trips a required variable as null and a defaulted one
// as its scalar value.
func (e EnvironmentVariable) MarshalYAML() (interface{}, error) {
	return e.Default, nil
}

// PathMapping is a host:container pair used for mount_paths and ports. A
// toastfile entry of the bare form "path" parses to Host == Container.
type PathMapping struct {
	Host      string
	Container string
}

// UnmarshalYAML parses either "host:container" or a single "path" (which
// is mirrored onto both sides).
func (p *PathMapping) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	host, container, ok := splitMapping(raw)
	if !ok {
		p.Host = raw
		p.Container = raw
		return nil
	}
	p.Host = host
	p.Container = container
	return nil
}

func (p PathMapping) MarshalYAML() (interface{}, error) {
	if p.Host == p.Container {
		return p.Host, nil
	}
	return p.Host + ":" + p.Container, nil
}

func splitMapping(raw string) (host, container string, ok bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			return raw[:i], raw[i+1:], true
		}
	}
	return "", "", false
}

// Task is a named unit of work, as declared in the toastfile, with
// defaults not yet inlined (see ResolvedTask for the inlined form).
type Task struct {
	Description          string                         `yaml:"description,omitempty"`
	Dependencies         []string                       `yaml:"dependencies,omitempty"`
	Cache                *bool                          `yaml:"cache,omitempty"`
	Environment          map[string]EnvironmentVariable `yaml:"environment,omitempty"`
	InputPaths           []string                       `yaml:"input_paths,omitempty"`
	ExcludedInputPaths   []string                       `yaml:"excluded_input_paths,omitempty"`
	OutputPaths          []string                       `yaml:"output_paths,omitempty"`
	OutputPathsOnFailure []string                       `yaml:"output_paths_on_failure,omitempty"`
	MountPaths           []PathMapping                  `yaml:"mount_paths,omitempty"`
	MountReadonly        bool                           `yaml:"mount_readonly,omitempty"`
	Ports                []PathMapping                  `yaml:"ports,omitempty"`
	Location             *string                        `yaml:"location,omitempty"`
	User                 *string                        `yaml:"user,omitempty"`
	CommandPrefix        *string                        `yaml:"command_prefix,omitempty"`
	Command              string                         `yaml:"command,omitempty"`
	ExtraDockerArguments []string                       `yaml:"extra_docker_arguments,omitempty"`
}

// CacheEnabled returns the effective cache flag, defaulting to true.
func (t *Task) CacheEnabled() bool {
	return t.Cache == nil || *t.Cache
}

// Parse unmarshals raw YAML bytes into a Toastfile. Unknown top-level or
// task-level keys are a validation error, per spec §6; jesseduffield/yaml
// (a gopkg.in/yaml.v2 fork) enforces this via UnmarshalStrict.
func Parse(content []byte) (*Toastfile, error) {
	var tf Toastfile
	if err := yaml.UnmarshalStrict(content, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse toastfile: %w", err)
	}
	if tf.Location == "" {
		tf.Location = "/scratch"
	}
	if tf.User == "" {
		tf.User = "root"
	}
	return &tf, nil
}
